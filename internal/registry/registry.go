/*
Package registry contains the shared store of users, credentials, online status,
and room membership.

This file defines the Registry struct, the single authoritative source for who
is registered, who is online, and which connections belong to which room. Every
session goroutine mutates it concurrently, so all state lives behind one mutex;
delivery targets are snapshotted under the lock and the blocking network writes
happen outside of it.
*/
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tcpchat/internal/pkg/errs"
	"tcpchat/internal/pkg/logx"
	"tcpchat/internal/pkg/randx"
	"tcpchat/internal/protocol"
)

// Handle is the outbound delivery handle of an online user. It is implemented
// by the per-connection session and must be safe to call from any goroutine.
type Handle interface {
	// Deliver queues a packet for transmission to the connection. It must not
	// block; a saturated or closed connection returns an error instead.
	Deliver(pkt *protocol.Packet) error
}

// DuplicatePolicy selects how Register treats an already-taken nickname.
type DuplicatePolicy string

const (
	// PolicyReject refuses a registration whose nickname already exists.
	PolicyReject DuplicatePolicy = "reject"

	// PolicyAllow accepts duplicate nicknames; login then resolves to the
	// earliest matching registration.
	PolicyAllow DuplicatePolicy = "allow"
)

// ParsePolicy converts a configuration string into a DuplicatePolicy.
func ParsePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case PolicyReject, PolicyAllow:
		return DuplicatePolicy(s), nil
	case "":
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// User is a registered identity. A user is online iff a delivery handle is
// attached. The handle field is guarded by the owning Registry's mutex.
type User struct {
	Nickname string
	Password string

	handle Handle
}

// RoomStatus is a read-only snapshot of one room, used by the status API.
type RoomStatus struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// target pairs a delivery handle with its owner's nickname for logging.
type target struct {
	nickname string
	handle   Handle
}

// Registry struct is the process-wide store shared by all sessions.
type Registry struct {
	// mu protects users, rooms and every User.handle.
	mu sync.RWMutex

	// users holds all registered users in registration order. Login and the
	// online-user snapshot both rely on that order.
	users []*User

	// rooms maps a room name to its member set. This table is the only
	// membership source; sessions keep no room index of their own, so join
	// bookkeeping and delivery can never disagree.
	rooms map[string]map[*User]struct{}

	// policy decides how duplicate nicknames are handled on registration.
	policy DuplicatePolicy

	// structured logger with Registry context.
	logger zerolog.Logger
}

// New constructs an empty Registry with the given duplicate-nickname policy.
func New(policy DuplicatePolicy) *Registry {
	registryLogger := logx.Logger().With().Str("component", "Registry").Logger()

	return &Registry{
		rooms:  make(map[string]map[*User]struct{}),
		policy: policy,
		logger: registryLogger,
	}
}

// Register validates and stores a new user record. The connection is not yet
// considered online; Attach sets the delivery handle after the session has
// acknowledged the registration.
//
// Passwords are stored and compared in the clear. This mirrors the original
// service and is a documented limitation, not an oversight to harden here.
func (r *Registry) Register(nickname, password string) (*User, *errs.CustomError) {
	if nickname == "" || password == "" {
		return nil, errs.NewError(errs.ErrInvalidUser)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.policy == PolicyReject {
		for _, u := range r.users {
			if u.Nickname == nickname {
				r.logger.Warn().Str("nickname", nickname).Msg("Registration rejected: nickname taken.")
				return nil, errs.NewError(errs.ErrNicknameTaken)
			}
		}
	}

	user := &User{Nickname: nickname, Password: password}
	r.users = append(r.users, user)

	r.logger.Info().Str("nickname", nickname).Int("total_users", len(r.users)).Msg("User registered.")
	return user, nil
}

// Login scans the stored users in registration order and returns the first
// whose nickname and password both match.
func (r *Registry) Login(nickname, password string) (*User, *errs.CustomError) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Nickname == nickname && u.Password == password {
			return u, nil
		}
	}

	return nil, errs.NewError(errs.ErrUserNotFound)
}

// Attach marks the user online by recording its delivery handle. If the user
// was already attached elsewhere, the previous handle is replaced; the stale
// session fails at delivery time and tears itself down.
func (r *Registry) Attach(u *User, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.handle != nil && u.handle != h {
		r.logger.Warn().Str("nickname", u.Nickname).Msg("User attached on a new connection, replacing the old handle.")
	}
	u.handle = h
}

// Detach clears the user's delivery handle and removes the user from every
// room, if the handle still belongs to the departing session. A handle that
// was already replaced by a newer connection is left untouched.
func (r *Registry) Detach(u *User, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.handle != h {
		r.logger.Info().Str("nickname", u.Nickname).Msg("Ignoring detach for stale connection.")
		return
	}

	u.handle = nil
	for _, members := range r.rooms {
		delete(members, u)
	}

	r.logger.Info().Str("nickname", u.Nickname).Msg("User went offline.")
}

// CreateRoom inserts an empty room under the given name. Creating a room that
// already exists is a no-op; rooms persist for the process lifetime.
func (r *Registry) CreateRoom(name string) *errs.CustomError {
	if name == "" {
		return errs.NewError(errs.ErrRoomNameInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[name]; !ok {
		r.rooms[name] = make(map[*User]struct{})
		r.logger.Info().Str("room", name).Msg("Room created.")
	}
	return nil
}

// JoinRoom adds the user to the named room, creating the room if absent.
// Joining a room twice is a no-op.
func (r *Registry) JoinRoom(name string, u *User) *errs.CustomError {
	if name == "" {
		return errs.NewError(errs.ErrRoomNameInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[name]
	if !ok {
		members = make(map[*User]struct{})
		r.rooms[name] = members
	}
	members[u] = struct{}{}

	r.logger.Info().Str("room", name).Str("nickname", u.Nickname).Int("members", len(members)).Msg("User joined room.")
	return nil
}

// BroadcastAll forwards the message to every online user except the sender.
func (r *Registry) BroadcastAll(pkt *protocol.Packet) {
	sender := pkt.SenderNickname()

	r.mu.RLock()
	targets := make([]target, 0, len(r.users))
	for _, u := range r.users {
		if u.handle != nil && u.Nickname != sender {
			targets = append(targets, target{nickname: u.Nickname, handle: u.handle})
		}
	}
	r.mu.RUnlock()

	r.deliver(targets, forwardPacket(pkt))
}

// SendRoom forwards the message to every online member of the packet's room
// except the sender. An unknown room drops the message silently.
func (r *Registry) SendRoom(pkt *protocol.Packet) {
	sender := pkt.SenderNickname()

	r.mu.RLock()
	var targets []target
	for u := range r.rooms[pkt.RoomName] {
		if u.handle != nil && u.Nickname != sender {
			targets = append(targets, target{nickname: u.Nickname, handle: u.handle})
		}
	}
	r.mu.RUnlock()

	r.deliver(targets, forwardPacket(pkt))
}

// SendDirect forwards the message to the first online user whose nickname
// matches the packet's recipient. A missing or offline recipient drops the
// message silently; the sender gets no error.
func (r *Registry) SendDirect(pkt *protocol.Packet) {
	if pkt.Recipient == nil || pkt.Recipient.Nickname == "" {
		return
	}

	r.mu.RLock()
	var targets []target
	for _, u := range r.users {
		if u.handle != nil && u.Nickname == pkt.Recipient.Nickname {
			targets = append(targets, target{nickname: u.Nickname, handle: u.handle})
			break
		}
	}
	r.mu.RUnlock()

	r.deliver(targets, forwardPacket(pkt))
}

// OnlineUsers returns a snapshot of all online users in registration order,
// with passwords stripped.
func (r *Registry) OnlineUsers() []protocol.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make([]protocol.User, 0, len(r.users))
	for _, u := range r.users {
		if u.handle != nil {
			online = append(online, protocol.User{Nickname: u.Nickname})
		}
	}
	return online
}

// UserCount returns the number of registered users, online or not.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Rooms returns a snapshot of every room and its current member nicknames.
func (r *Registry) Rooms() []RoomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]RoomStatus, 0, len(r.rooms))
	for name, members := range r.rooms {
		status := RoomStatus{Name: name, Members: make([]string, 0, len(members))}
		for u := range members {
			status.Members = append(status.Members, u.Nickname)
		}
		rooms = append(rooms, status)
	}
	return rooms
}

// deliver pushes the packet to each target in turn. A failed handle is logged
// and skipped so one broken or saturated connection never blocks delivery to
// the remaining recipients.
func (r *Registry) deliver(targets []target, pkt *protocol.Packet) {
	for _, t := range targets {
		if err := t.handle.Deliver(pkt); err != nil {
			r.logger.Warn().
				Err(err).
				Str("recipient", t.nickname).
				Str("message_id", pkt.ID).
				Msg("Delivery failed, skipping recipient.")
		}
	}
}

// forwardPacket builds the outbound copy of a message: server-assigned ID and
// timestamp, and a sanitized sender carrying the nickname alone.
func forwardPacket(src *protocol.Packet) *protocol.Packet {
	out := &protocol.Packet{
		ID:        randx.MessageID(),
		Command:   src.Command,
		Sender:    &protocol.User{Nickname: src.SenderNickname()},
		RoomName:  src.RoomName,
		Body:      src.Body,
		Timestamp: time.Now().UnixMilli(),
	}

	if src.Recipient != nil {
		out.Recipient = &protocol.User{Nickname: src.Recipient.Nickname}
	}

	return out
}

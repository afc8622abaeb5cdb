/*
Package session contains the per-connection handler that owns one client's
socket and dispatch logic.

This file defines the Session struct. It reads framed packets off the TCP
connection, dispatches each one against the shared registry, and drains an
outbound queue through a single write pump so that deliveries triggered by
other sessions never write the connection concurrently.
*/
package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tcpchat/internal/pkg/errs"
	"tcpchat/internal/pkg/logx"
	"tcpchat/internal/protocol"
	"tcpchat/internal/registry"
)

const (
	// timeout duration for writing a frame to the connection.
	writeWait = 10 * time.Second

	// sendQueueSize is the capacity of the outbound packet queue.
	sendQueueSize = 256

	// MaxBodyBytes is the maximum allowed size of a message body.
	MaxBodyBytes = 5000
)

// Session struct represents one active client connection and its state:
// unauthenticated until a LOGIN or REGISTER succeeds, then authenticated with
// a resolved user until the connection closes.
type Session struct {
	// underlying TCP connection.
	conn net.Conn

	// the shared user/room registry.
	reg *registry.Registry

	// framer encodes and decodes length-prefixed packets on conn.
	framer *protocol.Framer

	// idleTimeout bounds the wait for the next inbound frame; zero disables it.
	idleTimeout time.Duration

	// a buffered channel used to queue packets waiting to be written to the client.
	send chan *protocol.Packet

	// done is closed exactly once when the session shuts down.
	done chan struct{}

	closeOnce sync.Once

	// mu guards user across the dispatch and teardown paths.
	mu sync.Mutex

	// the authenticated user, nil until LOGIN/REGISTER succeeds.
	user *registry.User

	// structured logger with session context.
	logger zerolog.Logger
}

// New constructs a Session for an accepted connection.
func New(conn net.Conn, reg *registry.Registry, framer *protocol.Framer, idleTimeout time.Duration) *Session {
	sessionLogger := logx.Logger().With().
		Str("component", "Session").
		Str("remote_addr", conn.RemoteAddr().String()).
		Logger()

	return &Session{
		conn:        conn,
		reg:         reg,
		framer:      framer,
		idleTimeout: idleTimeout,
		send:        make(chan *protocol.Packet, sendQueueSize),
		done:        make(chan struct{}),
		logger:      sessionLogger,
	}
}

// Run drives the session to completion: it starts the write pump, consumes
// inbound frames until the connection fails or closes, then tears down.
// It blocks until the session is finished.
func (s *Session) Run() {
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		s.writePump()
	}()

	s.readLoop()
	s.Close()
	wg.Wait()
}

// Deliver implements registry.Handle. It queues a packet for the write pump
// without blocking; a closed session or a full queue reports an error so the
// registry can skip this recipient.
func (s *Session) Deliver(pkt *protocol.Packet) error {
	select {
	case <-s.done:
		return fmt.Errorf("session closed")
	default:
	}

	select {
	case s.send <- pkt:
		return nil
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("Send queue full, dropping packet.")
		return fmt.Errorf("send queue full")
	}
}

// Close shuts the session down: it closes the connection, and detaches the
// user from the registry so stale delivery handles are never left behind.
// Close is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn().Err(err).Msg("Connection close error.")
		}

		s.mu.Lock()
		user := s.user
		s.mu.Unlock()

		if user != nil {
			s.reg.Detach(user, s)
		}

		s.logger.Info().Msg("Session closed.")
	})
}

// readLoop blocks on the connection until one complete packet is available,
// then dispatches it synchronously. Any read failure terminates the loop;
// there is no retry and no drain of pending writes.
func (s *Session) readLoop() {
	for {
		if s.idleTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
				s.logger.Error().Err(err).Msg("Failed to set read deadline.")
				return
			}
		}

		pkt, err := s.framer.ReadPacket(s.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				s.logger.Info().Msg("Client disconnected.")
			} else {
				s.logger.Warn().Err(err).Msg("Read failed, closing session.")
			}
			return
		}

		s.dispatch(pkt)
	}
}

// dispatch routes one inbound packet by command kind. Messaging commands
// require a prior successful LOGIN or REGISTER on this connection.
func (s *Session) dispatch(pkt *protocol.Packet) {
	switch pkt.Command {
	case protocol.CommandLogin:
		s.handleLogin(pkt)

	case protocol.CommandRegister:
		s.handleRegister(pkt)

	case protocol.CommandMessageAll:
		user, ok := s.requireAuth()
		if !ok {
			return
		}
		if !s.checkBody(pkt) {
			return
		}
		pkt.Sender = &protocol.User{Nickname: user.Nickname}
		s.reg.BroadcastAll(pkt)

	case protocol.CommandMessageIndividual:
		user, ok := s.requireAuth()
		if !ok {
			return
		}
		if pkt.Recipient == nil || pkt.Recipient.Nickname == "" {
			s.replyError(errs.NewError(errs.ErrRecipientRequired))
			return
		}
		if !s.checkBody(pkt) {
			return
		}
		pkt.Sender = &protocol.User{Nickname: user.Nickname}
		s.reg.SendDirect(pkt)

	case protocol.CommandJoinRoom:
		user, ok := s.requireAuth()
		if !ok {
			return
		}
		if cerr := s.reg.JoinRoom(pkt.RoomName, user); cerr != nil {
			s.replyError(cerr)
			return
		}
		s.reply(&protocol.Packet{
			Command: protocol.CommandJoinRoom,
			Body:    "Joined room: " + pkt.RoomName,
		})

	case protocol.CommandCreateRoom:
		_, ok := s.requireAuth()
		if !ok {
			return
		}
		if cerr := s.reg.CreateRoom(pkt.RoomName); cerr != nil {
			s.replyError(cerr)
			return
		}
		s.reply(&protocol.Packet{
			Command: protocol.CommandCreateRoom,
			Body:    "Room created: " + pkt.RoomName,
		})

	case protocol.CommandMessageRoom:
		user, ok := s.requireAuth()
		if !ok {
			return
		}
		if pkt.RoomName == "" {
			s.replyError(errs.NewError(errs.ErrRoomNameInvalid))
			return
		}
		if !s.checkBody(pkt) {
			return
		}
		pkt.Sender = &protocol.User{Nickname: user.Nickname}
		s.reg.SendRoom(pkt)

	default:
		s.logger.Warn().Str("command", string(pkt.Command)).Msg("Client sent unsupported command.")
		s.replyError(errs.NewError(errs.ErrUnknownCommand))
	}
}

// handleLogin resolves the credentials against the registry. On success it
// attaches this connection as the user's delivery handle and replies with the
// canonical user record and the body "Success"; on failure it replies
// "User not found" and leaves the connection open for a retry.
func (s *Session) handleLogin(pkt *protocol.Packet) {
	if pkt.Sender == nil {
		s.replyError(errs.NewError(errs.ErrUserNotFound))
		return
	}

	user, cerr := s.reg.Login(pkt.Sender.Nickname, pkt.Sender.Password)
	if cerr != nil {
		s.replyError(cerr)
		return
	}

	s.authenticate(user)

	s.reply(&protocol.Packet{
		Command: protocol.CommandLogin,
		Sender:  &protocol.User{Nickname: user.Nickname, Password: user.Password},
		Body:    "Success",
	})
}

// handleRegister creates a new user record. On success the session is
// authenticated immediately, mirroring login.
func (s *Session) handleRegister(pkt *protocol.Packet) {
	if pkt.Sender == nil {
		s.replyError(errs.NewError(errs.ErrInvalidUser))
		return
	}

	user, cerr := s.reg.Register(pkt.Sender.Nickname, pkt.Sender.Password)
	if cerr != nil {
		s.replyError(cerr)
		return
	}

	s.authenticate(user)

	s.reply(&protocol.Packet{
		Command: protocol.CommandRegister,
		Sender:  &protocol.User{Nickname: user.Nickname, Password: user.Password},
		Body:    "Success",
	})
}

// authenticate records the resolved user and attaches this connection as its
// delivery handle. Re-authenticating as a different user detaches the old one.
func (s *Session) authenticate(user *registry.User) {
	s.mu.Lock()
	previous := s.user
	s.user = user
	s.mu.Unlock()

	if previous != nil && previous != user {
		s.reg.Detach(previous, s)
	}

	s.reg.Attach(user, s)

	s.logger.Info().Str("nickname", user.Nickname).Msg("Session authenticated.")
}

// requireAuth returns the authenticated user, or replies with an error and
// reports false when the session has not signed in yet.
func (s *Session) requireAuth() (*registry.User, bool) {
	s.mu.Lock()
	user := s.user
	s.mu.Unlock()

	if user == nil {
		s.replyError(errs.NewError(errs.ErrNotAuthenticated))
		return nil, false
	}
	return user, true
}

// checkBody enforces the message body size limit, replying with an error when
// it is exceeded.
func (s *Session) checkBody(pkt *protocol.Packet) bool {
	if len(pkt.Body) > MaxBodyBytes {
		s.replyError(errs.NewError(errs.ErrMessageTooLong))
		return false
	}
	return true
}

// reply queues a server response to this session's own connection.
func (s *Session) reply(pkt *protocol.Packet) {
	if err := s.Deliver(pkt); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to queue reply.")
	}
}

// replyError queues a failure reply. The packet carries only the descriptive
// body; no command and no user object, matching the observable protocol.
func (s *Session) replyError(cerr *errs.CustomError) {
	s.reply(&protocol.Packet{Body: cerr.Message})
}

// writePump drains the send queue onto the connection. It is the only
// goroutine that ever writes conn, which makes cross-session deliveries safe.
func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return

		case pkt := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error().Err(err).Msg("Failed to set write deadline.")
				s.Close()
				return
			}

			if err := s.framer.WritePacket(s.conn, pkt); err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Warn().Err(err).Msg("Write failed, closing session.")
				}
				s.Close()
				return
			}
		}
	}
}

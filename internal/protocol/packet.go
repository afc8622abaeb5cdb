/*
Package protocol defines the wire-level vocabulary shared by the server and its clients.

This file defines the Command enumeration, the User identity record, and the Packet
struct that every framed message on the wire decodes into.
*/
package protocol

// Command identifies the kind of operation a Packet requests or carries.
type Command string

const (
	// CommandLogin authenticates an existing user with nickname and password.
	CommandLogin Command = "LOGIN"

	// CommandRegister creates a new user record from nickname and password.
	CommandRegister Command = "REGISTER"

	// CommandMessageAll broadcasts the body to every other online user.
	CommandMessageAll Command = "MESSAGE_ALL"

	// CommandMessageIndividual delivers the body to a single named recipient.
	CommandMessageIndividual Command = "MESSAGE_INDIVIDUAL"

	// CommandJoinRoom adds the sender to the named room, creating it if needed.
	CommandJoinRoom Command = "JOIN_ROOM"

	// CommandCreateRoom creates the named room without joining it.
	CommandCreateRoom Command = "CREATE_ROOM"

	// CommandMessageRoom delivers the body to the other members of the named room.
	CommandMessageRoom Command = "MESSAGE_ROOM"
)

// User is the identity record carried inside a Packet.
// Password is only ever present on inbound LOGIN/REGISTER packets and on the
// authentication reply; forwarded messages carry a sanitized copy with the
// nickname alone.
type User struct {
	Nickname string `json:"nickname"`
	Password string `json:"password,omitempty"`
}

// Packet is the unit of exchange on the wire.
//
// ID and Timestamp are assigned by the server when a message is forwarded to
// recipients; clients may leave them empty.
type Packet struct {
	// ID is a server-assigned UUID identifying a forwarded message.
	ID string `json:"id,omitempty"`

	// Command is the operation this packet requests or carries.
	Command Command `json:"command"`

	// Sender identifies the originating user. On forwarded messages the
	// password is stripped.
	Sender *User `json:"sender,omitempty"`

	// Recipient names the target user. Required for MESSAGE_INDIVIDUAL,
	// absent otherwise.
	Recipient *User `json:"recipient,omitempty"`

	// RoomName names the target room for JOIN_ROOM, CREATE_ROOM and MESSAGE_ROOM.
	RoomName string `json:"roomName,omitempty"`

	// Body is the free-text payload, or a status string such as "Success".
	Body string `json:"body,omitempty"`

	// Timestamp is the server-side Unix millisecond time of forwarding.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// SenderNickname returns the sender's nickname, or "" when no sender is set.
func (p *Packet) SenderNickname() string {
	if p.Sender == nil {
		return ""
	}
	return p.Sender.Nickname
}

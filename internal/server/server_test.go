package server_test

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcpchat/internal/configs"
	"tcpchat/internal/protocol"
	"tcpchat/internal/registry"
	"tcpchat/internal/server"
)

// startServer boots a chat server on an ephemeral port and returns its address.
// The server is torn down when the test finishes.
func startServer(t *testing.T, mutate func(cfg *configs.AppConfig)) string {
	t.Helper()

	cfg := &configs.AppConfig{
		Environment:   "development",
		Port:          0,
		MaxSessions:   64,
		MaxFrameBytes: 64 * 1024,
		AcceptRate:    1000,
		AcceptBurst:   1000,
	}
	if mutate != nil {
		mutate(cfg)
	}

	reg := registry.New(registry.PolicyReject)
	srv := server.New(cfg, reg)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down in time")
		}
	})

	return srv.Addr().String()
}

// client is a minimal framed-protocol chat client for tests.
type client struct {
	t      *testing.T
	conn   net.Conn
	framer *protocol.Framer
}

func dial(t *testing.T, addr string) *client {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &client{t: t, conn: conn, framer: protocol.NewFramer(0)}
}

func (c *client) send(pkt *protocol.Packet) {
	c.t.Helper()
	require.NoError(c.t, c.framer.WritePacket(c.conn, pkt))
}

func (c *client) recv() *protocol.Packet {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	pkt, err := c.framer.ReadPacket(c.conn)
	require.NoError(c.t, err)
	return pkt
}

// expectSilence asserts that no packet arrives within the given window.
func (c *client) expectSilence(window time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(window)))

	_, err := c.framer.ReadPacket(c.conn)
	require.Error(c.t, err)
	require.True(c.t, errors.Is(err, os.ErrDeadlineExceeded), "expected read timeout, got: %v", err)
}

// register signs the connection up as a fresh user and asserts success.
func (c *client) register(nickname string) {
	c.t.Helper()
	c.send(&protocol.Packet{
		Command: protocol.CommandRegister,
		Sender:  &protocol.User{Nickname: nickname, Password: "secret"},
	})

	reply := c.recv()
	require.Equal(c.t, "Success", reply.Body)
	require.NotNil(c.t, reply.Sender)
	require.Equal(c.t, nickname, reply.Sender.Nickname)
}

func TestRegisterThenLoginOnNewConnection(t *testing.T) {
	addr := startServer(t, nil)

	first := dial(t, addr)
	first.register("alice")

	second := dial(t, addr)
	second.send(&protocol.Packet{
		Command: protocol.CommandLogin,
		Sender:  &protocol.User{Nickname: "alice", Password: "secret"},
	})

	reply := second.recv()
	assert.Equal(t, "Success", reply.Body)
	assert.Equal(t, protocol.CommandLogin, reply.Command)
	require.NotNil(t, reply.Sender)
	assert.Equal(t, "alice", reply.Sender.Nickname)
	assert.Equal(t, "secret", reply.Sender.Password)
}

func TestLoginUnknownUserKeepsConnectionOpen(t *testing.T) {
	addr := startServer(t, nil)

	c := dial(t, addr)
	c.send(&protocol.Packet{
		Command: protocol.CommandLogin,
		Sender:  &protocol.User{Nickname: "ghost", Password: "boo"},
	})

	reply := c.recv()
	assert.Equal(t, "User not found", reply.Body)
	assert.Nil(t, reply.Sender)

	// The session stays usable: registering afterwards succeeds.
	c.register("ghost")
}

func TestRegisterEmptyPasswordFails(t *testing.T) {
	addr := startServer(t, nil)

	c := dial(t, addr)
	c.send(&protocol.Packet{
		Command: protocol.CommandRegister,
		Sender:  &protocol.User{Nickname: "alice"},
	})

	reply := c.recv()
	assert.Equal(t, "User not registered", reply.Body)
	assert.Nil(t, reply.Sender)
}

func TestBroadcastReachesOthersButNotSender(t *testing.T) {
	addr := startServer(t, nil)

	alice := dial(t, addr)
	alice.register("alice")
	bob := dial(t, addr)
	bob.register("bob")

	alice.send(&protocol.Packet{
		Command: protocol.CommandMessageAll,
		Body:    "hello everyone",
	})

	got := bob.recv()
	assert.Equal(t, protocol.CommandMessageAll, got.Command)
	assert.Equal(t, "hello everyone", got.Body)
	require.NotNil(t, got.Sender)
	assert.Equal(t, "alice", got.Sender.Nickname)
	assert.Empty(t, got.Sender.Password)

	alice.expectSilence(300 * time.Millisecond)
}

func TestIndividualMessageReachesOnlyRecipient(t *testing.T) {
	addr := startServer(t, nil)

	alice := dial(t, addr)
	alice.register("alice")
	bob := dial(t, addr)
	bob.register("bob")
	carol := dial(t, addr)
	carol.register("carol")

	alice.send(&protocol.Packet{
		Command:   protocol.CommandMessageIndividual,
		Recipient: &protocol.User{Nickname: "bob"},
		Body:      "just for you",
	})

	got := bob.recv()
	assert.Equal(t, "just for you", got.Body)
	require.NotNil(t, got.Sender)
	assert.Equal(t, "alice", got.Sender.Nickname)

	carol.expectSilence(300 * time.Millisecond)
	alice.expectSilence(300 * time.Millisecond)
}

func TestIndividualMessageToOfflineNicknameIsDropped(t *testing.T) {
	addr := startServer(t, nil)

	alice := dial(t, addr)
	alice.register("alice")

	alice.send(&protocol.Packet{
		Command:   protocol.CommandMessageIndividual,
		Recipient: &protocol.User{Nickname: "nobody"},
		Body:      "hello?",
	})

	// No error reply, no delivery, no disconnect.
	alice.expectSilence(300 * time.Millisecond)
	alice.send(&protocol.Packet{Command: protocol.CommandMessageAll, Body: "still alive"})
	alice.expectSilence(300 * time.Millisecond)
}

func TestRoomMessagingFlow(t *testing.T) {
	addr := startServer(t, nil)

	alice := dial(t, addr)
	alice.register("alice")
	bob := dial(t, addr)
	bob.register("bob")
	carol := dial(t, addr)
	carol.register("carol")

	alice.send(&protocol.Packet{Command: protocol.CommandCreateRoom, RoomName: "lobby"})
	assert.Equal(t, "Room created: lobby", alice.recv().Body)

	alice.send(&protocol.Packet{Command: protocol.CommandJoinRoom, RoomName: "lobby"})
	assert.Equal(t, "Joined room: lobby", alice.recv().Body)

	bob.send(&protocol.Packet{Command: protocol.CommandJoinRoom, RoomName: "lobby"})
	assert.Equal(t, "Joined room: lobby", bob.recv().Body)

	alice.send(&protocol.Packet{
		Command:  protocol.CommandMessageRoom,
		RoomName: "lobby",
		Body:     "welcome to the lobby",
	})

	got := bob.recv()
	assert.Equal(t, protocol.CommandMessageRoom, got.Command)
	assert.Equal(t, "lobby", got.RoomName)
	assert.Equal(t, "welcome to the lobby", got.Body)

	carol.expectSilence(300 * time.Millisecond)
	alice.expectSilence(300 * time.Millisecond)
}

func TestMessagingRequiresAuthentication(t *testing.T) {
	addr := startServer(t, nil)

	c := dial(t, addr)
	c.send(&protocol.Packet{Command: protocol.CommandMessageAll, Body: "drive-by"})

	reply := c.recv()
	assert.Equal(t, "Please sign in first.", reply.Body)
}

func TestUnknownCommandRepliesInvalid(t *testing.T) {
	addr := startServer(t, nil)

	c := dial(t, addr)
	c.register("alice")

	c.send(&protocol.Packet{Command: "DANCE"})
	assert.Equal(t, "Invalid command", c.recv().Body)

	// The connection stays open.
	c.send(&protocol.Packet{Command: protocol.CommandCreateRoom, RoomName: "after"})
	assert.Equal(t, "Room created: after", c.recv().Body)
}

func TestOverlongMessageBodyRejected(t *testing.T) {
	addr := startServer(t, nil)

	alice := dial(t, addr)
	alice.register("alice")
	bob := dial(t, addr)
	bob.register("bob")

	alice.send(&protocol.Packet{
		Command: protocol.CommandMessageAll,
		Body:    string(make([]byte, 6000)),
	})

	assert.Equal(t, "Message is too long.", alice.recv().Body)
	bob.expectSilence(300 * time.Millisecond)
}

func TestSessionCapRefusesExcessConnections(t *testing.T) {
	addr := startServer(t, func(cfg *configs.AppConfig) {
		cfg.MaxSessions = 1
	})

	first := dial(t, addr)
	first.register("alice")

	second := dial(t, addr)
	reply := second.recv()
	assert.Equal(t, "Server is full. Please try again later.", reply.Body)

	// The refused connection is closed right after the farewell frame.
	require.NoError(t, second.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := second.framer.ReadPacket(second.conn)
	require.Error(t, err)
}

func TestAcceptRateLimitRefusesFloods(t *testing.T) {
	addr := startServer(t, func(cfg *configs.AppConfig) {
		cfg.AcceptRate = 1
		cfg.AcceptBurst = 1
	})

	first := dial(t, addr)
	first.register("alice")

	second := dial(t, addr)
	reply := second.recv()
	assert.Equal(t, "Too many connection attempts. Please try again later.", reply.Body)
}

func TestShutdownClosesActiveSessions(t *testing.T) {
	cfg := &configs.AppConfig{
		Environment:   "development",
		Port:          0,
		MaxSessions:   64,
		MaxFrameBytes: 64 * 1024,
		AcceptRate:    1000,
		AcceptBurst:   1000,
	}

	reg := registry.New(registry.PolicyReject)
	srv := server.New(cfg, reg)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()

	c := dial(t, srv.Addr().String())
	c.register("alice")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}

	// The client observes its connection closing.
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.framer.ReadPacket(c.conn)
	require.Error(t, err)

	// The registry no longer lists the user as online.
	assert.Empty(t, reg.OnlineUsers())
}

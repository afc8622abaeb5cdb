package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	f := NewFramer(0)
	var buf bytes.Buffer

	in := &Packet{
		ID:      "m-1",
		Command: CommandMessageAll,
		Sender:  &User{Nickname: "alice"},
		Body:    "hello everyone",
	}

	require.NoError(t, f.WritePacket(&buf, in))

	out, err := f.ReadPacket(&buf)
	require.NoError(t, err)

	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Command, out.Command)
	require.NotNil(t, out.Sender)
	assert.Equal(t, "alice", out.Sender.Nickname)
	assert.Empty(t, out.Sender.Password)
	assert.Equal(t, in.Body, out.Body)
}

func TestReadMultiplePacketsFromOneStream(t *testing.T) {
	f := NewFramer(0)
	var buf bytes.Buffer

	require.NoError(t, f.WritePacket(&buf, &Packet{Command: CommandLogin, Body: "first"}))
	require.NoError(t, f.WritePacket(&buf, &Packet{Command: CommandRegister, Body: "second"}))

	first, err := f.ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, "first", first.Body)

	second, err := f.ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, "second", second.Body)
}

func TestWriteRejectsOversizedFrame(t *testing.T) {
	f := NewFramer(64)
	var buf bytes.Buffer

	err := f.WritePacket(&buf, &Packet{Command: CommandMessageAll, Body: string(make([]byte, 128))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max")
	assert.Zero(t, buf.Len())
}

func TestReadRejectsOversizedFrame(t *testing.T) {
	f := NewFramer(64)

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 1024)

	_, err := f.ReadPacket(bytes.NewReader(header[:]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max")
}

func TestReadRejectsEmptyFrame(t *testing.T) {
	f := NewFramer(0)

	var header [4]byte

	_, err := f.ReadPacket(bytes.NewReader(header[:]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty frame")
}

func TestReadCleanEOF(t *testing.T) {
	f := NewFramer(0)

	_, err := f.ReadPacket(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestReadTruncatedBody(t *testing.T) {
	f := NewFramer(0)

	var frame bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 100)
	frame.Write(header[:])
	frame.WriteString("short")

	_, err := f.ReadPacket(&frame)
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

/*
Package protocol defines the wire-level vocabulary shared by the server and its clients.

This file implements the framed encoding: each Packet travels as a 4-byte
big-endian unsigned length prefix followed by the JSON encoding of the Packet.
The frame boundary makes the stream portable across client implementations,
unlike object-graph serialization.
*/
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// DefaultMaxFrameBytes bounds a frame body when no explicit limit is configured.
const DefaultMaxFrameBytes = 64 * 1024

// Framer reads and writes length-prefixed Packet frames on a byte stream.
// A Framer holds no connection state and is safe to share between goroutines
// as long as each underlying reader/writer is used by a single goroutine.
type Framer struct {
	// MaxFrameBytes is the largest accepted frame body. Zero means
	// DefaultMaxFrameBytes.
	MaxFrameBytes uint32
}

// NewFramer returns a Framer with the given frame size limit.
// A zero limit selects DefaultMaxFrameBytes.
func NewFramer(maxFrameBytes uint32) *Framer {
	return &Framer{MaxFrameBytes: maxFrameBytes}
}

// WritePacket encodes pkt as JSON and writes it as one length-prefixed frame.
func (f *Framer) WritePacket(w io.Writer, pkt *Packet) error {
	if pkt == nil {
		return fmt.Errorf("protocol: packet is nil")
	}

	body, err := json.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("protocol: marshal packet: %w", err)
	}

	length := uint32(len(body))
	if length > f.maxFrameBytes() {
		return fmt.Errorf("protocol: frame size %d exceeds max %d", length, f.maxFrameBytes())
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], length)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("protocol: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("protocol: write frame body: %w", err)
	}

	return nil
}

// ReadPacket reads one length-prefixed frame and decodes it into a Packet.
// An io.EOF before the first header byte indicates a clean peer close and is
// returned unwrapped so callers can distinguish it from a truncated frame.
func (f *Framer) ReadPacket(r io.Reader) (*Packet, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("protocol: read frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, fmt.Errorf("protocol: empty frame")
	}
	if length > f.maxFrameBytes() {
		return nil, fmt.Errorf("protocol: frame size %d exceeds max %d", length, f.maxFrameBytes())
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("protocol: read frame body: %w", err)
	}

	pkt := &Packet{}
	if err := json.Unmarshal(body, pkt); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal packet: %w", err)
	}

	return pkt, nil
}

func (f *Framer) maxFrameBytes() uint32 {
	if f == nil || f.MaxFrameBytes == 0 {
		return DefaultMaxFrameBytes
	}
	return f.MaxFrameBytes
}

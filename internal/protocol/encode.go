package protocol

import (
	"io"

	"github.com/danmuck/clichat/internal/protocol/frame"
)

// Pack wraps msg in a packet tagged with its method.
func Pack(msg Message) (frame.Packet, error) {
	return frame.New(tagOf(msg), msg.Encode())
}

// Encode returns the full wire bytes (packet header + message) for msg.
func Encode(msg Message) ([]byte, error) {
	return frame.Encode(tagOf(msg), msg.Encode())
}

// WriteMessage packs msg and writes it to w as one frame.
func WriteMessage(w io.Writer, msg Message, limits frame.Limits) error {
	p, err := Pack(msg)
	if err != nil {
		return err
	}
	return frame.WritePacket(w, p, limits)
}

func tagOf(msg Message) uint8 {
	if u, ok := msg.(Unknown); ok {
		return u.Tag
	}
	return uint8(msg.Method())
}

package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// HeaderLen is method(1) + length(4).
const HeaderLen = 5

var (
	// ErrIncompleteFrame means fewer bytes are available than the header declares.
	// Stream callers should keep reading; it is not a format error.
	ErrIncompleteFrame = errors.New("frame: incomplete frame")
	ErrMalformedFrame  = errors.New("frame: malformed frame")
	ErrFrameTooLarge   = errors.New("frame: message too large")
)

// Packet is the outer envelope for every protocol message.
type Packet struct {
	Method  uint8
	Length  uint32
	Message []byte
}

// New builds a packet whose Length matches message.
func New(method uint8, message []byte) (Packet, error) {
	if uint64(len(message)) > math.MaxUint32 {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(message))
	}
	return Packet{Method: method, Length: uint32(len(message)), Message: message}, nil
}

// Validate checks the length invariant.
func (p Packet) Validate() error {
	if uint64(p.Length) != uint64(len(p.Message)) {
		return fmt.Errorf("%w: declared=%d actual=%d", ErrMalformedFrame, p.Length, len(p.Message))
	}
	return nil
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxMessageBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxMessageBytes: 64 * 1024,
	}
}

func (l Limits) check(length uint32) error {
	if l.MaxMessageBytes > 0 && length > l.MaxMessageBytes {
		return fmt.Errorf("%w: declared=%d max=%d", ErrFrameTooLarge, length, l.MaxMessageBytes)
	}
	return nil
}

// Encode emits method + big-endian length + message.
func Encode(method uint8, message []byte) ([]byte, error) {
	p, err := New(method, message)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, HeaderLen+len(message))
	putHeader(buf, p.Method, p.Length)
	copy(buf[HeaderLen:], message)
	return buf, nil
}

// Decode parses one complete frame. b must hold exactly one frame: a short
// buffer is ErrIncompleteFrame, extra bytes past the declared length are
// ErrMalformedFrame.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderLen {
		return Packet{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrIncompleteFrame, HeaderLen, len(b))
	}
	method, length := parseHeader(b)
	available := uint64(len(b) - HeaderLen)
	switch {
	case available < uint64(length):
		return Packet{}, fmt.Errorf("%w: declared=%d available=%d", ErrIncompleteFrame, length, available)
	case available > uint64(length):
		return Packet{}, fmt.Errorf("%w: declared=%d available=%d", ErrMalformedFrame, length, available)
	}
	msg := make([]byte, length)
	copy(msg, b[HeaderLen:])
	return Packet{Method: method, Length: length, Message: msg}, nil
}

// ReadPacket reads exactly one frame from r. A stream that ends before any
// header byte returns io.EOF; one that ends mid-frame returns ErrIncompleteFrame.
func ReadPacket(r io.Reader, limits Limits) (Packet, error) {
	var head [HeaderLen]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, fmt.Errorf("%w: short header: %w", ErrIncompleteFrame, err)
		}
		return Packet{}, err
	}
	method, length := parseHeader(head[:])
	if err := limits.check(length); err != nil {
		return Packet{}, err
	}
	msg := make([]byte, length)
	if length > 0 {
		if n, err := io.ReadFull(r, msg); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Packet{}, fmt.Errorf("%w: declared=%d read=%d", ErrIncompleteFrame, length, n)
			}
			return Packet{}, err
		}
	}
	return Packet{Method: method, Length: length, Message: msg}, nil
}

// WritePacket writes p as one frame after checking the length invariant and limits.
func WritePacket(w io.Writer, p Packet, limits Limits) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := limits.check(p.Length); err != nil {
		return err
	}
	buf := make([]byte, HeaderLen+len(p.Message))
	putHeader(buf, p.Method, p.Length)
	copy(buf[HeaderLen:], p.Message)
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("frame: wrote %d of %d bytes: %w", n, len(buf), io.ErrShortWrite)
	}
	return nil
}

func putHeader(buf []byte, method uint8, length uint32) {
	buf[0] = method
	binary.BigEndian.PutUint32(buf[1:HeaderLen], length)
}

func parseHeader(b []byte) (uint8, uint32) {
	return b[0], binary.BigEndian.Uint32(b[1:HeaderLen])
}

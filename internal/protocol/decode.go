package protocol

import (
	"fmt"
	"io"

	"github.com/danmuck/clichat/internal/protocol/frame"
)

type decoderFunc func([]byte) (Message, error)

func adapt[T Message](fn func([]byte) (T, error)) decoderFunc {
	return func(b []byte) (Message, error) {
		msg, err := fn(b)
		if err != nil {
			return nil, err
		}
		return msg, nil
	}
}

var decoders = map[Method]decoderFunc{
	MethodChatMessage:         adapt(DecodeChatMessage),
	MethodVerifyRequest:       adapt(DecodeVerifyRequest),
	MethodVerifyResponse:      adapt(DecodeVerifyResponse),
	MethodSignupRequest:       adapt(DecodeSignupRequest),
	MethodSignupResponse:      adapt(DecodeSignupResponse),
	MethodPeerConnectRequest:  adapt(DecodePeerConnectRequest),
	MethodPeerConnectResponse: adapt(DecodePeerConnectResponse),
}

// Unpack resolves the packet's method and decodes its message. Unknown tags
// come back as an Unknown message, not an error.
func Unpack(p frame.Packet) (Message, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	method := MethodOf(p.Method)
	dec, ok := decoders[method]
	if !ok {
		body := make([]byte, len(p.Message))
		copy(body, p.Message)
		return Unknown{Tag: p.Method, Body: body}, nil
	}
	return dec(p.Message)
}

// Decode parses one complete packet buffer into a message.
func Decode(b []byte) (Message, error) {
	p, err := frame.Decode(b)
	if err != nil {
		return nil, err
	}
	return Unpack(p)
}

// ReadMessage reads and decodes one frame from r.
func ReadMessage(r io.Reader, limits frame.Limits) (Message, error) {
	p, err := frame.ReadPacket(r, limits)
	if err != nil {
		return nil, err
	}
	return Unpack(p)
}

// As decodes msg into the concrete kind T, failing if the method differs.
func As[T Message](msg Message) (T, error) {
	var zero T
	if msg == nil {
		return zero, fmt.Errorf("%w: nil message", ErrMethodMismatch)
	}
	out, ok := msg.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %s want %s", ErrMethodMismatch, msg.Method(), zero.Method())
	}
	return out, nil
}

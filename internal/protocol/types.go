package protocol

import (
	"fmt"
	"strconv"
)

// Method is the one-byte packet tag naming a message kind.
type Method uint8

// Method tags from the wire contract.
const (
	MethodChatMessage         Method = 0
	MethodVerifyRequest       Method = 1
	MethodVerifyResponse      Method = 2
	MethodSignupRequest       Method = 3
	MethodSignupResponse      Method = 4
	MethodPeerConnectRequest  Method = 5
	MethodPeerConnectResponse Method = 6
	MethodUnknown             Method = 0xff
)

// MethodOf maps a raw tag onto the closed method set. Unrecognized tags map to MethodUnknown.
func MethodOf(tag uint8) Method {
	switch m := Method(tag); m {
	case MethodChatMessage,
		MethodVerifyRequest,
		MethodVerifyResponse,
		MethodSignupRequest,
		MethodSignupResponse,
		MethodPeerConnectRequest,
		MethodPeerConnectResponse:
		return m
	default:
		return MethodUnknown
	}
}

func (m Method) Known() bool {
	return MethodOf(uint8(m)) != MethodUnknown
}

func (m Method) String() string {
	switch m {
	case MethodChatMessage:
		return "chat_message"
	case MethodVerifyRequest:
		return "verify_request"
	case MethodVerifyResponse:
		return "verify_response"
	case MethodSignupRequest:
		return "signup_request"
	case MethodSignupResponse:
		return "signup_response"
	case MethodPeerConnectRequest:
		return "peer_connect_request"
	case MethodPeerConnectResponse:
		return "peer_connect_response"
	default:
		return "unknown(" + strconv.Itoa(int(m)) + ")"
	}
}

// StatusCode is the advisory result byte carried by responses.
type StatusCode uint8

const (
	StatusSuccess StatusCode = 0
	StatusFailure StatusCode = 1
	StatusInvalid StatusCode = 0xff
)

// DecodeStatus maps a status byte onto {Success, Failure, Invalid}. It never fails.
func DecodeStatus(b byte) StatusCode {
	switch b {
	case 0:
		return StatusSuccess
	case 1:
		return StatusFailure
	default:
		return StatusInvalid
	}
}

func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusFailure:
		return "Failure"
	default:
		return "Invalid"
	}
}

// Message is one typed payload carried inside a packet.
type Message interface {
	// Method returns the packet tag for this kind.
	Method() Method
	// Length is the exact size of Encode's output.
	Length() int
	// Encode returns the on-wire bytes: fixed fields in order, then any payload.
	Encode() []byte
}

// Unknown carries a message whose tag is not in the registry. Receivers skip it.
type Unknown struct {
	Tag  uint8
	Body []byte
}

func (u Unknown) Method() Method { return MethodUnknown }
func (u Unknown) Length() int    { return len(u.Body) }

func (u Unknown) Encode() []byte {
	out := make([]byte, len(u.Body))
	copy(out, u.Body)
	return out
}

func (u Unknown) String() string {
	return fmt.Sprintf("Unknown{tag: %d, len: %d}", u.Tag, len(u.Body))
}

package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ChatMessageFixedLen covers the length prefix and both usernames.
const ChatMessageFixedLen = LengthPrefixLen + 2*UsernameLen

// ChatMessage is a chat line between two mutually connected users.
//
//	msg_length:u32 | sender[50] | receiver[50] | payload[msg_length]
type ChatMessage struct {
	Sender   Username
	Receiver Username
	Payload  []byte
}

// NewChatMessage builds a ChatMessage from display strings.
func NewChatMessage(sender, receiver, text string) (ChatMessage, error) {
	s, err := NewUsername(sender)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("sender: %w", err)
	}
	r, err := NewUsername(receiver)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("receiver: %w", err)
	}
	return ChatMessage{Sender: s, Receiver: r, Payload: []byte(text)}, nil
}

func (m ChatMessage) Method() Method { return MethodChatMessage }

func (m ChatMessage) Length() int {
	return ChatMessageFixedLen + len(m.Payload)
}

func (m ChatMessage) Encode() []byte {
	if uint64(len(m.Payload)) > math.MaxUint32 {
		panic("protocol: chat payload exceeds u32 length prefix")
	}
	buf := make([]byte, m.Length())
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(m.Payload)))
	copy(buf[4:4+UsernameLen], m.Sender[:])
	copy(buf[4+UsernameLen:ChatMessageFixedLen], m.Receiver[:])
	copy(buf[ChatMessageFixedLen:], m.Payload)
	return buf
}

// DecodeChatMessage reads one ChatMessage from the front of b. Bytes past the
// declared payload are ignored.
func DecodeChatMessage(b []byte) (ChatMessage, error) {
	if len(b) < ChatMessageFixedLen {
		return ChatMessage{}, shortBuffer("chat_message", ChatMessageFixedLen, len(b))
	}
	msgLen := binary.BigEndian.Uint32(b[0:4])
	rest := b[ChatMessageFixedLen:]
	if uint64(len(rest)) < uint64(msgLen) {
		return ChatMessage{}, FormatError{
			Kind:     "chat_message",
			Reason:   "payload shorter than length prefix",
			Expected: ChatMessageFixedLen + int(msgLen),
			Actual:   len(b),
		}
	}
	payload := make([]byte, msgLen)
	copy(payload, rest[:msgLen])
	return ChatMessage{
		Sender:   UsernameFromBytes(b[4:]),
		Receiver: UsernameFromBytes(b[4+UsernameLen:]),
		Payload:  payload,
	}, nil
}

// Text returns the payload as a string.
func (m ChatMessage) Text() string {
	return string(m.Payload)
}

func (m ChatMessage) String() string {
	return fmt.Sprintf("ChatMessage{msglen: %d, sender: %q, receiver: %q, payload: %q}",
		len(m.Payload), m.Sender.String(), m.Receiver.String(), string(m.Payload))
}

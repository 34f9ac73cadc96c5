package protocol

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Field widths shared by every codec.
const (
	UsernameLen     = 50
	TokenLen        = 32
	LengthPrefixLen = 4
	MethodLen       = 1
	StatusLen       = 1
)

// Username is a fixed-width, NUL-padded username field.
type Username [UsernameLen]byte

// NewUsername zero-pads name into a Username. Names longer than UsernameLen are rejected.
func NewUsername(name string) (Username, error) {
	var u Username
	if len(name) > UsernameLen {
		return u, fmt.Errorf("%w: %d bytes (max %d)", ErrUsernameTooLong, len(name), UsernameLen)
	}
	if bytes.IndexByte([]byte(name), 0) >= 0 {
		return u, ErrUsernameInvalid
	}
	copy(u[:], name)
	return u, nil
}

// MustUsername is NewUsername for compile-time constants and tests.
func MustUsername(name string) Username {
	u, err := NewUsername(name)
	if err != nil {
		panic(err)
	}
	return u
}

// String returns the display form, stopping at the first NUL byte.
func (u Username) String() string {
	if i := bytes.IndexByte(u[:], 0); i >= 0 {
		return string(u[:i])
	}
	return string(u[:])
}

// Canonical zeroes any bytes after the first NUL.
func (u Username) Canonical() Username {
	return UsernameFromBytes(u[:])
}

// IsZero reports whether the field holds no name.
func (u Username) IsZero() bool {
	return u == Username{}
}

// Token is an opaque 32-byte credential issued at signup.
type Token [TokenLen]byte

// NewToken returns a random token.
func NewToken() (Token, error) {
	var t Token
	if _, err := rand.Read(t[:]); err != nil {
		return Token{}, fmt.Errorf("protocol: generate token: %w", err)
	}
	return t, nil
}

// TokenFromBytes copies exactly TokenLen bytes into a Token.
func TokenFromBytes(b []byte) (Token, error) {
	var t Token
	if len(b) != TokenLen {
		return t, fmt.Errorf("%w: %d", ErrInvalidTokenSize, len(b))
	}
	copy(t[:], b)
	return t, nil
}

// String renders the token as 0x-prefixed hex.
func (t Token) String() string {
	return "0x" + hex.EncodeToString(t[:])
}

// UsernameFromBytes reads a Username from the first UsernameLen bytes of b.
// Bytes after the first NUL are zeroed, so two fields with the same display
// form always compare equal.
func UsernameFromBytes(b []byte) Username {
	var u Username
	n := copy(u[:], b[:UsernameLen])
	if i := bytes.IndexByte(u[:n], 0); i >= 0 {
		clear(u[i:])
	}
	return u
}

func readToken(b []byte) Token {
	var t Token
	copy(t[:], b[:TokenLen])
	return t
}

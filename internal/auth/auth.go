// Package auth issues and checks relay account tokens.
//
// It holds no routing or session state.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/clichat/internal/protocol"
)

var (
	ErrUnauthorized    = errors.New("auth: unauthorized")
	ErrUsernameTaken   = errors.New("auth: username taken")
	ErrInvalidUsername = errors.New("auth: invalid username")
)

// Validator checks a presented credential.
type Validator interface {
	Validate(user protocol.Username, token protocol.Token) error
}

// Accounts is an in-memory username to token table. Safe for concurrent use.
type Accounts struct {
	mu       sync.RWMutex
	tokens   map[protocol.Username]protocol.Token
	newToken func() (protocol.Token, error)
}

var _ Validator = (*Accounts)(nil)

func NewAccounts() *Accounts {
	return &Accounts{
		tokens:   make(map[protocol.Username]protocol.Token),
		newToken: protocol.NewToken,
	}
}

// Issue creates an account for user and returns its token.
func (a *Accounts) Issue(user protocol.Username) (protocol.Token, error) {
	user = user.Canonical()
	if user.IsZero() {
		return protocol.Token{}, ErrInvalidUsername
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, taken := a.tokens[user]; taken {
		return protocol.Token{}, fmt.Errorf("%w: %q", ErrUsernameTaken, user.String())
	}
	token, err := a.newToken()
	if err != nil {
		return protocol.Token{}, err
	}
	a.tokens[user] = token
	return token, nil
}

// Validate compares token against the stored one in constant time.
func (a *Accounts) Validate(user protocol.Username, token protocol.Token) error {
	a.mu.RLock()
	want, ok := a.tokens[user.Canonical()]
	a.mu.RUnlock()
	if !ok {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(want[:], token[:]) != 1 {
		return ErrUnauthorized
	}
	return nil
}

func (a *Accounts) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.tokens)
}

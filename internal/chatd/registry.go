package chatd

import (
	"errors"
	"sort"
	"sync"

	"github.com/danmuck/clichat/internal/auth"
	"github.com/danmuck/clichat/internal/protocol"
)

// registry pairs account credentials with the verified connection for each
// online user.
type registry struct {
	accounts *auth.Accounts

	mu     sync.Mutex
	online map[protocol.Username]*peerConn
}

func newRegistry() *registry {
	return &registry{
		accounts: auth.NewAccounts(),
		online:   make(map[protocol.Username]*peerConn),
	}
}

// signup issues a token for an unused, non-empty username. ok is false for a
// refused name; err is reserved for token generation failures.
func (r *registry) signup(user protocol.Username) (protocol.Token, bool, error) {
	token, err := r.accounts.Issue(user)
	switch {
	case err == nil:
		return token, true, nil
	case errors.Is(err, auth.ErrUsernameTaken), errors.Is(err, auth.ErrInvalidUsername):
		return protocol.Token{}, false, nil
	default:
		return protocol.Token{}, false, err
	}
}

func (r *registry) verify(user protocol.Username, token protocol.Token) bool {
	return r.accounts.Validate(user, token) == nil
}

// bind routes user to pc, displacing any earlier connection for that user.
func (r *registry) bind(user protocol.Username, pc *peerConn) (displaced *peerConn, online int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user = user.Canonical()
	if prev, ok := r.online[user]; ok && prev != pc {
		displaced = prev
	}
	r.online[user] = pc
	return displaced, len(r.online)
}

// unbind removes the route only if it still points at pc.
func (r *registry) unbind(user protocol.Username, pc *peerConn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.online[user.Canonical()]; ok && cur == pc {
		delete(r.online, user.Canonical())
	}
	return len(r.online)
}

func (r *registry) route(user protocol.Username) (*peerConn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pc, ok := r.online[user.Canonical()]
	return pc, ok
}

func (r *registry) counts() (accounts, online int) {
	r.mu.Lock()
	online = len(r.online)
	r.mu.Unlock()
	return r.accounts.Len(), online
}

func (r *registry) onlineUsers() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.online))
	for u := range r.online {
		out = append(out, u.String())
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

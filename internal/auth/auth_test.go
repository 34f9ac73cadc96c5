package auth

import (
	"errors"
	"testing"

	"github.com/danmuck/clichat/internal/protocol"
	"github.com/danmuck/clichat/internal/testutil/testlog"
)

func TestAccountsIssueAndValidate(t *testing.T) {
	testlog.Start(t)
	a := NewAccounts()
	harry := protocol.MustUsername("harry")

	token, err := a.Issue(harry)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := a.Issue(harry); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if _, err := a.Issue(protocol.Username{}); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}

	var wrong protocol.Token
	wrong[0] = token[0] ^ 0xff
	tests := []struct {
		name    string
		user    protocol.Username
		token   protocol.Token
		wantErr error
	}{
		{name: "matching token accepted", user: harry, token: token, wantErr: nil},
		{name: "mismatched token denied", user: harry, token: wrong, wantErr: ErrUnauthorized},
		{name: "unknown user denied", user: protocol.MustUsername("eddie"), token: token, wantErr: ErrUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			testlog.Start(t)
			err := a.Validate(tc.user, tc.token)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
	if a.Len() != 1 {
		t.Fatalf("accounts=%d", a.Len())
	}
}

func TestIssuePropagatesTokenFailure(t *testing.T) {
	testlog.Start(t)
	a := NewAccounts()
	boom := errors.New("entropy exhausted")
	a.newToken = func() (protocol.Token, error) { return protocol.Token{}, boom }
	if _, err := a.Issue(protocol.MustUsername("harry")); !errors.Is(err, boom) {
		t.Fatalf("expected token error, got %v", err)
	}
	if a.Len() != 0 {
		t.Fatalf("failed issue must not create an account")
	}
}

func TestAccountsKeyOnDisplayName(t *testing.T) {
	testlog.Start(t)
	a := NewAccounts()
	alice := protocol.MustUsername("alice")
	shadow := alice
	copy(shadow[len("alice")+1:], "evil")

	token, err := a.Issue(alice)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := a.Issue(shadow); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken for shadowed name, got %v", err)
	}
	if err := a.Validate(shadow, token); err != nil {
		t.Fatalf("validate shadowed name: %v", err)
	}
	if a.Len() != 1 {
		t.Fatalf("accounts=%d want 1", a.Len())
	}
}

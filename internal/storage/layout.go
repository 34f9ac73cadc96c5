package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/clichat/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRootName = ".cli_chat"
	UsernameFile    = "username"
	TokenFile       = "token"
	PeerListFile    = "connections-list"
	ConnectionsDir  = "connections"
	LogFilePrefix   = "conn_"
)

// Layout resolves paths inside one profile root.
type Layout struct {
	Root string
}

// DefaultRoot returns ~/.cli_chat.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("storage: resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultRootName), nil
}

func (l Layout) UsernamePath() string   { return filepath.Join(l.Root, UsernameFile) }
func (l Layout) TokenPath() string      { return filepath.Join(l.Root, TokenFile) }
func (l Layout) PeerListPath() string   { return filepath.Join(l.Root, PeerListFile) }
func (l Layout) ConnectionsDir() string { return filepath.Join(l.Root, ConnectionsDir) }

// LogPath is the ConnectionLog file for peer.
func (l Layout) LogPath(peer protocol.Username) string {
	return filepath.Join(l.ConnectionsDir(), LogID(peer))
}

// LogID derives the log file name from the username, so it is stable across
// process lifetimes and independent of insertion order.
func LogID(peer protocol.Username) string {
	sum := sha256.Sum256([]byte(peer.String()))
	return LogFilePrefix + hex.EncodeToString(sum[:])
}

// Init creates a fresh profile tree. An existing root is never overwritten.
func Init(root string, username protocol.Username, token protocol.Token) (Layout, error) {
	l := Layout{Root: strings.TrimSpace(root)}
	if l.Root == "" {
		return Layout{}, fmt.Errorf("storage: empty profile root")
	}
	if username.IsZero() {
		return Layout{}, ErrInvalidPeer
	}
	if err := os.Mkdir(l.Root, 0o700); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Layout{}, fmt.Errorf("%w: %s", ErrProfileExists, l.Root)
		}
		return Layout{}, fmt.Errorf("storage: create root: %w", err)
	}
	if err := writeNewFile(l.UsernamePath(), username[:]); err != nil {
		return Layout{}, err
	}
	if err := writeNewFile(l.TokenPath(), token[:]); err != nil {
		return Layout{}, err
	}
	if err := writeNewFile(l.PeerListPath(), nil); err != nil {
		return Layout{}, err
	}
	if err := os.Mkdir(l.ConnectionsDir(), 0o700); err != nil {
		return Layout{}, fmt.Errorf("storage: create connections dir: %w", err)
	}
	log.Debug().Str("root", l.Root).Str("username", username.String()).Msg("storage.Init profile created")
	return l, nil
}

// Open validates an existing profile tree.
func Open(root string) (Layout, error) {
	l := Layout{Root: strings.TrimSpace(root)}
	for _, p := range []string{l.Root, l.ConnectionsDir()} {
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Layout{}, fmt.Errorf("%w: %s", ErrNoProfile, p)
			}
			return Layout{}, fmt.Errorf("storage: stat %s: %w", p, err)
		}
		if !info.IsDir() {
			return Layout{}, fmt.Errorf("%w: %s is not a directory", ErrNoProfile, p)
		}
	}
	for _, p := range []string{l.UsernamePath(), l.TokenPath(), l.PeerListPath()} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Layout{}, fmt.Errorf("%w: %s", ErrNoProfile, p)
			}
			return Layout{}, fmt.Errorf("storage: stat %s: %w", p, err)
		}
	}
	return l, nil
}

// ReadIdentity returns the stored username and token.
func (l Layout) ReadIdentity() (protocol.Username, protocol.Token, error) {
	var u protocol.Username
	var t protocol.Token
	raw, err := os.ReadFile(l.UsernamePath())
	if err != nil {
		return u, t, fmt.Errorf("storage: read username: %w", err)
	}
	if len(raw) != protocol.UsernameLen {
		return u, t, fmt.Errorf("storage: username file has %d bytes, want %d", len(raw), protocol.UsernameLen)
	}
	u = protocol.UsernameFromBytes(raw)

	raw, err = os.ReadFile(l.TokenPath())
	if err != nil {
		return u, t, fmt.Errorf("storage: read token: %w", err)
	}
	t, err = protocol.TokenFromBytes(raw)
	if err != nil {
		return u, t, fmt.Errorf("storage: token file: %w", err)
	}
	return u, t, nil
}

func writeNewFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", filepath.Base(path), err)
	}
	if err := writeFull(f, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("storage: write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", filepath.Base(path), err)
	}
	return nil
}

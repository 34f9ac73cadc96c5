package storage

import (
	"errors"
	"fmt"

	"github.com/danmuck/clichat/internal/protocol"
)

// corruptError marks on-disk damage; it matches protocol.ErrFormat so
// protocol.IsFormatError classifies it with wire format errors.
type corruptError string

func (e corruptError) Error() string { return string(e) }

func (e corruptError) Is(target error) bool { return target == protocol.ErrFormat }

var (
	ErrCorruptLog      error = corruptError("storage: corrupt connection log")
	ErrCorruptPeerList error = corruptError("storage: corrupt peer list")
	ErrEmptyPayload    = errors.New("storage: empty chat payload")
	ErrPeerExists      = errors.New("storage: peer already exists")
	ErrUnknownPeer     = errors.New("storage: unknown peer")
	ErrInvalidPeer     = errors.New("storage: invalid peer username")
	ErrProfileExists   = errors.New("storage: profile already exists")
	ErrNoProfile       = errors.New("storage: profile not found")
)

// DivergenceError reports a peer list entry without a log file, or a log file
// without a peer list entry.
type DivergenceError struct {
	Peer string
	File string
	// MissingLog is true when the peer is listed but its log file is absent.
	MissingLog bool
}

func (e DivergenceError) Error() string {
	if e.MissingLog {
		return fmt.Sprintf("storage: peer %q listed but log %s missing", e.Peer, e.File)
	}
	return fmt.Sprintf("storage: log %s has no listed peer", e.File)
}

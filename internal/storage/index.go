package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/danmuck/clichat/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Index maps each established peer to its log identifier. Every listed peer
// has a log file and every log file has a listed peer.
type Index struct {
	layout Layout
	ids    map[protocol.Username]string
	order  []protocol.Username
}

// LoadIndex replays the peer list and checks it against connections/.
func LoadIndex(layout Layout) (*Index, error) {
	raw, err := os.ReadFile(layout.PeerListPath())
	if err != nil {
		return nil, fmt.Errorf("storage: read peer list: %w", err)
	}
	if rem := len(raw) % protocol.UsernameLen; rem != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d records",
			ErrCorruptPeerList, rem, len(raw)/protocol.UsernameLen)
	}

	idx := &Index{
		layout: layout,
		ids:    make(map[protocol.Username]string, len(raw)/protocol.UsernameLen),
	}
	for off := 0; off < len(raw); off += protocol.UsernameLen {
		peer := protocol.UsernameFromBytes(raw[off : off+protocol.UsernameLen])
		if peer.IsZero() {
			return nil, fmt.Errorf("%w: empty record at offset %d", ErrCorruptPeerList, off)
		}
		if _, dup := idx.ids[peer]; dup {
			return nil, fmt.Errorf("%w: duplicate peer %q", ErrCorruptPeerList, peer.String())
		}
		idx.ids[peer] = LogID(peer)
		idx.order = append(idx.order, peer)
	}

	if err := idx.checkDisk(); err != nil {
		return nil, err
	}
	log.Debug().Str("root", layout.Root).Int("peers", len(idx.order)).Msg("storage.LoadIndex loaded")
	return idx, nil
}

func (x *Index) checkDisk() error {
	listed := make(map[string]protocol.Username, len(x.ids))
	for _, peer := range x.order {
		id := x.ids[peer]
		listed[id] = peer
		if _, err := os.Stat(x.layout.LogPath(peer)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return DivergenceError{Peer: peer.String(), File: id, MissingLog: true}
			}
			return fmt.Errorf("storage: stat log for %q: %w", peer.String(), err)
		}
	}
	entries, err := os.ReadDir(x.layout.ConnectionsDir())
	if err != nil {
		return fmt.Errorf("storage: list connections: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, LogFilePrefix) {
			continue
		}
		if _, ok := listed[name]; !ok {
			return DivergenceError{File: name}
		}
	}
	return nil
}

// AddPeer creates the peer's log, records it in the peer list and indexes it.
// On failure the disk is rolled back to its prior state.
func (x *Index) AddPeer(peer protocol.Username) error {
	peer = peer.Canonical()
	if peer.IsZero() {
		return ErrInvalidPeer
	}
	if _, ok := x.ids[peer]; ok {
		return fmt.Errorf("%w: %q", ErrPeerExists, peer.String())
	}

	logPath := x.layout.LogPath(peer)
	lf, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("storage: create log for %q: %w", peer.String(), err)
	}
	if err := lf.Close(); err != nil {
		_ = os.Remove(logPath)
		return fmt.Errorf("storage: close new log for %q: %w", peer.String(), err)
	}

	if err := x.appendRecord(peer); err != nil {
		if rmErr := os.Remove(logPath); rmErr != nil {
			log.Warn().Err(rmErr).Str("peer", peer.String()).Msg("storage.AddPeer rollback left log behind")
		}
		return err
	}

	x.ids[peer] = LogID(peer)
	x.order = append(x.order, peer)
	log.Info().Str("peer", peer.String()).Str("log", x.ids[peer]).Msg("storage.AddPeer peer added")
	return nil
}

// AddPeerName is AddPeer for a display name.
func (x *Index) AddPeerName(name string) error {
	peer, err := protocol.NewUsername(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPeer, err)
	}
	return x.AddPeer(peer)
}

func (x *Index) appendRecord(peer protocol.Username) error {
	f, err := os.OpenFile(x.layout.PeerListPath(), os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("storage: open peer list: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("storage: stat peer list: %w", err)
	}
	prior := info.Size()
	if err := writeFull(f, peer[:]); err != nil {
		if trErr := f.Truncate(prior); trErr != nil {
			log.Warn().Err(trErr).Int64("size", prior).Msg("storage.AddPeer peer list truncate failed")
		}
		return fmt.Errorf("storage: append peer %q: %w", peer.String(), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Truncate(prior)
		return fmt.Errorf("storage: sync peer list: %w", err)
	}
	return nil
}

// Lookup returns the log identifier for peer.
func (x *Index) Lookup(peer protocol.Username) (string, bool) {
	id, ok := x.ids[peer.Canonical()]
	return id, ok
}

// Has reports whether peer is established.
func (x *Index) Has(peer protocol.Username) bool {
	_, ok := x.ids[peer.Canonical()]
	return ok
}

// Peers lists peers in establishment order.
func (x *Index) Peers() []protocol.Username {
	out := make([]protocol.Username, len(x.order))
	copy(out, x.order)
	return out
}

// Log returns the ConnectionLog for an established peer.
func (x *Index) Log(peer protocol.Username) (*ConnectionLog, error) {
	peer = peer.Canonical()
	if _, ok := x.ids[peer]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPeer, peer.String())
	}
	return OpenLog(x.layout, peer), nil
}

func (x *Index) Len() int { return len(x.order) }

func (x *Index) Layout() Layout { return x.layout }

package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/clichat/internal/protocol"
	"github.com/danmuck/clichat/internal/testutil/testlog"
)

func newProfile(t *testing.T, owner string) Layout {
	t.Helper()
	token, err := protocol.NewToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	layout, err := Init(filepath.Join(t.TempDir(), "profile"), protocol.MustUsername(owner), token)
	if err != nil {
		t.Fatalf("init profile: %v", err)
	}
	return layout
}

func newIndex(t *testing.T, owner string, peers ...string) *Index {
	t.Helper()
	idx, err := LoadIndex(newProfile(t, owner))
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	for _, p := range peers {
		if err := idx.AddPeerName(p); err != nil {
			t.Fatalf("add peer %q: %v", p, err)
		}
	}
	return idx
}

func chat(t *testing.T, sender, receiver, text string) protocol.ChatMessage {
	t.Helper()
	msg, err := protocol.NewChatMessage(sender, receiver, text)
	if err != nil {
		t.Fatalf("chat message: %v", err)
	}
	return msg
}

func sameMessage(a, b protocol.ChatMessage) bool {
	return a.Sender == b.Sender && a.Receiver == b.Receiver && bytes.Equal(a.Payload, b.Payload)
}

func appendRaw(t *testing.T, path string, data []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLogRoundTrip(t *testing.T) {
	testlog.Start(t)
	idx := newIndex(t, "harry", "eddie")
	eddie := protocol.MustUsername("eddie")
	cl, err := idx.Log(eddie)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	want := []protocol.ChatMessage{
		chat(t, "harry", "eddie", "hi"),
		chat(t, "eddie", "harry", "hello harry"),
		chat(t, "harry", "eddie", string(bytes.Repeat([]byte{'x'}, 4096))),
	}
	for _, m := range want {
		if err := cl.Append(m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := cl.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries want %d", len(got), len(want))
	}
	for i := range want {
		if !sameMessage(got[i], want[i]) {
			t.Fatalf("entry %d = %s want %s", i, got[i], want[i])
		}
	}

	again, err := cl.ReadAll()
	if err != nil || len(again) != len(want) {
		t.Fatalf("second read: n=%d err=%v", len(again), err)
	}
}

func TestEncodeRecordLayout(t *testing.T) {
	testlog.Start(t)
	rec, err := EncodeRecord(chat(t, "a", "b", "xyz"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(rec) != RecordHeaderLen+2*protocol.UsernameLen+3 {
		t.Fatalf("record len=%d", len(rec))
	}
	if !bytes.Equal(rec[:4], Delimiter[:]) {
		t.Fatalf("delimiter=%x", rec[:4])
	}
	if n := binary.BigEndian.Uint32(rec[4:8]); n != 3 {
		t.Fatalf("length prefix=%d", n)
	}
	if rec[8] != 'a' || rec[8+protocol.UsernameLen] != 'b' {
		t.Fatalf("usernames misplaced")
	}
	if string(rec[len(rec)-3:]) != "xyz" {
		t.Fatalf("payload=%q", rec[len(rec)-3:])
	}
}

func TestReadAllDropsTruncatedTail(t *testing.T) {
	full, err := EncodeRecord(chat(t, "harry", "eddie", "partial"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	hugeLen := make([]byte, RecordHeaderLen)
	copy(hugeLen, Delimiter[:])
	binary.BigEndian.PutUint32(hugeLen[4:], 0x7fffffff)

	cases := []struct {
		name string
		tail []byte
	}{
		{"delimiter only", Delimiter[:]},
		{"partial delimiter", Delimiter[:2]},
		{"partial length", full[:6]},
		{"partial usernames", full[:RecordHeaderLen+20]},
		{"partial payload", full[:len(full)-1]},
		{"length past end of file", hugeLen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testlog.Start(t)
			idx := newIndex(t, "harry", "eddie")
			cl, _ := idx.Log(protocol.MustUsername("eddie"))
			first := chat(t, "harry", "eddie", "first")
			second := chat(t, "eddie", "harry", "second")
			for _, m := range []protocol.ChatMessage{first, second} {
				if err := cl.Append(m); err != nil {
					t.Fatalf("append: %v", err)
				}
			}
			appendRaw(t, cl.Path(), tc.tail)

			got, err := cl.ReadAll()
			if err != nil {
				t.Fatalf("truncated tail must not be an error: %v", err)
			}
			if len(got) != 2 || !sameMessage(got[0], first) || !sameMessage(got[1], second) {
				t.Fatalf("unexpected entries: %v", got)
			}
		})
	}
}

func TestReadAllRejectsCorruption(t *testing.T) {
	zeroLen := make([]byte, RecordHeaderLen+2*protocol.UsernameLen)
	copy(zeroLen, Delimiter[:])

	cases := []struct {
		name string
		tail []byte
	}{
		{"bad delimiter", []byte{0x00, 0x00, 0x00, 0x05, 'j', 'u', 'n', 'k'}},
		{"zero length", zeroLen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testlog.Start(t)
			idx := newIndex(t, "harry", "eddie")
			cl, _ := idx.Log(protocol.MustUsername("eddie"))
			if err := cl.Append(chat(t, "harry", "eddie", "ok")); err != nil {
				t.Fatalf("append: %v", err)
			}
			appendRaw(t, cl.Path(), tc.tail)

			got, err := cl.ReadAll()
			if !errors.Is(err, ErrCorruptLog) {
				t.Fatalf("expected ErrCorruptLog, got %v", err)
			}
			if !protocol.IsFormatError(err) {
				t.Fatalf("corrupt log should classify as a format error")
			}
			if len(got) != 1 {
				t.Fatalf("entries before corruption=%d want 1", len(got))
			}
		})
	}
}

func TestAppendRejectsEmptyPayload(t *testing.T) {
	testlog.Start(t)
	idx := newIndex(t, "harry", "eddie")
	cl, _ := idx.Log(protocol.MustUsername("eddie"))
	if err := cl.Append(chat(t, "harry", "eddie", "")); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
	info, err := os.Stat(cl.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("log should stay empty, size=%d", info.Size())
	}
}

func TestAppendMissingLogFails(t *testing.T) {
	testlog.Start(t)
	layout := newProfile(t, "harry")
	cl := OpenLog(layout, protocol.MustUsername("stranger"))
	err := cl.Append(chat(t, "harry", "stranger", "boo"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if _, err := os.Stat(cl.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("append must not create the log")
	}
}

func TestAddPeerPersists(t *testing.T) {
	testlog.Start(t)
	idx := newIndex(t, "harry")
	kerry := protocol.MustUsername("kerry")
	if err := idx.AddPeer(kerry); err != nil {
		t.Fatalf("add peer: %v", err)
	}

	list, err := os.ReadFile(idx.Layout().PeerListPath())
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	if !bytes.Equal(list, kerry[:]) {
		t.Fatalf("peer list=%q", list)
	}
	if _, err := os.Stat(idx.Layout().LogPath(kerry)); err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	id, ok := idx.Lookup(kerry)
	if !ok || id != LogID(kerry) {
		t.Fatalf("lookup=%q,%v", id, ok)
	}

	if err := idx.AddPeer(kerry); !errors.Is(err, ErrPeerExists) {
		t.Fatalf("expected ErrPeerExists, got %v", err)
	}
	list, _ = os.ReadFile(idx.Layout().PeerListPath())
	if len(list) != protocol.UsernameLen {
		t.Fatalf("re-add must not append, list len=%d", len(list))
	}

	reloaded, err := LoadIndex(idx.Layout())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Len() != 1 || !reloaded.Has(kerry) {
		t.Fatalf("reloaded peers=%v", reloaded.Peers())
	}
	if err := reloaded.AddPeer(kerry); !errors.Is(err, ErrPeerExists) {
		t.Fatalf("expected ErrPeerExists after reload, got %v", err)
	}
}

func TestPeersKeepEstablishmentOrder(t *testing.T) {
	testlog.Start(t)
	idx := newIndex(t, "harry", "zed", "amy", "kerry")
	reloaded, err := LoadIndex(idx.Layout())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	var names []string
	for _, p := range reloaded.Peers() {
		names = append(names, p.String())
	}
	if len(names) != 3 || names[0] != "zed" || names[1] != "amy" || names[2] != "kerry" {
		t.Fatalf("order=%v", names)
	}
}

func TestAddPeerRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	idx := newIndex(t, "harry")
	if err := idx.AddPeer(protocol.Username{}); !errors.Is(err, ErrInvalidPeer) {
		t.Fatalf("empty name: expected ErrInvalidPeer, got %v", err)
	}
	long := string(bytes.Repeat([]byte{'k'}, protocol.UsernameLen+1))
	err := idx.AddPeerName(long)
	if !errors.Is(err, ErrInvalidPeer) || !errors.Is(err, protocol.ErrUsernameTooLong) {
		t.Fatalf("long name: got %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("no peer should be added")
	}
}

func TestAddPeerRollsBackOnListFailure(t *testing.T) {
	testlog.Start(t)
	idx := newIndex(t, "harry")
	listPath := idx.Layout().PeerListPath()
	if err := os.Remove(listPath); err != nil {
		t.Fatalf("remove list: %v", err)
	}
	// A directory in place of the list makes the append fail.
	if err := os.Mkdir(listPath, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	kerry := protocol.MustUsername("kerry")
	if err := idx.AddPeer(kerry); err == nil {
		t.Fatalf("expected add to fail")
	}
	if idx.Has(kerry) || idx.Len() != 0 {
		t.Fatalf("failed add must not index the peer")
	}
	if _, err := os.Stat(idx.Layout().LogPath(kerry)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("log file should be removed, stat err=%v", err)
	}
}

func TestAddPeerRefusesExistingLogFile(t *testing.T) {
	testlog.Start(t)
	idx := newIndex(t, "harry")
	kerry := protocol.MustUsername("kerry")
	if err := os.WriteFile(idx.Layout().LogPath(kerry), nil, 0o600); err != nil {
		t.Fatalf("seed log: %v", err)
	}
	if err := idx.AddPeer(kerry); !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected exist error, got %v", err)
	}
	list, _ := os.ReadFile(idx.Layout().PeerListPath())
	if len(list) != 0 {
		t.Fatalf("peer list must stay empty, len=%d", len(list))
	}
}

func TestLoadIndexDetectsDivergence(t *testing.T) {
	t.Run("missing log", func(t *testing.T) {
		testlog.Start(t)
		idx := newIndex(t, "harry", "kerry")
		kerry := protocol.MustUsername("kerry")
		if err := os.Remove(idx.Layout().LogPath(kerry)); err != nil {
			t.Fatalf("remove: %v", err)
		}
		_, err := LoadIndex(idx.Layout())
		var div DivergenceError
		if !errors.As(err, &div) || !div.MissingLog || div.Peer != "kerry" {
			t.Fatalf("expected missing-log divergence, got %v", err)
		}
	})
	t.Run("orphan log", func(t *testing.T) {
		testlog.Start(t)
		idx := newIndex(t, "harry", "kerry")
		orphan := idx.Layout().LogPath(protocol.MustUsername("nobody"))
		if err := os.WriteFile(orphan, nil, 0o600); err != nil {
			t.Fatalf("write orphan: %v", err)
		}
		_, err := LoadIndex(idx.Layout())
		var div DivergenceError
		if !errors.As(err, &div) || div.MissingLog || div.File != filepath.Base(orphan) {
			t.Fatalf("expected orphan divergence, got %v", err)
		}
	})
	t.Run("unrelated files ignored", func(t *testing.T) {
		testlog.Start(t)
		idx := newIndex(t, "harry", "kerry")
		if err := os.WriteFile(filepath.Join(idx.Layout().ConnectionsDir(), "notes.txt"), []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadIndex(idx.Layout()); err != nil {
			t.Fatalf("load: %v", err)
		}
	})
}

func TestLoadIndexRejectsCorruptList(t *testing.T) {
	kerry := protocol.MustUsername("kerry")
	kerryShadow := shadowed("kerry", "x")
	cases := []struct {
		name string
		list []byte
	}{
		{"partial record", append(kerry[:], 'x')},
		{"duplicate", append(append([]byte{}, kerry[:]...), kerry[:]...)},
		{"empty record", make([]byte, protocol.UsernameLen)},
		{"duplicate after NUL", append(append([]byte{}, kerry[:]...), kerryShadow[:]...)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testlog.Start(t)
			layout := newProfile(t, "harry")
			if err := os.WriteFile(layout.PeerListPath(), tc.list, 0o600); err != nil {
				t.Fatalf("write list: %v", err)
			}
			if _, err := LoadIndex(layout); !errors.Is(err, ErrCorruptPeerList) {
				t.Fatalf("expected ErrCorruptPeerList, got %v", err)
			}
		})
	}
}

func shadowed(name, junk string) protocol.Username {
	u := protocol.MustUsername(name)
	copy(u[len(name)+1:], junk)
	return u
}

func TestIndexKeysIgnoreBytesAfterNUL(t *testing.T) {
	testlog.Start(t)
	alice := protocol.MustUsername("alice")
	shadow := shadowed("alice", "evil")

	idx := newIndex(t, "bob")
	if err := idx.AddPeer(shadow); err != nil {
		t.Fatalf("add shadowed peer: %v", err)
	}
	if !idx.Has(alice) || !idx.Has(shadow) {
		t.Fatalf("alice should be established under both forms")
	}
	if peers := idx.Peers(); len(peers) != 1 || peers[0] != alice {
		t.Fatalf("peers=%v", peers)
	}
	if err := idx.AddPeer(alice); !errors.Is(err, ErrPeerExists) {
		t.Fatalf("expected ErrPeerExists, got %v", err)
	}
	list, err := os.ReadFile(idx.Layout().PeerListPath())
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	if !bytes.Equal(list, alice[:]) {
		t.Fatalf("peer list should hold the canonical name, got %q", list)
	}

	layout := newProfile(t, "carol")
	if err := os.WriteFile(layout.PeerListPath(), shadow[:], 0o600); err != nil {
		t.Fatalf("write list: %v", err)
	}
	if err := os.WriteFile(layout.LogPath(alice), nil, 0o600); err != nil {
		t.Fatalf("write log: %v", err)
	}
	loaded, err := LoadIndex(layout)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Has(alice) || loaded.Peers()[0] != alice {
		t.Fatalf("loaded peers=%v", loaded.Peers())
	}
}

func TestLogUnknownPeer(t *testing.T) {
	testlog.Start(t)
	idx := newIndex(t, "harry")
	if _, err := idx.Log(protocol.MustUsername("eddie")); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("expected ErrUnknownPeer, got %v", err)
	}
}

func TestLogIDDerivedFromUsername(t *testing.T) {
	testlog.Start(t)
	a := LogID(protocol.MustUsername("kerry"))
	if a != LogID(protocol.MustUsername("kerry")) {
		t.Fatalf("log id must be stable")
	}
	if a == LogID(protocol.MustUsername("eddie")) {
		t.Fatalf("distinct peers must not share a log id")
	}
	if len(a) != len(LogFilePrefix)+64 || a[:len(LogFilePrefix)] != LogFilePrefix {
		t.Fatalf("log id=%q", a)
	}
}

func TestChatScenarioHarryToEddie(t *testing.T) {
	testlog.Start(t)
	idx := newIndex(t, "harry", "eddie")
	orig := chat(t, "harry", "eddie", "hi")

	raw, err := protocol.Encode(orig)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg, err := protocol.As[protocol.ChatMessage](decoded)
	if err != nil {
		t.Fatalf("as chat: %v", err)
	}

	cl, err := idx.Log(msg.Receiver)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := cl.Append(msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := cl.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(got) != 1 || !sameMessage(got[0], orig) {
		t.Fatalf("entries=%v", got)
	}
}

func TestProfileLifecycle(t *testing.T) {
	testlog.Start(t)
	root := filepath.Join(t.TempDir(), "profile")
	token, _ := protocol.NewToken()
	if _, err := Init(root, protocol.MustUsername("harry"), token); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := Init(root, protocol.MustUsername("harry"), token); !errors.Is(err, ErrProfileExists) {
		t.Fatalf("expected ErrProfileExists, got %v", err)
	}

	layout, err := Open(root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	user, tok, err := layout.ReadIdentity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if user.String() != "harry" || tok != token {
		t.Fatalf("identity=%q %s", user, tok)
	}

	if err := os.WriteFile(layout.TokenPath(), []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	if _, _, err := layout.ReadIdentity(); !errors.Is(err, protocol.ErrInvalidTokenSize) {
		t.Fatalf("expected short token error, got %v", err)
	}
}

func TestOpenMissingProfile(t *testing.T) {
	testlog.Start(t)
	if _, err := Open(filepath.Join(t.TempDir(), "absent")); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %v", err)
	}
}

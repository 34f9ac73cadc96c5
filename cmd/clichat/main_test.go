package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/clichat/internal/protocol"
	"github.com/danmuck/clichat/internal/protocol/session"
	"github.com/danmuck/clichat/internal/storage"
	"github.com/danmuck/clichat/internal/testutil/testlog"
)

func TestParseFlagsOverridesConfig(t *testing.T) {
	testlog.Start(t)
	opts, rest := parseFlags([]string{"-root", "/tmp/kerry", "-server", "10.0.0.1:7878", "send", "eddie", "hi"})
	if strings.Join(rest, " ") != "send eddie hi" {
		t.Fatalf("rest=%v", rest)
	}
	cfg, err := resolveConfig(opts)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Root != "/tmp/kerry" || cfg.ServerAddr != "10.0.0.1:7878" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLookupCommands(t *testing.T) {
	testlog.Start(t)
	for _, name := range []string{"signup", "connect", "send", "listen", "history", "peers"} {
		if _, ok := lookup(name); !ok {
			t.Fatalf("missing command %q", name)
		}
	}
	if _, ok := lookup("chat"); ok {
		t.Fatalf("unexpected command")
	}
}

func TestParsePeer(t *testing.T) {
	testlog.Start(t)
	if _, err := parsePeer("  "); !errors.Is(err, errUsage) {
		t.Fatalf("blank peer: %v", err)
	}
	if _, err := parsePeer(strings.Repeat("x", protocol.UsernameLen+1)); !errors.Is(err, protocol.ErrUsernameTooLong) {
		t.Fatalf("long peer: %v", err)
	}
	u, err := parsePeer(" eddie ")
	if err != nil || u.String() != "eddie" {
		t.Fatalf("peer=%q err=%v", u, err)
	}
}

func TestHistoryRowsMarkSelf(t *testing.T) {
	testlog.Start(t)
	harry := protocol.MustUsername("harry")
	out, _ := protocol.NewChatMessage("harry", "eddie", "hi")
	in, _ := protocol.NewChatMessage("eddie", "harry", "hello")
	rows := historyRows([]protocol.ChatMessage{out, in}, harry)
	if len(rows) != 3 {
		t.Fatalf("rows=%v", rows)
	}
	if rows[1][1] != "you" || rows[1][2] != "hi" || rows[2][1] != "eddie" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestPeerRowsFollowIndexOrder(t *testing.T) {
	testlog.Start(t)
	token, _ := protocol.NewToken()
	layout, err := storage.Init(filepath.Join(t.TempDir(), "p"), protocol.MustUsername("harry"), token)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	idx, err := storage.LoadIndex(layout)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	for _, p := range []string{"kerry", "eddie"} {
		if err := idx.AddPeerName(p); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	rows := peerRows(idx)
	if len(rows) != 3 || rows[1][1] != "kerry" || rows[2][1] != "eddie" {
		t.Fatalf("rows=%v", rows)
	}
	if rows[1][2] != storage.LogID(protocol.MustUsername("kerry")) {
		t.Fatalf("log id=%q", rows[1][2])
	}
}

func TestDescribeEvent(t *testing.T) {
	testlog.Start(t)
	chat, _ := protocol.NewChatMessage("eddie", "harry", "hello")
	got := describeEvent(session.Event{Kind: session.EventChat, Peer: chat.Sender, Chat: chat})
	if got != "[eddie] hello" {
		t.Fatalf("chat line=%q", got)
	}
	if describeEvent(session.Event{Kind: session.EventIgnored}) != "" {
		t.Fatalf("ignored events print nothing")
	}
}

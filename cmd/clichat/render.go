package main

import (
	"fmt"
	"strconv"

	"github.com/danmuck/clichat/internal/protocol"
	"github.com/danmuck/clichat/internal/protocol/session"
	"github.com/danmuck/clichat/internal/storage"
)

func historyRows(msgs []protocol.ChatMessage, self protocol.Username) [][]string {
	rows := make([][]string, 0, len(msgs)+1)
	rows = append(rows, []string{"#", "from", "message"})
	for i, m := range msgs {
		from := m.Sender.String()
		if m.Sender == self {
			from = "you"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), from, m.Text()})
	}
	return rows
}

func peerRows(idx *storage.Index) [][]string {
	rows := [][]string{{"#", "peer", "log"}}
	for i, p := range idx.Peers() {
		id, _ := idx.Lookup(p)
		rows = append(rows, []string{strconv.Itoa(i + 1), p.String(), id})
	}
	return rows
}

func describeEvent(ev session.Event) string {
	switch ev.Kind {
	case session.EventChat:
		return fmt.Sprintf("[%s] %s", ev.Peer.String(), ev.Chat.Text())
	case session.EventPeerAdded:
		return fmt.Sprintf("* %s is now a peer", ev.Peer.String())
	case session.EventPeerDeclined:
		return fmt.Sprintf("* declined peer request from %s", ev.Peer.String())
	case session.EventPeerRejected:
		return fmt.Sprintf("* %s declined or is offline", ev.Peer.String())
	default:
		return ""
	}
}

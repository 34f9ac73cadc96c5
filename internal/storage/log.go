package storage

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/clichat/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Delimiter opens every log record. It can never be mistaken for a record
// length because lengths past 0x2D2D2D2D are refused on write.
var Delimiter = [4]byte{0x2D, 0x2D, 0x2D, 0x2D}

const (
	// RecordHeaderLen is delimiter(4) + length(4).
	RecordHeaderLen = len(Delimiter) + protocol.LengthPrefixLen
	// recordFixedLen is sender + receiver, the part of the blob before the payload.
	recordFixedLen = 2 * protocol.UsernameLen
	// MaxPayloadLen keeps declared lengths below the delimiter's numeric value.
	MaxPayloadLen = 0x2D2D2D2C
)

// ConnectionLog is the append-only chat history with one peer.
type ConnectionLog struct {
	peer protocol.Username
	path string
}

// OpenLog binds a ConnectionLog to peer's log file without touching disk.
func OpenLog(layout Layout, peer protocol.Username) *ConnectionLog {
	return &ConnectionLog{peer: peer, path: layout.LogPath(peer)}
}

func (l *ConnectionLog) Peer() protocol.Username { return l.peer }
func (l *ConnectionLog) Path() string            { return l.path }

// EncodeRecord renders msg as one on-disk record.
func EncodeRecord(msg protocol.ChatMessage) ([]byte, error) {
	if len(msg.Payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(msg.Payload) > MaxPayloadLen {
		return nil, fmt.Errorf("storage: payload of %d bytes exceeds record limit %d", len(msg.Payload), MaxPayloadLen)
	}
	buf := make([]byte, RecordHeaderLen+recordFixedLen+len(msg.Payload))
	copy(buf[0:4], Delimiter[:])
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(msg.Payload)))
	off := RecordHeaderLen
	off += copy(buf[off:], msg.Sender[:])
	off += copy(buf[off:], msg.Receiver[:])
	copy(buf[off:], msg.Payload)
	return buf, nil
}

// Append writes msg as one record. The log file must already exist; it is
// created by Index.AddPeer. A short write is fatal and is not cleaned up.
func (l *ConnectionLog) Append(msg protocol.ChatMessage) error {
	rec, err := EncodeRecord(msg)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("storage: open log for %q: %w", l.peer.String(), err)
	}
	if err := writeFull(f, rec); err != nil {
		_ = f.Close()
		return fmt.Errorf("storage: append to log for %q: %w", l.peer.String(), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("storage: close log for %q: %w", l.peer.String(), err)
	}
	log.Debug().
		Str("peer", l.peer.String()).
		Str("sender", msg.Sender.String()).
		Int("payload_bytes", len(msg.Payload)).
		Msg("storage.Append record written")
	return nil
}

// ReadAll re-reads the whole log, oldest record first. A record cut short by
// end-of-file is dropped silently; a bad delimiter or zero length is ErrCorruptLog.
func (l *ConnectionLog) ReadAll() ([]protocol.ChatMessage, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("storage: open log for %q: %w", l.peer.String(), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("storage: stat log for %q: %w", l.peer.String(), err)
	}
	msgs, err := readRecords(bufio.NewReader(f), info.Size())
	if err != nil {
		return msgs, fmt.Errorf("storage: read log for %q: %w", l.peer.String(), err)
	}
	return msgs, nil
}

func readRecords(r io.Reader, size int64) ([]protocol.ChatMessage, error) {
	var (
		out    []protocol.ChatMessage
		offset int64
		head   [RecordHeaderLen]byte
	)
	for {
		if _, err := io.ReadFull(r, head[:4]); err != nil {
			if isEOF(err) {
				return out, nil
			}
			return out, err
		}
		if !bytes.Equal(head[:4], Delimiter[:]) {
			return out, fmt.Errorf("%w: bad delimiter %x at offset %d", ErrCorruptLog, head[:4], offset)
		}
		if _, err := io.ReadFull(r, head[4:]); err != nil {
			if isEOF(err) {
				return out, nil
			}
			return out, err
		}
		length := binary.BigEndian.Uint32(head[4:])
		if length == 0 {
			return out, fmt.Errorf("%w: zero-length record at offset %d", ErrCorruptLog, offset)
		}
		blobLen := int64(recordFixedLen) + int64(length)
		if offset+int64(RecordHeaderLen)+blobLen > size {
			log.Debug().Int64("offset", offset).Uint32("declared", length).Msg("storage.ReadAll dropping truncated tail")
			return out, nil
		}
		blob := make([]byte, blobLen)
		if _, err := io.ReadFull(r, blob); err != nil {
			if isEOF(err) {
				return out, nil
			}
			return out, err
		}
		var msg protocol.ChatMessage
		msg.Sender = protocol.UsernameFromBytes(blob[:protocol.UsernameLen])
		msg.Receiver = protocol.UsernameFromBytes(blob[protocol.UsernameLen:recordFixedLen])
		msg.Payload = blob[recordFixedLen:]
		out = append(out, msg)
		offset += int64(RecordHeaderLen) + blobLen
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func writeFull(w io.Writer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := w.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("wrote %d of %d bytes: %w", n, len(data), io.ErrShortWrite)
	}
	return nil
}

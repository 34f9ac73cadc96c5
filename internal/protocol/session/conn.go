package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/clichat/internal/observability"
	"github.com/danmuck/clichat/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Conn carries framed protocol messages over one transport. Send is safe for
// concurrent use; Receive must have a single caller.
type Conn struct {
	cfg    Config
	rw     io.ReadWriter
	nc     net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
}

// NewConn wraps rw. Deadlines apply only when rw is a net.Conn.
func NewConn(rw io.ReadWriter, cfg Config) *Conn {
	c := &Conn{
		cfg:    cfg.WithDefaults(),
		rw:     rw,
		reader: bufio.NewReader(rw),
	}
	if nc, ok := rw.(net.Conn); ok {
		c.nc = nc
	}
	return c
}

// Dial opens a TCP connection to addr.
func Dial(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	d := net.Dialer{Timeout: cfg.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", addr, err)
	}
	log.Debug().Str("addr", addr).Msg("session.Dial connected")
	return NewConn(nc, cfg), nil
}

// Send packs msg into one frame and writes it.
func (c *Conn) Send(msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.nc != nil && c.cfg.WriteTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := protocol.WriteMessage(c.rw, msg, c.cfg.Limits); err != nil {
		observability.RecordWireError("write")
		return fmt.Errorf("session: send %s: %w", msg.Method(), err)
	}
	observability.RecordPacket(observability.DirectionOut, msg.Method().String())
	return nil
}

// Receive returns the next message with a known method. Unknown tags are
// skipped. A clean close before any header byte returns io.EOF.
func (c *Conn) Receive() (protocol.Message, error) {
	for {
		if c.nc != nil && c.cfg.ReadTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
		msg, err := protocol.ReadMessage(c.reader, c.cfg.Limits)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			stage := "read"
			if protocol.IsFormatError(err) {
				stage = "decode"
			}
			observability.RecordWireError(stage)
			return nil, fmt.Errorf("session: receive: %w", err)
		}
		if u, ok := msg.(protocol.Unknown); ok {
			observability.RecordUnknownPacket()
			log.Debug().Uint8("tag", u.Tag).Int("bytes", len(u.Body)).Msg("session.Receive skipping unknown method")
			continue
		}
		observability.RecordPacket(observability.DirectionIn, msg.Method().String())
		return msg, nil
	}
}

// SetReadTimeout replaces the per-frame read deadline; 0 disables it. Call it
// from the goroutine that calls Receive.
func (c *Conn) SetReadTimeout(d time.Duration) {
	c.cfg.ReadTimeout = d
	if d == 0 && c.nc != nil {
		_ = c.nc.SetReadDeadline(time.Time{})
	}
}

// Close closes the transport when it is closable.
func (c *Conn) Close() error {
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// RemoteAddr is the peer address, or "" for non-network transports.
func (c *Conn) RemoteAddr() string {
	if c.nc == nil || c.nc.RemoteAddr() == nil {
		return ""
	}
	return c.nc.RemoteAddr().String()
}

package chatd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/clichat/internal/config"
	"github.com/danmuck/clichat/internal/observability"
	"github.com/danmuck/clichat/internal/protocol"
	"github.com/danmuck/clichat/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// peerConn is one client connection. user and verified are owned by the
// connection's handler goroutine; other goroutines only Send on conn.
type peerConn struct {
	id       string
	remote   string
	nc       net.Conn
	conn     *session.Conn
	user     protocol.Username
	verified bool
}

// Service is the relay runtime.
type Service struct {
	cfg      config.ServerConfig
	started  time.Time
	registry *registry

	connsMu sync.Mutex
	conns   map[string]*peerConn

	activeClients atomic.Int64
	ready         atomic.Bool
}

func NewService() *Service {
	return NewServiceWithConfig(config.DefaultServerConfig())
}

func NewServiceWithConfig(cfg config.ServerConfig) *Service {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = config.DefaultServerConfig().ListenAddr
	}
	cfg.Session = cfg.Session.WithDefaults()
	observability.RegisterMetrics()
	return &Service{
		cfg:      cfg,
		started:  time.Now(),
		registry: newRegistry(),
		conns:    make(map[string]*peerConn),
	}
}

// Run listens on the relay and admin addresses and blocks until ctx is done
// or either server fails.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("chatd: listen %s: %w", s.cfg.ListenAddr, err)
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("chatd.Service.Run listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(gctx, ln)
	})
	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		g.Go(func() error {
			return s.ServeAdmin(gctx, addr)
		})
	}
	return g.Wait()
}

// Serve accepts relay connections on ln until ctx is done.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.ready.Store(false)
		s.closeAllConns()
		_ = ln.Close()
	}()

	s.ready.Store(true)
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("chatd: accept: %w", err)
		}
		pc := &peerConn{
			id:     uuid.NewString(),
			remote: nc.RemoteAddr().String(),
			nc:     nc,
			conn:   session.NewConn(nc, s.cfg.Session),
		}
		s.trackConn(pc)
		go s.handleConn(pc)
	}
}

func (s *Service) handleConn(pc *peerConn) {
	defer s.untrackConn(pc)
	defer pc.nc.Close()
	active := s.activeClients.Add(1)
	log.Info().Str("conn_id", pc.id).Str("remote", pc.remote).Int64("active_clients", active).Msg("chatd.session client connected")
	defer func() {
		if pc.verified {
			observability.SetOnlineUsers(s.registry.unbind(pc.user, pc))
		}
		remaining := s.activeClients.Add(-1)
		log.Info().Str("conn_id", pc.id).Str("user", pc.user.String()).Int64("active_clients", remaining).Msg("chatd.session client disconnected")
	}()

	for {
		msg, err := pc.conn.Receive()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case protocol.IsFormatError(err):
				log.Warn().Err(err).Str("conn_id", pc.id).Msg("chatd.handleConn malformed frame, closing")
			default:
				log.Debug().Err(err).Str("conn_id", pc.id).Msg("chatd.handleConn read ended")
			}
			return
		}
		if err := s.dispatch(pc, msg); err != nil {
			log.Warn().Err(err).Str("conn_id", pc.id).Msg("chatd.handleConn reply failed, closing")
			return
		}
	}
}

// Snapshot counts for the admin surface.
type Snapshot struct {
	Accounts      int      `json:"accounts"`
	Online        int      `json:"online"`
	Users         []string `json:"users"`
	ActiveClients int64    `json:"active_clients"`
}

func (s *Service) Snapshot() Snapshot {
	accounts, online := s.registry.counts()
	return Snapshot{
		Accounts:      accounts,
		Online:        online,
		Users:         s.registry.onlineUsers(),
		ActiveClients: s.activeClients.Load(),
	}
}

func (s *Service) trackConn(pc *peerConn) {
	s.connsMu.Lock()
	s.conns[pc.id] = pc
	s.connsMu.Unlock()
}

func (s *Service) untrackConn(pc *peerConn) {
	s.connsMu.Lock()
	delete(s.conns, pc.id)
	s.connsMu.Unlock()
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for _, pc := range s.conns {
		_ = pc.nc.Close()
	}
}

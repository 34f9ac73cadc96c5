package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/clichat/internal/protocol"
	"github.com/danmuck/clichat/internal/storage"
	"github.com/rs/zerolog/log"
)

var (
	ErrSignupRejected  = errors.New("session: signup rejected")
	ErrVerifyRejected  = errors.New("session: verify rejected")
	ErrUnknownPeer     = errors.New("session: unknown peer")
	ErrMisaddressed    = errors.New("session: message not addressed to this user")
	ErrSelfPeer        = errors.New("session: cannot connect to self")
	ErrUnexpectedReply = errors.New("session: unexpected reply")
	ErrServerClosed    = errors.New("session: connection closed by server")
)

// Acceptor decides whether to accept an inbound peer connect request.
type Acceptor func(req protocol.PeerConnectRequest) bool

// RejectAll is the default Acceptor.
func RejectAll(protocol.PeerConnectRequest) bool { return false }

// AcceptAll accepts every request.
func AcceptAll(protocol.PeerConnectRequest) bool { return true }

type EventKind int

const (
	EventIgnored EventKind = iota
	EventChat
	EventPeerAdded
	EventPeerDeclined
	EventPeerRejected
)

func (k EventKind) String() string {
	switch k {
	case EventChat:
		return "chat"
	case EventPeerAdded:
		return "peer_added"
	case EventPeerDeclined:
		return "peer_declined"
	case EventPeerRejected:
		return "peer_rejected"
	default:
		return "ignored"
	}
}

// Event is what Handle did with one inbound message.
type Event struct {
	Kind EventKind
	Peer protocol.Username
	Chat protocol.ChatMessage
}

// Client is one verified user's session. Not safe for concurrent use apart
// from sends through the underlying Conn.
type Client struct {
	conn    *Conn
	user    protocol.Username
	token   protocol.Token
	index   *storage.Index
	accept  Acceptor
	pending map[protocol.Username]struct{}
}

type Option func(*Client)

// WithAcceptor sets the inbound peer request policy.
func WithAcceptor(a Acceptor) Option {
	return func(c *Client) {
		if a != nil {
			c.accept = a
		}
	}
}

func NewClient(conn *Conn, user protocol.Username, token protocol.Token, index *storage.Index, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		user:    user.Canonical(),
		token:   token,
		index:   index,
		accept:  RejectAll,
		pending: make(map[protocol.Username]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) User() protocol.Username { return c.user }
func (c *Client) Index() *storage.Index    { return c.index }
func (c *Client) Conn() *Conn              { return c.conn }
func (c *Client) Close() error             { return c.conn.Close() }

// Signup registers username and returns the issued token.
func Signup(conn *Conn, username protocol.Username) (protocol.Token, error) {
	if err := conn.Send(protocol.SignupRequest{Username: username}); err != nil {
		return protocol.Token{}, err
	}
	reply, err := conn.Receive()
	if err != nil {
		return protocol.Token{}, err
	}
	resp, err := protocol.As[protocol.SignupResponse](reply)
	if err != nil {
		return protocol.Token{}, fmt.Errorf("%w: %w", ErrUnexpectedReply, err)
	}
	if resp.Status != protocol.StatusSuccess {
		return protocol.Token{}, fmt.Errorf("%w: %q status=%s", ErrSignupRejected, username.String(), resp.Status)
	}
	log.Info().Str("username", username.String()).Msg("session.Signup accepted")
	return resp.Token, nil
}

// Verify authenticates the session with the stored token.
func (c *Client) Verify() error {
	if err := c.conn.Send(protocol.VerifyRequest{Username: c.user, Token: c.token}); err != nil {
		return err
	}
	reply, err := c.conn.Receive()
	if err != nil {
		return err
	}
	resp, err := protocol.As[protocol.VerifyResponse](reply)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnexpectedReply, err)
	}
	if resp.Status != protocol.StatusSuccess {
		return fmt.Errorf("%w: %q status=%s", ErrVerifyRejected, c.user.String(), resp.Status)
	}
	log.Debug().Str("username", c.user.String()).Msg("session.Verify accepted")
	return nil
}

// RequestPeer asks target to establish a connection. The peer is added once a
// matching accepted response arrives through Handle.
func (c *Client) RequestPeer(target protocol.Username) error {
	target = target.Canonical()
	if target.IsZero() {
		return storage.ErrInvalidPeer
	}
	if target == c.user {
		return ErrSelfPeer
	}
	if c.index.Has(target) {
		return fmt.Errorf("%w: %q", storage.ErrPeerExists, target.String())
	}
	if err := c.conn.Send(protocol.PeerConnectRequest{Requester: c.user, Target: target}); err != nil {
		return err
	}
	c.pending[target] = struct{}{}
	return nil
}

// SendChat appends text to the peer's log, then sends it. A failed append sends
// nothing; a failed send leaves the entry in history.
func (c *Client) SendChat(peer protocol.Username, text string) error {
	if text == "" {
		return storage.ErrEmptyPayload
	}
	cl, err := c.index.Log(peer)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownPeer, peer.String())
	}
	msg := protocol.ChatMessage{Sender: c.user, Receiver: cl.Peer(), Payload: []byte(text)}
	if err := cl.Append(msg); err != nil {
		return err
	}
	return c.conn.Send(msg)
}

// History returns the stored conversation with peer, oldest first.
func (c *Client) History(peer protocol.Username) ([]protocol.ChatMessage, error) {
	cl, err := c.index.Log(peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPeer, peer.String())
	}
	return cl.ReadAll()
}

// Handle applies one inbound message to local state.
func (c *Client) Handle(msg protocol.Message) (Event, error) {
	switch m := msg.(type) {
	case protocol.ChatMessage:
		return c.handleChat(m)
	case protocol.PeerConnectRequest:
		return c.handlePeerRequest(m)
	case protocol.PeerConnectResponse:
		return c.handlePeerResponse(m)
	default:
		log.Debug().Str("method", msg.Method().String()).Msg("session.Handle ignoring message")
		return Event{Kind: EventIgnored}, nil
	}
}

func (c *Client) handleChat(m protocol.ChatMessage) (Event, error) {
	if m.Receiver != c.user {
		return Event{}, fmt.Errorf("%w: receiver=%q", ErrMisaddressed, m.Receiver.String())
	}
	cl, err := c.index.Log(m.Sender)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownPeer, m.Sender.String())
	}
	if err := cl.Append(m); err != nil {
		return Event{}, err
	}
	return Event{Kind: EventChat, Peer: m.Sender, Chat: m}, nil
}

func (c *Client) handlePeerRequest(m protocol.PeerConnectRequest) (Event, error) {
	if m.Target != c.user {
		return Event{}, fmt.Errorf("%w: target=%q", ErrMisaddressed, m.Target.String())
	}
	accept := c.index.Has(m.Requester) || c.accept(m)
	if accept && !c.index.Has(m.Requester) {
		if err := c.index.AddPeer(m.Requester); err != nil {
			_ = c.conn.Send(m.Respond(false))
			return Event{}, err
		}
	}
	if err := c.conn.Send(m.Respond(accept)); err != nil {
		return Event{}, err
	}
	if !accept {
		log.Info().Str("requester", m.Requester.String()).Msg("session.Handle declined peer request")
		return Event{Kind: EventPeerDeclined, Peer: m.Requester}, nil
	}
	return Event{Kind: EventPeerAdded, Peer: m.Requester}, nil
}

func (c *Client) handlePeerResponse(m protocol.PeerConnectResponse) (Event, error) {
	if m.Requester != c.user {
		return Event{}, fmt.Errorf("%w: requester=%q", ErrMisaddressed, m.Requester.String())
	}
	if _, ok := c.pending[m.Target]; !ok {
		log.Warn().Str("target", m.Target.String()).Msg("session.Handle unsolicited peer response")
		return Event{Kind: EventIgnored, Peer: m.Target}, nil
	}
	delete(c.pending, m.Target)
	if !m.Accepted() {
		return Event{Kind: EventPeerRejected, Peer: m.Target}, nil
	}
	if !c.index.Has(m.Target) {
		if err := c.index.AddPeer(m.Target); err != nil {
			return Event{}, err
		}
	}
	return Event{Kind: EventPeerAdded, Peer: m.Target}, nil
}

// AwaitPeer reads until the response to a pending request for target arrives,
// handling any other traffic along the way.
func (c *Client) AwaitPeer(target protocol.Username) (Event, error) {
	for {
		msg, err := c.conn.Receive()
		if err != nil {
			return Event{}, err
		}
		ev, err := c.Handle(msg)
		if err != nil {
			if recoverable(err) {
				log.Warn().Err(err).Msg("session.AwaitPeer skipping message")
				continue
			}
			return Event{}, err
		}
		if ev.Peer == target && (ev.Kind == EventPeerAdded || ev.Kind == EventPeerRejected) {
			return ev, nil
		}
	}
}

// Listen handles inbound messages until ctx is done. It returns nil after
// cancellation and ErrServerClosed if the server ends the connection first.
// fn sees every event that changed local state.
func (c *Client) Listen(ctx context.Context, fn func(Event)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()
	for {
		msg, err := c.conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return ErrServerClosed
			}
			return err
		}
		ev, err := c.Handle(msg)
		if err != nil {
			if recoverable(err) {
				log.Warn().Err(err).Str("method", msg.Method().String()).Msg("session.Listen dropping message")
				continue
			}
			return err
		}
		if ev.Kind != EventIgnored && fn != nil {
			fn(ev)
		}
	}
}

func recoverable(err error) bool {
	return errors.Is(err, ErrUnknownPeer) || errors.Is(err, ErrMisaddressed)
}

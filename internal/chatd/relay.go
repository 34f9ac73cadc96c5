package chatd

import (
	"github.com/danmuck/clichat/internal/observability"
	"github.com/danmuck/clichat/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Relay outcomes recorded per method.
const (
	outcomeAccepted        = "accepted"
	outcomeRejected        = "rejected"
	outcomeRelayed         = "relayed"
	outcomeOffline         = "offline"
	outcomeSpoofed         = "spoofed"
	outcomeUnauthenticated = "unauthenticated"
	outcomeUnexpected      = "unexpected"
	outcomeFailed          = "failed"
)

// dispatch applies one inbound message. The returned error means a reply to
// pc itself could not be written.
func (s *Service) dispatch(pc *peerConn, msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.SignupRequest:
		return s.handleSignup(pc, m)
	case protocol.VerifyRequest:
		return s.handleVerify(pc, m)
	}

	method := msg.Method().String()
	if !pc.verified {
		observability.RecordRelay(method, outcomeUnauthenticated)
		log.Warn().Str("conn_id", pc.id).Str("method", method).Msg("chatd.dispatch dropping message before verify")
		return nil
	}

	switch m := msg.(type) {
	case protocol.ChatMessage:
		s.relayChat(pc, m)
	case protocol.PeerConnectRequest:
		return s.relayPeerRequest(pc, m)
	case protocol.PeerConnectResponse:
		s.relayPeerResponse(pc, m)
	default:
		observability.RecordRelay(method, outcomeUnexpected)
		log.Warn().Str("conn_id", pc.id).Str("method", method).Msg("chatd.dispatch unexpected client message")
	}
	return nil
}

func (s *Service) handleSignup(pc *peerConn, m protocol.SignupRequest) error {
	token, ok, err := s.registry.signup(m.Username)
	if err != nil {
		log.Error().Err(err).Str("conn_id", pc.id).Msg("chatd.handleSignup token generation failed")
	}
	resp := protocol.SignupResponse{Status: protocol.StatusFailure}
	outcome := outcomeRejected
	if ok {
		resp = protocol.SignupResponse{Status: protocol.StatusSuccess, Token: token}
		outcome = outcomeAccepted
	}
	observability.RecordRelay(m.Method().String(), outcome)
	log.Info().Str("conn_id", pc.id).Str("username", m.Username.String()).Str("outcome", outcome).Msg("chatd.handleSignup")
	return pc.conn.Send(resp)
}

func (s *Service) handleVerify(pc *peerConn, m protocol.VerifyRequest) error {
	if !s.registry.verify(m.Username, m.Token) {
		observability.RecordRelay(m.Method().String(), outcomeRejected)
		log.Warn().Str("conn_id", pc.id).Str("username", m.Username.String()).Msg("chatd.handleVerify rejected")
		return pc.conn.Send(protocol.VerifyResponse{Status: protocol.StatusFailure})
	}

	if pc.verified && pc.user != m.Username {
		observability.SetOnlineUsers(s.registry.unbind(pc.user, pc))
	}
	pc.user = m.Username
	pc.verified = true
	// Verified clients may idle indefinitely; the protocol has no keepalive.
	pc.conn.SetReadTimeout(0)
	displaced, online := s.registry.bind(m.Username, pc)
	observability.SetOnlineUsers(online)
	if displaced != nil {
		log.Warn().Str("user", m.Username.String()).Str("old_conn_id", displaced.id).Str("conn_id", pc.id).Msg("chatd.handleVerify newer connection takes over routing")
	}
	observability.RecordRelay(m.Method().String(), outcomeAccepted)
	log.Info().Str("conn_id", pc.id).Str("user", m.Username.String()).Int("online", online).Msg("chatd.handleVerify accepted")
	return pc.conn.Send(protocol.VerifyResponse{Status: protocol.StatusSuccess})
}

func (s *Service) relayChat(pc *peerConn, m protocol.ChatMessage) {
	method := m.Method().String()
	if m.Sender != pc.user {
		observability.RecordRelay(method, outcomeSpoofed)
		log.Warn().Str("conn_id", pc.id).Str("user", pc.user.String()).Str("sender", m.Sender.String()).Msg("chatd.relayChat sender mismatch")
		return
	}
	s.forward(method, m.Receiver, m)
}

func (s *Service) relayPeerRequest(pc *peerConn, m protocol.PeerConnectRequest) error {
	method := m.Method().String()
	if m.Requester != pc.user {
		observability.RecordRelay(method, outcomeSpoofed)
		log.Warn().Str("conn_id", pc.id).Str("user", pc.user.String()).Str("requester", m.Requester.String()).Msg("chatd.relayPeerRequest requester mismatch")
		return nil
	}
	if m.Target != m.Requester && s.forward(method, m.Target, m) {
		return nil
	}
	return pc.conn.Send(m.Respond(false))
}

func (s *Service) relayPeerResponse(pc *peerConn, m protocol.PeerConnectResponse) {
	method := m.Method().String()
	if m.Target != pc.user {
		observability.RecordRelay(method, outcomeSpoofed)
		log.Warn().Str("conn_id", pc.id).Str("user", pc.user.String()).Str("target", m.Target.String()).Msg("chatd.relayPeerResponse target mismatch")
		return
	}
	s.forward(method, m.Requester, m)
}

// forward sends msg to the online connection for to and reports delivery.
func (s *Service) forward(method string, to protocol.Username, msg protocol.Message) bool {
	dst, ok := s.registry.route(to)
	if !ok {
		observability.RecordRelay(method, outcomeOffline)
		log.Warn().Str("method", method).Str("to", to.String()).Msg("chatd.forward recipient offline")
		return false
	}
	if err := dst.conn.Send(msg); err != nil {
		observability.RecordRelay(method, outcomeFailed)
		log.Warn().Err(err).Str("method", method).Str("to", to.String()).Str("conn_id", dst.id).Msg("chatd.forward write failed")
		return false
	}
	observability.RecordRelay(method, outcomeRelayed)
	log.Debug().Str("method", method).Str("to", to.String()).Msg("chatd.forward relayed")
	return true
}

package protocol

import "fmt"

const (
	PeerConnectRequestLen  = 2 * UsernameLen
	PeerConnectResponseLen = 2*UsernameLen + StatusLen
)

// PeerConnectRequest asks the server to relay a connection request to Target.
type PeerConnectRequest struct {
	Requester Username
	Target    Username
}

func NewPeerConnectRequest(requester, target string) (PeerConnectRequest, error) {
	r, err := NewUsername(requester)
	if err != nil {
		return PeerConnectRequest{}, fmt.Errorf("requester: %w", err)
	}
	t, err := NewUsername(target)
	if err != nil {
		return PeerConnectRequest{}, fmt.Errorf("target: %w", err)
	}
	return PeerConnectRequest{Requester: r, Target: t}, nil
}

func (m PeerConnectRequest) Method() Method { return MethodPeerConnectRequest }
func (m PeerConnectRequest) Length() int    { return PeerConnectRequestLen }

func (m PeerConnectRequest) Encode() []byte {
	buf := make([]byte, PeerConnectRequestLen)
	copy(buf[:UsernameLen], m.Requester[:])
	copy(buf[UsernameLen:], m.Target[:])
	return buf
}

func DecodePeerConnectRequest(b []byte) (PeerConnectRequest, error) {
	if len(b) < PeerConnectRequestLen {
		return PeerConnectRequest{}, shortBuffer("peer_connect_request", PeerConnectRequestLen, len(b))
	}
	return PeerConnectRequest{
		Requester: UsernameFromBytes(b),
		Target:    UsernameFromBytes(b[UsernameLen:]),
	}, nil
}

// Respond builds the target's answer to this request.
func (m PeerConnectRequest) Respond(accept bool) PeerConnectResponse {
	status := StatusFailure
	if accept {
		status = StatusSuccess
	}
	return PeerConnectResponse{Requester: m.Requester, Target: m.Target, Response: status}
}

func (m PeerConnectRequest) String() string {
	return fmt.Sprintf("PeerConnectRequest{requester: %q, target: %q}", m.Requester.String(), m.Target.String())
}

// PeerConnectResponse is the target's answer, relayed back to the requester.
type PeerConnectResponse struct {
	Requester Username
	Target    Username
	Response  StatusCode
}

func (m PeerConnectResponse) Method() Method { return MethodPeerConnectResponse }
func (m PeerConnectResponse) Length() int    { return PeerConnectResponseLen }

func (m PeerConnectResponse) Encode() []byte {
	buf := make([]byte, PeerConnectResponseLen)
	copy(buf[:UsernameLen], m.Requester[:])
	copy(buf[UsernameLen:2*UsernameLen], m.Target[:])
	buf[2*UsernameLen] = byte(m.Response)
	return buf
}

func DecodePeerConnectResponse(b []byte) (PeerConnectResponse, error) {
	if len(b) < PeerConnectResponseLen {
		return PeerConnectResponse{}, shortBuffer("peer_connect_response", PeerConnectResponseLen, len(b))
	}
	return PeerConnectResponse{
		Requester: UsernameFromBytes(b),
		Target:    UsernameFromBytes(b[UsernameLen:]),
		Response:  DecodeStatus(b[2*UsernameLen]),
	}, nil
}

// Accepted reports whether the target accepted the connection.
func (m PeerConnectResponse) Accepted() bool {
	return m.Response == StatusSuccess
}

func (m PeerConnectResponse) String() string {
	return fmt.Sprintf("PeerConnectResponse{requester: %q, target: %q, response: %s}",
		m.Requester.String(), m.Target.String(), m.Response)
}

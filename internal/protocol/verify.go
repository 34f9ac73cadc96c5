package protocol

import "fmt"

const (
	VerifyRequestLen  = UsernameLen + TokenLen
	VerifyResponseLen = StatusLen
)

// VerifyRequest is sent at the start of every session to authenticate the client.
type VerifyRequest struct {
	Username Username
	Token    Token
}

func NewVerifyRequest(username string, token Token) (VerifyRequest, error) {
	u, err := NewUsername(username)
	if err != nil {
		return VerifyRequest{}, err
	}
	return VerifyRequest{Username: u, Token: token}, nil
}

func (m VerifyRequest) Method() Method { return MethodVerifyRequest }
func (m VerifyRequest) Length() int    { return VerifyRequestLen }

func (m VerifyRequest) Encode() []byte {
	buf := make([]byte, VerifyRequestLen)
	copy(buf[:UsernameLen], m.Username[:])
	copy(buf[UsernameLen:], m.Token[:])
	return buf
}

func DecodeVerifyRequest(b []byte) (VerifyRequest, error) {
	if len(b) < VerifyRequestLen {
		return VerifyRequest{}, shortBuffer("verify_request", VerifyRequestLen, len(b))
	}
	return VerifyRequest{
		Username: UsernameFromBytes(b),
		Token:    readToken(b[UsernameLen:]),
	}, nil
}

func (m VerifyRequest) String() string {
	return fmt.Sprintf("VerifyRequest{username: %q, token: %s}", m.Username.String(), m.Token.String())
}

// VerifyResponse is the server's answer to a VerifyRequest.
type VerifyResponse struct {
	Status StatusCode
}

func (m VerifyResponse) Method() Method { return MethodVerifyResponse }
func (m VerifyResponse) Length() int    { return VerifyResponseLen }

func (m VerifyResponse) Encode() []byte {
	return []byte{byte(m.Status)}
}

func DecodeVerifyResponse(b []byte) (VerifyResponse, error) {
	if len(b) < VerifyResponseLen {
		return VerifyResponse{}, shortBuffer("verify_response", VerifyResponseLen, len(b))
	}
	return VerifyResponse{Status: DecodeStatus(b[0])}, nil
}

func (m VerifyResponse) String() string {
	return fmt.Sprintf("VerifyResponse{status: %s}", m.Status)
}

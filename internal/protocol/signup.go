package protocol

import "fmt"

const (
	SignupRequestLen  = UsernameLen
	SignupResponseLen = StatusLen + TokenLen
)

// SignupRequest carries a new user's chosen username.
type SignupRequest struct {
	Username Username
}

func NewSignupRequest(username string) (SignupRequest, error) {
	u, err := NewUsername(username)
	if err != nil {
		return SignupRequest{}, err
	}
	return SignupRequest{Username: u}, nil
}

func (m SignupRequest) Method() Method { return MethodSignupRequest }
func (m SignupRequest) Length() int    { return SignupRequestLen }

func (m SignupRequest) Encode() []byte {
	buf := make([]byte, SignupRequestLen)
	copy(buf, m.Username[:])
	return buf
}

func DecodeSignupRequest(b []byte) (SignupRequest, error) {
	if len(b) < SignupRequestLen {
		return SignupRequest{}, shortBuffer("signup_request", SignupRequestLen, len(b))
	}
	return SignupRequest{Username: UsernameFromBytes(b)}, nil
}

func (m SignupRequest) String() string {
	return fmt.Sprintf("SignupRequest{username: %q}", m.Username.String())
}

// SignupResponse returns the issued token on success. The token is zero on failure.
type SignupResponse struct {
	Status StatusCode
	Token  Token
}

func (m SignupResponse) Method() Method { return MethodSignupResponse }
func (m SignupResponse) Length() int    { return SignupResponseLen }

func (m SignupResponse) Encode() []byte {
	buf := make([]byte, SignupResponseLen)
	buf[0] = byte(m.Status)
	copy(buf[StatusLen:], m.Token[:])
	return buf
}

func DecodeSignupResponse(b []byte) (SignupResponse, error) {
	if len(b) < SignupResponseLen {
		return SignupResponse{}, shortBuffer("signup_response", SignupResponseLen, len(b))
	}
	return SignupResponse{
		Status: DecodeStatus(b[0]),
		Token:  readToken(b[StatusLen:]),
	}, nil
}

func (m SignupResponse) String() string {
	return fmt.Sprintf("SignupResponse{status: %s, token: %s}", m.Status, m.Token.String())
}

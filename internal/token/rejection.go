package token

import "errors"

// These sentinels are the authentication error taxonomy (token rejections).
// Verify returns each one wrapped as an InvalidAccessToken so callers can
// either match the specific variant or just check for authentication
// failure in general.
var (
	ErrInvalidFormat    = errors.New("token: invalid access token format")
	ErrNoIssuer         = errors.New("token: access token does not contain an issuer")
	ErrNoSubject        = errors.New("token: access token does not contain a subject")
	ErrUnknownIssuer    = errors.New("token: unknown access token issuer")
	ErrInvalidSignature = errors.New("token: invalid access token")
)

// InvalidAccessToken wraps any Rejection so the façade can render a uniform
// 401 while still letting callers unwrap to the specific cause via
// errors.Is/errors.As.
type InvalidAccessToken struct {
	Cause error
}

func (e *InvalidAccessToken) Error() string {
	return "invalid access token: " + e.Cause.Error()
}

func (e *InvalidAccessToken) Unwrap() error { return e.Cause }

func reject(cause error) error {
	return &InvalidAccessToken{Cause: cause}
}

package auth

import (
	"time"
)

// Clock is the time source used for token expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// AccessToken is an OAuth2 bearer token. It is immutable: a refreshed token
// is a new AccessToken.
type AccessToken struct {
	value      string
	expiresIn  int
	validUntil time.Time
	clock      Clock
}

// NewAccessToken creates a token valid for expiresIn seconds from clock.Now().
func NewAccessToken(value string, expiresIn int, clock Clock) *AccessToken {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AccessToken{
		value:      value,
		expiresIn:  expiresIn,
		validUntil: clock.Now().Add(time.Duration(expiresIn) * time.Second),
		clock:      clock,
	}
}

// Value returns the raw token.
func (t *AccessToken) Value() string { return t.value }

// ExpiresIn returns the lifetime in seconds requested by the authorization server.
func (t *AccessToken) ExpiresIn() int { return t.expiresIn }

// ValidUntil returns the instant the token stops being usable.
func (t *AccessToken) ValidUntil() time.Time { return t.validUntil }

// IsExpired reports whether the validity window has elapsed. A token is
// already expired at exactly ValidUntil.
func (t *AccessToken) IsExpired() bool {
	return !t.clock.Now().Before(t.validUntil)
}

// Authorization returns the Authorization header value.
func (t *AccessToken) Authorization() string {
	return "Bearer " + t.value
}

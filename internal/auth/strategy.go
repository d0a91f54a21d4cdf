// Package auth provides the authorization strategies applied to outbound
// requests sent to external systems.
//
// Each strategy is registered under an authorization method tag (BASIC,
// BASIC_ALWAYS_HEADER, OAUTH2, NOAUTH) and is built fresh for every client
// that uses it, so cached credentials are never shared between clients.
//
// Strategies advertise what they can do through secondary interfaces:
//   - HeaderStrategy adds request headers before every attempt
//   - ChallengeStrategy answers transport-level authentication challenges
//
// Example usage:
//
//	strategy, err := auth.Build(models.AuthOAuth2, auth.SettingsFromHTTPConfig(cfg, decrypter))
//	if hs, ok := strategy.(auth.HeaderStrategy); ok {
//		headers, err := hs.Headers(ctx)
//	}
package auth

import (
	"context"
	"net/http"

	"extsys/internal/common/logging"
	"extsys/internal/crypto"
	"extsys/internal/models"
)

// Strategy is the contract every authorization method implements.
type Strategy interface {
	// Init prepares the strategy from the connection settings. Secrets are
	// decrypted here so a misconfigured client fails at build time.
	Init(settings Settings) error

	// HandleRetry is called with the status of a failed response and reports
	// whether the request should be sent again. It may reset internal state
	// (e.g. a cached token) as a side effect.
	HandleRetry(statusCode int) bool
}

// HeaderStrategy is implemented by strategies that inject request headers.
type HeaderStrategy interface {
	Strategy
	Headers(ctx context.Context) (map[string]string, error)
}

// ChallengeStrategy is implemented by strategies that do not send credentials
// up front and instead answer the server's authentication challenge.
type ChallengeStrategy interface {
	Strategy
	Credentials() (username, password string)
}

// AuthorizationDataProvider exposes details about the last authorization obtained.
type AuthorizationDataProvider interface {
	AuthorizationData() map[string]interface{}
}

// Settings carries everything a strategy may need from an HTTP configuration.
type Settings struct {
	// ConfigID identifies the HTTP configuration in log and error messages
	ConfigID string

	Username          string
	EncryptedPassword string

	OAuth2ClientID              string
	EncryptedOAuth2ClientSecret string
	OAuth2AuthServerURL         string

	// CacheToken keeps an acquired OAuth2 token until it expires. When false a
	// new token is requested for every Headers call.
	CacheToken bool

	Decrypter  crypto.Decrypter
	HTTPClient *http.Client
	Clock      Clock
	Logger     logging.Logger
}

// SettingsFromHTTPConfig builds the settings used by HTTP transports. Tokens are cached.
func SettingsFromHTTPConfig(cfg *models.HTTPConfig, decrypter crypto.Decrypter) Settings {
	return Settings{
		ConfigID:                    cfg.ID,
		Username:                    cfg.Username,
		EncryptedPassword:           cfg.EncryptedPassword,
		OAuth2ClientID:              cfg.OAuth2ClientID,
		EncryptedOAuth2ClientSecret: cfg.EncryptedOAuth2ClientSecret,
		OAuth2AuthServerURL:         cfg.OAuth2AuthServerURL,
		CacheToken:                  true,
		Decrypter:                   decrypter,
	}
}

func (s Settings) decrypter() crypto.Decrypter {
	if s.Decrypter == nil {
		return crypto.PlainText{}
	}
	return s.Decrypter
}

func (s Settings) clock() Clock {
	if s.Clock == nil {
		return SystemClock{}
	}
	return s.Clock
}

func (s Settings) logger() logging.Logger {
	if s.Logger == nil {
		return logging.GetGlobalLogger()
	}
	return s.Logger
}

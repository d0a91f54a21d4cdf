package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"extsys/internal/circuitbreaker"
	"extsys/internal/common/errors"
	"extsys/internal/common/logging"
	"extsys/internal/models"
)

const (
	// TokenRequestTimeout bounds every call to the authorization server,
	// independently of the timeout of the request being authorized.
	TokenRequestTimeout = 10 * time.Second

	// DefaultTokenLifetime is used when the server omits expires_in.
	DefaultTokenLifetime = 3600

	bearerTokenType = "bearer"
)

func init() {
	Register(models.AuthOAuth2, func() Strategy { return &OAuth2Strategy{} })
}

// OAuth2Strategy authorizes requests with a bearer token obtained through the
// client credentials grant.
//
// The cached token is the only mutable state. It is swapped as a whole through
// an atomic pointer, so concurrent requests never observe a partial token.
type OAuth2Strategy struct {
	configID   string
	config     clientcredentials.Config
	httpClient *http.Client
	breaker    *circuitbreaker.GoBreakerAdapter
	clock      Clock
	cacheToken bool
	logger     logging.Logger

	token   atomic.Pointer[AccessToken]
	fetchMu sync.Mutex
}

func (s *OAuth2Strategy) Init(settings Settings) error {
	secret, err := settings.decrypter().Decrypt(settings.EncryptedOAuth2ClientSecret)
	if err != nil {
		settings.logger().Error("Error decrypting OAuth2 Client Secret of HTTP configuration", err,
			logging.String("http_config_id", settings.ConfigID))
		return errors.ConfigErrorf("Error decrypting OAuth2 Client Secret of HTTP configuration %s", settings.ConfigID)
	}

	s.configID = settings.ConfigID
	s.config = clientcredentials.Config{
		ClientID:     settings.OAuth2ClientID,
		ClientSecret: secret,
		TokenURL:     settings.OAuth2AuthServerURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	base := settings.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: TokenRequestTimeout}
	}
	s.httpClient = withClientCredentials(base, settings.OAuth2ClientID, secret)

	s.clock = settings.clock()
	s.cacheToken = settings.CacheToken
	s.logger = settings.logger().WithFields(logging.String("http_config_id", settings.ConfigID))
	s.breaker = circuitbreaker.NewGoBreaker("oauth2:"+settings.ConfigID, circuitbreaker.TokenEndpointConfig, s.logger)
	s.token.Store(nil)
	return nil
}

// Headers returns the bearer Authorization header, acquiring a token first if
// none is cached or the cached one has expired.
func (s *OAuth2Strategy) Headers(ctx context.Context) (map[string]string, error) {
	if !s.cacheToken {
		token, err := s.requestAccessToken(ctx)
		if err != nil {
			return nil, err
		}
		s.token.Store(token)
		return map[string]string{"Authorization": token.Authorization()}, nil
	}

	if token := s.token.Load(); token != nil && !token.IsExpired() {
		return map[string]string{"Authorization": token.Authorization()}, nil
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	// Another request may have refreshed the token while we waited.
	if token := s.token.Load(); token != nil && !token.IsExpired() {
		return map[string]string{"Authorization": token.Authorization()}, nil
	}

	token, err := s.requestAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	s.token.Store(token)
	return map[string]string{"Authorization": token.Authorization()}, nil
}

// HandleRetry drops the cached token on 401 so the retry acquires a new one.
func (s *OAuth2Strategy) HandleRetry(statusCode int) bool {
	if statusCode == http.StatusUnauthorized {
		s.token.Store(nil)
		return true
	}
	return false
}

// AuthorizationData reports the lifetime of the last token obtained.
func (s *OAuth2Strategy) AuthorizationData() map[string]interface{} {
	token := s.token.Load()
	if token == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{"expiresIn": token.ExpiresIn()}
}

// CurrentToken returns the cached token, or nil.
func (s *OAuth2Strategy) CurrentToken() *AccessToken {
	return s.token.Load()
}

func (s *OAuth2Strategy) requestAccessToken(ctx context.Context) (*AccessToken, error) {
	ctx, cancel := context.WithTimeout(ctx, TokenRequestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	start := time.Now()
	var raw *oauth2.Token
	err := s.breaker.Execute(ctx, func() error {
		var err error
		raw, err = s.config.Token(ctx)
		return err
	})
	if err != nil {
		authErr := classifyTokenError(err)
		s.logger.Error("Access token request failed", err, logging.String("reason", authErr.Message))
		return nil, authErr
	}

	if !strings.EqualFold(raw.TokenType, bearerTokenType) {
		if raw.TokenType == "" {
			return nil, errors.AuthorizationError("Authorization server response does not declare the access token type", nil)
		}
		return nil, errors.AuthorizationError(fmt.Sprintf("Unsupported access token type %s", raw.TokenType), nil)
	}

	expiresIn, err := expiresInSeconds(raw.Extra("expires_in"))
	if err != nil {
		return nil, errors.AuthorizationError("Could not extract access token data", err)
	}

	s.logger.Debug("Access token acquired",
		logging.Int("expires_in", expiresIn),
		logging.Duration("duration", time.Since(start)),
	)
	return NewAccessToken(raw.AccessToken, expiresIn, s.clock), nil
}

func classifyTokenError(err error) *errors.AppError {
	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return errors.AuthorizationError(
			fmt.Sprintf("Authorization server returned a %d error response", retrieveErr.Response.StatusCode), err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if stderrors.As(err, &urlErr) || stderrors.As(err, &netErr) ||
		stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, circuitbreaker.ErrOpen) {
		return errors.AuthorizationError("Request to retrieve the access token failed", err)
	}

	return errors.AuthorizationError("Could not extract access token data", err)
}

func expiresInSeconds(v interface{}) (int, error) {
	switch n := v.(type) {
	case nil:
		return DefaultTokenLifetime, nil
	case float64:
		return int(n), nil
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		if n == "" {
			return DefaultTokenLifetime, nil
		}
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unexpected expires_in value %v", v)
	}
}

// clientAuthTransport sends the client credentials as a plain
// base64(id:secret) Basic header in place of the form-encoded one set by x/oauth2.
type clientAuthTransport struct {
	base     http.RoundTripper
	clientID string
	secret   string
}

func (t *clientAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.clientID, t.secret)
	return t.base.RoundTrip(req)
}

func withClientCredentials(client *http.Client, clientID, secret string) *http.Client {
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *client
	wrapped.Transport = &clientAuthTransport{base: base, clientID: clientID, secret: secret}
	return &wrapped
}

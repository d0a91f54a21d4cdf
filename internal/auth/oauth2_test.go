package auth

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extsys/internal/common/errors"
	"extsys/internal/common/logging"
	"extsys/internal/models"
)

type tokenServer struct {
	*httptest.Server
	requests atomic.Int32
}

func newTokenServer(t *testing.T, status int, body string) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.requests.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("client:secret")), r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(raw), "grant_type=client_credentials")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body == "" {
			_, _ = io.WriteString(w, `{"token_type":"Bearer","access_token":"token-`+string(rune('0'+n))+`","expires_in":60}`)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newOAuth2(t *testing.T, tokenURL string, clock Clock, cacheToken bool) *OAuth2Strategy {
	t.Helper()
	strategy, err := Build(models.AuthOAuth2, Settings{
		ConfigID:                    "H1",
		OAuth2ClientID:              "client",
		EncryptedOAuth2ClientSecret: "secret",
		OAuth2AuthServerURL:         tokenURL,
		CacheToken:                  cacheToken,
		Clock:                       clock,
		Logger:                      logging.NopLogger{},
	})
	require.NoError(t, err)
	return strategy.(*OAuth2Strategy)
}

func TestOAuth2Strategy_Headers(t *testing.T) {
	t.Run("token cached between calls", func(t *testing.T) {
		server := newTokenServer(t, http.StatusOK, "")
		strategy := newOAuth2(t, server.URL, newFakeClock(), true)

		for i := 0; i < 3; i++ {
			headers, err := strategy.Headers(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "Bearer token-1", headers["Authorization"])
		}
		assert.Equal(t, int32(1), server.requests.Load())
		assert.Equal(t, map[string]interface{}{"expiresIn": 60}, strategy.AuthorizationData())
	})

	t.Run("expired token is replaced", func(t *testing.T) {
		server := newTokenServer(t, http.StatusOK, "")
		clock := newFakeClock()
		strategy := newOAuth2(t, server.URL, clock, true)

		_, err := strategy.Headers(context.Background())
		require.NoError(t, err)
		first := strategy.CurrentToken()

		clock.Advance(61 * time.Second)
		headers, err := strategy.Headers(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "Bearer token-2", headers["Authorization"])
		assert.NotSame(t, first, strategy.CurrentToken())
		assert.Equal(t, "token-1", first.Value())
	})

	t.Run("non cacheable mode requests every time", func(t *testing.T) {
		server := newTokenServer(t, http.StatusOK, "")
		strategy := newOAuth2(t, server.URL, newFakeClock(), false)

		_, err := strategy.Headers(context.Background())
		require.NoError(t, err)
		_, err = strategy.Headers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int32(2), server.requests.Load())
	})

	t.Run("concurrent callers share one acquisition", func(t *testing.T) {
		server := newTokenServer(t, http.StatusOK, "")
		strategy := newOAuth2(t, server.URL, newFakeClock(), true)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				headers, err := strategy.Headers(context.Background())
				assert.NoError(t, err)
				assert.Equal(t, "Bearer token-1", headers["Authorization"])
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), server.requests.Load())
	})

	t.Run("expires_in defaults to one hour", func(t *testing.T) {
		server := newTokenServer(t, http.StatusOK, `{"token_type":"bearer","access_token":"abc"}`)
		strategy := newOAuth2(t, server.URL, newFakeClock(), true)

		headers, err := strategy.Headers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer abc", headers["Authorization"])
		assert.Equal(t, DefaultTokenLifetime, strategy.CurrentToken().ExpiresIn())
	})
}

func TestOAuth2Strategy_RawClientCredentials(t *testing.T) {
	const secret = "s+cr/t%3D=="
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("client id:"+secret))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"token_type":"Bearer","access_token":"raw","expires_in":60}`)
	}))
	t.Cleanup(server.Close)

	strategy, err := Build(models.AuthOAuth2, Settings{
		ConfigID:                    "H1",
		OAuth2ClientID:              "client id",
		EncryptedOAuth2ClientSecret: secret,
		OAuth2AuthServerURL:         server.URL,
		CacheToken:                  true,
		Logger:                      logging.NopLogger{},
	})
	require.NoError(t, err)

	headers, err := strategy.(HeaderStrategy).Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer raw", headers["Authorization"])
}

func TestOAuth2Strategy_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"error status", http.StatusForbidden, `{"error":"invalid_client"}`, "Authorization server returned a 403 error response"},
		{"unsupported token type", http.StatusOK, `{"token_type":"mac","access_token":"abc"}`, "Unsupported access token type mac"},
		{"missing token type", http.StatusOK, `{"access_token":"abc"}`, "Authorization server response does not declare the access token type"},
		{"missing access token", http.StatusOK, `{"token_type":"Bearer"}`, "Could not extract access token data"},
		{"malformed body", http.StatusOK, `{not json`, "Could not extract access token data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTokenServer(t, tt.status, tt.body)
			strategy := newOAuth2(t, server.URL, newFakeClock(), true)

			_, err := strategy.Headers(context.Background())
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeAuthorization))
			assert.Equal(t, tt.wantMsg, errors.Message(err))
			assert.Nil(t, strategy.CurrentToken())
		})
	}

	t.Run("unreachable server", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		strategy := newOAuth2(t, url, newFakeClock(), true)
		_, err := strategy.Headers(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeAuthorization))
		assert.Equal(t, "Request to retrieve the access token failed", errors.Message(err))
	})

	t.Run("secret decryption failure", func(t *testing.T) {
		_, err := Build(models.AuthOAuth2, Settings{
			ConfigID:  "H9",
			Decrypter: failingDecrypter{},
			Logger:    logging.NopLogger{},
		})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
		assert.Equal(t, "Error decrypting OAuth2 Client Secret of HTTP configuration H9", errors.Message(err))
	})
}

func TestOAuth2Strategy_HandleRetry(t *testing.T) {
	server := newTokenServer(t, http.StatusOK, "")
	strategy := newOAuth2(t, server.URL, newFakeClock(), true)

	_, err := strategy.Headers(context.Background())
	require.NoError(t, err)
	require.NotNil(t, strategy.CurrentToken())

	assert.False(t, strategy.HandleRetry(http.StatusInternalServerError))
	assert.NotNil(t, strategy.CurrentToken())

	assert.True(t, strategy.HandleRetry(http.StatusUnauthorized))
	assert.Nil(t, strategy.CurrentToken())

	headers, err := strategy.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer token-2", headers["Authorization"])
	assert.Equal(t, int32(2), server.requests.Load())
}

package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

// TokenServer is a client-credentials token endpoint issuing token-1, token-2, ...
type TokenServer struct {
	Server   *httptest.Server
	requests atomic.Int64
}

// NewTokenServer starts a token endpoint accepting clientID and secret.
func NewTokenServer(t testing.TB, clientID, secret string, expiresIn int) *TokenServer {
	ts := &TokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.requests.Add(1)

		id, pass, ok := r.BasicAuth()
		if !ok || id != clientID || pass != secret || r.FormValue("grant_type") != "client_credentials" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": "token-" + strconv.FormatInt(n, 10),
			"token_type":   "Bearer",
			"expires_in":   expiresIn,
		})
	}))
	t.Cleanup(ts.Server.Close)
	return ts
}

func (ts *TokenServer) URL() string {
	return ts.Server.URL
}

// Requests counts token requests received
func (ts *TokenServer) Requests() int64 {
	return ts.requests.Load()
}

// Token returns the n-th token issued
func Token(n int) string {
	return "token-" + strconv.Itoa(n)
}

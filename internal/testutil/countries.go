// Package testutil provides fixtures shared by package tests: builders for
// connection records and a fake REST backend to send them to.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// Country is the resource served by CountryBackend
type Country struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	IsoCountryCode string `json:"isoCountryCode"`
}

// CountryBackend is a small REST API over an in-memory country table.
//
// Routes:
//
//	POST   /countries            create, 201
//	GET    /countries?_where=f='v'  list, optionally filtered by one equality
//	GET    /countries/{id}       read, 404 with an empty body when missing
//	PUT    /countries/{id}       replace
//	DELETE /countries/{id}       delete, 204
//	ANY    /status/{code}        empty response with the given status
//	ANY    /text                 plain text body
//	ANY    /slow                 blocks until the client gives up
type CountryBackend struct {
	Server *httptest.Server

	mu        sync.Mutex
	countries map[string]Country
	nextID    int
	requests  atomic.Int64
	lastReq   atomic.Pointer[http.Request]

	authorize func(w http.ResponseWriter, r *http.Request) bool
}

// BackendOption configures a CountryBackend
type BackendOption func(*CountryBackend)

// WithBasicChallenge requires Basic credentials and answers unauthenticated
// requests with a WWW-Authenticate challenge.
func WithBasicChallenge(username, password string) BackendOption {
	return func(b *CountryBackend) {
		b.authorize = func(w http.ResponseWriter, r *http.Request) bool {
			user, pass, ok := r.BasicAuth()
			if ok && user == username && pass == password {
				return true
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="countries"`)
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
	}
}

// WithBasicHeader requires Basic credentials without issuing a challenge.
func WithBasicHeader(username, password string) BackendOption {
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
	return func(b *CountryBackend) {
		b.authorize = func(w http.ResponseWriter, r *http.Request) bool {
			if r.Header.Get("Authorization") == want {
				return true
			}
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
	}
}

// WithBearer accepts requests whose bearer token passes valid.
func WithBearer(valid func(token string) bool) BackendOption {
	return func(b *CountryBackend) {
		b.authorize = func(w http.ResponseWriter, r *http.Request) bool {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token != "" && valid(token) {
				return true
			}
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
	}
}

// NewCountryBackend starts the backend and stops it when the test ends.
func NewCountryBackend(t testing.TB, opts ...BackendOption) *CountryBackend {
	b := &CountryBackend{countries: make(map[string]Country)}
	for _, opt := range opts {
		opt(b)
	}

	r := mux.NewRouter()
	r.Use(b.middleware)
	r.HandleFunc("/countries", b.create).Methods(http.MethodPost)
	r.HandleFunc("/countries", b.list).Methods(http.MethodGet)
	r.HandleFunc("/countries/{id}", b.read).Methods(http.MethodGet)
	r.HandleFunc("/countries/{id}", b.update).Methods(http.MethodPut)
	r.HandleFunc("/countries/{id}", b.remove).Methods(http.MethodDelete)
	r.HandleFunc("/status/{code:[0-9]+}", status)
	r.HandleFunc("/text", text)
	r.HandleFunc("/slow", slow)

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the base address of the backend
func (b *CountryBackend) URL() string {
	return b.Server.URL
}

// Requests counts every request received, rejected ones included
func (b *CountryBackend) Requests() int64 {
	return b.requests.Load()
}

// LastRequest returns the most recent request received
func (b *CountryBackend) LastRequest() *http.Request {
	return b.lastReq.Load()
}

// Seed stores countries directly and returns them with their ids
func (b *CountryBackend) Seed(countries ...Country) []Country {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Country, 0, len(countries))
	for _, c := range countries {
		out = append(out, b.insert(c))
	}
	return out
}

func (b *CountryBackend) insert(c Country) Country {
	b.nextID++
	c.ID = strconv.Itoa(b.nextID)
	b.countries[c.ID] = c
	return c
}

func (b *CountryBackend) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		b.lastReq.Store(r.Clone(r.Context()))
		if b.authorize != nil && !b.authorize(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *CountryBackend) create(w http.ResponseWriter, r *http.Request) {
	var c Country
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	b.mu.Lock()
	c = b.insert(c)
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, c)
}

var wherePattern = regexp.MustCompile(`^\s*(\w+)\s*=\s*'([^']*)'\s*$`)

func (b *CountryBackend) list(w http.ResponseWriter, r *http.Request) {
	field, value := "", ""
	if where := r.URL.Query().Get("_where"); where != "" {
		m := wherePattern.FindStringSubmatch(where)
		if m == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported filter"})
			return
		}
		field, value = m[1], m[2]
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]Country, 0, len(b.countries))
	for i := 1; i <= b.nextID; i++ {
		c, ok := b.countries[strconv.Itoa(i)]
		if !ok || !matches(c, field, value) {
			continue
		}
		result = append(result, c)
	}
	writeJSON(w, http.StatusOK, result)
}

func matches(c Country, field, value string) bool {
	switch field {
	case "":
		return true
	case "id":
		return c.ID == value
	case "name":
		return c.Name == value
	case "isoCountryCode":
		return c.IsoCountryCode == value
	default:
		return false
	}
}

func (b *CountryBackend) read(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	c, ok := b.countries[mux.Vars(r)["id"]]
	b.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (b *CountryBackend) update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var c Country
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.countries[id]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	c.ID = id
	b.countries[id] = c
	writeJSON(w, http.StatusOK, c)
}

func (b *CountryBackend) remove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b.mu.Lock()
	_, ok := b.countries[id]
	delete(b.countries, id)
	b.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func status(w http.ResponseWriter, r *http.Request) {
	code, _ := strconv.Atoi(mux.Vars(r)["code"])
	w.WriteHeader(code)
}

func text(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("plain response"))
}

func slow(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(5 * time.Second):
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

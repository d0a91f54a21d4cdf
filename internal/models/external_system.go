package models

import (
	"time"
)

// Protocol tags understood by the protocol registry
const (
	ProtocolHTTP        = "HTTP"
	ProtocolRedisStream = "REDIS_STREAM"
)

// Authorization types for HTTP configurations
const (
	AuthBasic             = "BASIC"
	AuthBasicAlwaysHeader = "BASIC_ALWAYS_HEADER"
	AuthOAuth2            = "OAUTH2"
	AuthNone              = "NOAUTH"
)

// ExternalSystem is the connection record of a third-party system that data is sent to.
type ExternalSystem struct {
	ID        string       `json:"id" validate:"required"`
	Name      string       `json:"name" validate:"required"`
	SearchKey string       `json:"search_key" validate:"required"`
	Protocol  string       `json:"protocol" validate:"required"`
	Active    bool         `json:"active"`
	HTTP      []HTTPConfig `json:"http,omitempty" validate:"-"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ActiveHTTPConfig returns the first active HTTP sub-record
func (e *ExternalSystem) ActiveHTTPConfig() (*HTTPConfig, bool) {
	for i := range e.HTTP {
		if e.HTTP[i].Active {
			return &e.HTTP[i], true
		}
	}
	return nil, false
}

// HTTPConfig is the HTTP sub-record of an external system. Secrets are stored encrypted.
type HTTPConfig struct {
	ID                          string    `json:"id" validate:"required"`
	ExternalSystemID            string    `json:"external_system_id" validate:"required"`
	URL                         string    `json:"url" validate:"required,url"`
	RequestMethod               string    `json:"request_method" validate:"required"`
	TimeoutSeconds              int       `json:"timeout" validate:"min=0"`
	AuthorizationType           string    `json:"authorization_type" validate:"required"`
	Username                    string    `json:"username,omitempty"`
	EncryptedPassword           string    `json:"-"`
	OAuth2ClientID              string    `json:"oauth2_client_id,omitempty"`
	EncryptedOAuth2ClientSecret string    `json:"-"`
	OAuth2AuthServerURL         string    `json:"oauth2_auth_server_url,omitempty"`
	Active                      bool      `json:"active"`
	CreatedAt                   time.Time `json:"created_at"`
	UpdatedAt                   time.Time `json:"updated_at"`
}

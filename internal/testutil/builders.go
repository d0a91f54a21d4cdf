package testutil

import (
	"time"

	"extsys/internal/models"
)

// ExternalSystemBuilder helps build test external systems with one HTTP configuration
type ExternalSystemBuilder struct {
	system *models.ExternalSystem
}

// NewExternalSystemBuilder creates a builder for an active HTTP system without authorization
func NewExternalSystemBuilder() *ExternalSystemBuilder {
	now := time.Now()
	return &ExternalSystemBuilder{
		system: &models.ExternalSystem{
			ID:        "es-1",
			Name:      "Countries",
			SearchKey: "countries",
			Protocol:  models.ProtocolHTTP,
			Active:    true,
			HTTP: []models.HTTPConfig{
				{
					ID:                "hc-1",
					ExternalSystemID:  "es-1",
					URL:               "http://localhost",
					RequestMethod:     "POST",
					TimeoutSeconds:    5,
					AuthorizationType: models.AuthNone,
					Active:            true,
					CreatedAt:         now,
					UpdatedAt:         now,
				},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func (b *ExternalSystemBuilder) WithID(id string) *ExternalSystemBuilder {
	b.system.ID = id
	for i := range b.system.HTTP {
		b.system.HTTP[i].ExternalSystemID = id
	}
	return b
}

func (b *ExternalSystemBuilder) WithSearchKey(searchKey string) *ExternalSystemBuilder {
	b.system.SearchKey = searchKey
	return b
}

func (b *ExternalSystemBuilder) WithProtocol(protocol string) *ExternalSystemBuilder {
	b.system.Protocol = protocol
	return b
}

func (b *ExternalSystemBuilder) WithActive(active bool) *ExternalSystemBuilder {
	b.system.Active = active
	return b
}

func (b *ExternalSystemBuilder) WithURL(url string) *ExternalSystemBuilder {
	b.httpConfig().URL = url
	return b
}

func (b *ExternalSystemBuilder) WithMethod(method string) *ExternalSystemBuilder {
	b.httpConfig().RequestMethod = method
	return b
}

func (b *ExternalSystemBuilder) WithTimeout(seconds int) *ExternalSystemBuilder {
	b.httpConfig().TimeoutSeconds = seconds
	return b
}

func (b *ExternalSystemBuilder) WithBasicAuth(method, username, encryptedPassword string) *ExternalSystemBuilder {
	cfg := b.httpConfig()
	cfg.AuthorizationType = method
	cfg.Username = username
	cfg.EncryptedPassword = encryptedPassword
	return b
}

func (b *ExternalSystemBuilder) WithOAuth2(authServerURL, clientID, encryptedSecret string) *ExternalSystemBuilder {
	cfg := b.httpConfig()
	cfg.AuthorizationType = models.AuthOAuth2
	cfg.OAuth2AuthServerURL = authServerURL
	cfg.OAuth2ClientID = clientID
	cfg.EncryptedOAuth2ClientSecret = encryptedSecret
	return b
}

// WithoutHTTP removes every HTTP configuration
func (b *ExternalSystemBuilder) WithoutHTTP() *ExternalSystemBuilder {
	b.system.HTTP = nil
	return b
}

func (b *ExternalSystemBuilder) Build() *models.ExternalSystem {
	system := *b.system
	system.HTTP = append([]models.HTTPConfig(nil), b.system.HTTP...)
	return &system
}

func (b *ExternalSystemBuilder) httpConfig() *models.HTTPConfig {
	if len(b.system.HTTP) == 0 {
		b.system.HTTP = []models.HTTPConfig{{ID: "hc-1", ExternalSystemID: b.system.ID, Active: true}}
	}
	return &b.system.HTTP[0]
}

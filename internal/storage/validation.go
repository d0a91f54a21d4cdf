package storage

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"extsys/internal/common/errors"
	"extsys/internal/common/validation"
	"extsys/internal/models"
)

// MaxTimeoutSeconds is the largest timeout a configuration may declare
const MaxTimeoutSeconds = 30

// MaxTimeoutMessage is reported for configurations above MaxTimeoutSeconds
const MaxTimeoutMessage = "Timeout must be a value lower than 30 seconds"

var requestMethods = []string{http.MethodDelete, http.MethodGet, http.MethodPost, http.MethodPut}

// ValidateExternalSystem checks a record and every HTTP configuration it carries.
func ValidateExternalSystem(system *models.ExternalSystem) error {
	v := validation.NewValidator()
	v.Validate(func() error { return validation.ValidateStruct(system) })
	for i := range system.HTTP {
		cfg := &system.HTTP[i]
		v.Validate(func() error { return ValidateHTTPConfig(cfg) })
	}
	return v.Error()
}

// ValidateHTTPConfig checks one HTTP configuration.
func ValidateHTTPConfig(cfg *models.HTTPConfig) error {
	v := validation.NewValidator()
	v.Validate(func() error { return validation.ValidateStruct(cfg) })
	v.RequireOneOf(strings.ToUpper(cfg.RequestMethod), requestMethods, "request_method")
	v.RequireMax(cfg.TimeoutSeconds, MaxTimeoutSeconds, MaxTimeoutMessage)

	switch cfg.AuthorizationType {
	case models.AuthBasic, models.AuthBasicAlwaysHeader:
		v.RequireString(cfg.Username, "username")
	case models.AuthOAuth2:
		v.RequireString(cfg.OAuth2ClientID, "oauth2_client_id")
		v.RequireURL(cfg.OAuth2AuthServerURL, "oauth2_auth_server_url")
	}
	return v.Error()
}

// NewID returns a new record id
func NewID() string {
	return uuid.NewString()
}

// PrepareExternalSystem fills in ids, ownership and timestamps before saving.
func PrepareExternalSystem(system *models.ExternalSystem, now time.Time) {
	if system.ID == "" {
		system.ID = NewID()
	}
	if system.CreatedAt.IsZero() {
		system.CreatedAt = now
	}
	system.UpdatedAt = now
	for i := range system.HTTP {
		system.HTTP[i].ExternalSystemID = system.ID
		PrepareHTTPConfig(&system.HTTP[i], now)
	}
}

func PrepareHTTPConfig(cfg *models.HTTPConfig, now time.Time) {
	if cfg.ID == "" {
		cfg.ID = NewID()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	cfg.RequestMethod = strings.ToUpper(cfg.RequestMethod)
}

// SearchKeyTaken reports a search key used by another record
func SearchKeyTaken(searchKey string) error {
	return errors.ValidationError(fmt.Sprintf("search_key %s is already in use", searchKey))
}

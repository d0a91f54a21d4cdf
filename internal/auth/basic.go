package auth

import (
	"context"
	"encoding/base64"

	"extsys/internal/common/errors"
	"extsys/internal/common/logging"
	"extsys/internal/models"
)

func init() {
	Register(models.AuthBasic, func() Strategy { return &BasicStrategy{} })
	Register(models.AuthBasicAlwaysHeader, func() Strategy { return &BasicHeaderStrategy{} })
	Register(models.AuthNone, func() Strategy { return &NoAuthStrategy{} })
}

// BasicStrategy answers an HTTP Basic challenge with the configured
// credentials. Nothing is sent until the server asks for it.
type BasicStrategy struct {
	username string
	password string
}

func (s *BasicStrategy) Init(settings Settings) error {
	password, err := decryptPassword(settings)
	if err != nil {
		return err
	}
	s.username = settings.Username
	s.password = password
	return nil
}

func (s *BasicStrategy) Credentials() (string, string) {
	return s.username, s.password
}

func (s *BasicStrategy) HandleRetry(int) bool {
	return false
}

// BasicHeaderStrategy sends a precomputed Basic Authorization header with every request.
type BasicHeaderStrategy struct {
	header string
}

func (s *BasicHeaderStrategy) Init(settings Settings) error {
	password, err := decryptPassword(settings)
	if err != nil {
		return err
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(settings.Username + ":" + password))
	s.header = "Basic " + credentials
	return nil
}

func (s *BasicHeaderStrategy) Headers(context.Context) (map[string]string, error) {
	return map[string]string{"Authorization": s.header}, nil
}

func (s *BasicHeaderStrategy) HandleRetry(int) bool {
	return false
}

// NoAuthStrategy sends requests without credentials.
type NoAuthStrategy struct{}

func (s *NoAuthStrategy) Init(Settings) error  { return nil }
func (s *NoAuthStrategy) HandleRetry(int) bool { return false }

func decryptPassword(settings Settings) (string, error) {
	password, err := settings.decrypter().Decrypt(settings.EncryptedPassword)
	if err != nil {
		settings.logger().Error("Error decrypting password of HTTP configuration", err,
			logging.String("http_config_id", settings.ConfigID))
		return "", errors.ConfigErrorf("Error decrypting password of HTTP configuration %s", settings.ConfigID)
	}
	return password, nil
}

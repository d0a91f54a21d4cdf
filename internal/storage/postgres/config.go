package postgres

import (
	"fmt"
	"net/url"
	"strings"
)

type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("PostgreSQL host is required")
	}

	if c.Port <= 0 {
		c.Port = 5432
	}

	if c.Database == "" {
		return fmt.Errorf("PostgreSQL database name is required")
	}

	if c.Username == "" {
		return fmt.Errorf("PostgreSQL username is required")
	}

	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}

	return nil
}

func (c *Config) GetType() string {
	return "postgres"
}

// GetConnectionString renders a keyword/value DSN understood by pgx
func (c *Config) GetConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, quote(c.Password), c.Database, c.SSLMode)
}

func quote(value string) string {
	if value == "" {
		return "''"
	}
	if !strings.ContainsAny(value, ` '\`) {
		return value
	}
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return "'" + value + "'"
}

func NewConfigFromURL(connStr string) (*Config, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("invalid PostgreSQL URL scheme: %s", u.Scheme)
	}

	config := &Config{
		Host:     u.Hostname(),
		Database: strings.TrimPrefix(u.Path, "/"),
		Port:     5432,
		SSLMode:  "prefer",
	}
	if config.Database == "" {
		config.Database = "extsys"
	}
	if u.User != nil {
		config.Username = u.User.Username()
		if password, ok := u.User.Password(); ok {
			config.Password = password
		}
	}

	if u.Port() != "" {
		port := 5432
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err == nil {
			config.Port = port
		}
	}

	if sslMode := u.Query().Get("sslmode"); sslMode != "" {
		config.SSLMode = sslMode
	}

	return config, nil
}

func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		Database: "extsys",
		Username: "postgres",
		Password: "",
		SSLMode:  "prefer",
	}
}

// FromSettings maps storage settings onto a Config, keeping defaults for empty fields.
func FromSettings(host string, port int, database, username, password, sslMode string) *Config {
	config := DefaultConfig()
	if host != "" {
		config.Host = host
	}
	if port > 0 {
		config.Port = port
	}
	if database != "" {
		config.Database = database
	}
	if username != "" {
		config.Username = username
	}
	config.Password = password
	if sslMode != "" {
		config.SSLMode = sslMode
	}
	return config
}

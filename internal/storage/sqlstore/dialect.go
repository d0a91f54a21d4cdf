// Package sqlstore implements storage.Store over database/sql. The SQLite and
// PostgreSQL stores share it and differ only in their Dialect.
package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect holds what differs between databases
type Dialect struct {
	Name       string
	Migrations []string
	// Placeholder renders the n-th (1-based) bind parameter
	Placeholder func(n int) string
}

// Rebind rewrites ? placeholders into the dialect's style.
func (d Dialect) Rebind(query string) string {
	if d.Placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var SQLite = Dialect{
	Name: "sqlite",
	Migrations: []string{
		`CREATE TABLE IF NOT EXISTS external_systems (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			search_key TEXT NOT NULL UNIQUE,
			protocol TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS http_configs (
			id TEXT PRIMARY KEY,
			external_system_id TEXT NOT NULL REFERENCES external_systems (id),
			url TEXT NOT NULL,
			request_method TEXT NOT NULL,
			timeout_seconds INTEGER NOT NULL DEFAULT 0,
			authorization_type TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			encrypted_password TEXT NOT NULL DEFAULT '',
			oauth2_client_id TEXT NOT NULL DEFAULT '',
			encrypted_oauth2_client_secret TEXT NOT NULL DEFAULT '',
			oauth2_auth_server_url TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_http_configs_external_system_id ON http_configs (external_system_id)`,
	},
}

var Postgres = Dialect{
	Name: "postgres",
	Migrations: []string{
		`CREATE TABLE IF NOT EXISTS external_systems (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			search_key TEXT NOT NULL UNIQUE,
			protocol TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS http_configs (
			id TEXT PRIMARY KEY,
			external_system_id TEXT NOT NULL REFERENCES external_systems (id),
			url TEXT NOT NULL,
			request_method TEXT NOT NULL,
			timeout_seconds INTEGER NOT NULL DEFAULT 0,
			authorization_type TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			encrypted_password TEXT NOT NULL DEFAULT '',
			oauth2_client_id TEXT NOT NULL DEFAULT '',
			encrypted_oauth2_client_secret TEXT NOT NULL DEFAULT '',
			oauth2_auth_server_url TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_http_configs_external_system_id ON http_configs (external_system_id)`,
	},
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

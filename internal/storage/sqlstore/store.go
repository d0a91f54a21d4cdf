package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"extsys/internal/common/errors"
	"extsys/internal/common/logging"
	"extsys/internal/events"
	"extsys/internal/models"
	"extsys/internal/storage"
)

const (
	systemColumns = `id, name, search_key, protocol, active, created_at, updated_at`
	httpColumns   = `id, external_system_id, url, request_method, timeout_seconds, authorization_type,
		username, encrypted_password, oauth2_client_id, encrypted_oauth2_client_secret,
		oauth2_auth_server_url, active, created_at, updated_at`

	upsertSystem = `INSERT INTO external_systems (` + systemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			search_key = excluded.search_key,
			protocol = excluded.protocol,
			active = excluded.active,
			updated_at = excluded.updated_at`

	upsertHTTPConfig = `INSERT INTO http_configs (` + httpColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			external_system_id = excluded.external_system_id,
			url = excluded.url,
			request_method = excluded.request_method,
			timeout_seconds = excluded.timeout_seconds,
			authorization_type = excluded.authorization_type,
			username = excluded.username,
			encrypted_password = excluded.encrypted_password,
			oauth2_client_id = excluded.oauth2_client_id,
			encrypted_oauth2_client_secret = excluded.encrypted_oauth2_client_secret,
			oauth2_auth_server_url = excluded.oauth2_auth_server_url,
			active = excluded.active,
			updated_at = excluded.updated_at`
)

// Store implements storage.Store on a *sql.DB.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	notifier *storage.Notifier
	logger   logging.Logger
	now      func() time.Time
}

// New wraps db and applies the dialect's migrations.
func New(ctx context.Context, db *sql.DB, dialect Dialect, bus events.Bus, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Store{
		db:       db,
		dialect:  dialect,
		notifier: storage.NewNotifier(bus, logger),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, query := range s.dialect.Migrations {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	s.logger.Debug("Database migrated", logging.String("dialect", s.dialect.Name))
	return nil
}

// DB exposes the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) GetExternalSystem(ctx context.Context, id string) (*models.ExternalSystem, error) {
	return s.getSystem(ctx, s.db, `WHERE id = ?`, id)
}

func (s *Store) FindExternalSystem(ctx context.Context, ref string) (*models.ExternalSystem, error) {
	system, err := s.GetExternalSystem(ctx, ref)
	if !errors.IsType(err, errors.ErrTypeNotFound) {
		return system, err
	}
	return s.getSystem(ctx, s.db, `WHERE search_key = ?`, ref)
}

func (s *Store) getSystem(ctx context.Context, q queryer, where string, arg interface{}) (*models.ExternalSystem, error) {
	query := s.dialect.Rebind(`SELECT ` + systemColumns + ` FROM external_systems ` + where)

	system, err := scanSystem(q.QueryRowContext(ctx, query, arg))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundError("external system")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get external system: %w", err)
	}

	if system.HTTP, err = s.httpConfigs(ctx, q, system.ID); err != nil {
		return nil, err
	}
	return system, nil
}

func (s *Store) ListExternalSystems(ctx context.Context) ([]*models.ExternalSystem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+systemColumns+` FROM external_systems ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list external systems: %w", err)
	}

	var systems []*models.ExternalSystem
	for rows.Next() {
		system, err := scanSystem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan external system: %w", err)
		}
		systems = append(systems, system)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list external systems: %w", err)
	}

	for _, system := range systems {
		if system.HTTP, err = s.httpConfigs(ctx, s.db, system.ID); err != nil {
			return nil, err
		}
	}
	return systems, nil
}

func (s *Store) httpConfigs(ctx context.Context, q queryer, systemID string) ([]models.HTTPConfig, error) {
	query := s.dialect.Rebind(`SELECT ` + httpColumns + ` FROM http_configs WHERE external_system_id = ? ORDER BY created_at, id`)
	rows, err := q.QueryContext(ctx, query, systemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get http configurations: %w", err)
	}
	defer rows.Close()

	var configs []models.HTTPConfig
	for rows.Next() {
		cfg, err := scanHTTPConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan http configuration: %w", err)
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

func (s *Store) SaveExternalSystem(ctx context.Context, system *models.ExternalSystem) error {
	storage.PrepareExternalSystem(system, s.now())
	if err := storage.ValidateExternalSystem(system); err != nil {
		return err
	}

	action := events.ActionCreate
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.exists(ctx, tx, `external_systems`, system.ID)
		if err != nil {
			return err
		}
		if exists {
			action = events.ActionUpdate
		}
		if err := s.checkSearchKey(ctx, tx, system); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(upsertSystem),
			system.ID, system.Name, system.SearchKey, system.Protocol, system.Active,
			system.CreatedAt, system.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to save external system: %w", err)
		}

		for i := range system.HTTP {
			if err := s.upsertHTTPConfig(ctx, tx, &system.HTTP[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.SystemChanged(ctx, action, system.ID)
	return nil
}

func (s *Store) DeleteExternalSystem(ctx context.Context, id string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM http_configs WHERE external_system_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete http configurations: %w", err)
		}
		result, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM external_systems WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete external system: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return errors.NotFoundError("external system")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.SystemChanged(ctx, events.ActionDelete, id)
	return nil
}

func (s *Store) SaveHTTPConfig(ctx context.Context, cfg *models.HTTPConfig) error {
	storage.PrepareHTTPConfig(cfg, s.now())
	if err := storage.ValidateHTTPConfig(cfg); err != nil {
		return err
	}

	action := events.ActionCreate
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		owner, err := s.exists(ctx, tx, `external_systems`, cfg.ExternalSystemID)
		if err != nil {
			return err
		}
		if !owner {
			return errors.NotFoundError("external system")
		}
		exists, err := s.exists(ctx, tx, `http_configs`, cfg.ID)
		if err != nil {
			return err
		}
		if exists {
			action = events.ActionUpdate
		}
		return s.upsertHTTPConfig(ctx, tx, cfg)
	})
	if err != nil {
		return err
	}

	s.notifier.HTTPConfigChanged(ctx, action, cfg.ID, cfg.ExternalSystemID)
	return nil
}

func (s *Store) DeleteHTTPConfig(ctx context.Context, id string) error {
	var systemID string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT external_system_id FROM http_configs WHERE id = ?`), id).Scan(&systemID)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFoundError("http configuration")
		}
		if err != nil {
			return fmt.Errorf("failed to get http configuration: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM http_configs WHERE id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete http configuration: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.HTTPConfigChanged(ctx, events.ActionDelete, id, systemID)
	return nil
}

func (s *Store) upsertHTTPConfig(ctx context.Context, tx *sql.Tx, cfg *models.HTTPConfig) error {
	_, err := tx.ExecContext(ctx, s.dialect.Rebind(upsertHTTPConfig),
		cfg.ID, cfg.ExternalSystemID, cfg.URL, cfg.RequestMethod, cfg.TimeoutSeconds, cfg.AuthorizationType,
		cfg.Username, cfg.EncryptedPassword, cfg.OAuth2ClientID, cfg.EncryptedOAuth2ClientSecret,
		cfg.OAuth2AuthServerURL, cfg.Active, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save http configuration: %w", err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, q queryer, table, id string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, s.dialect.Rebind(`SELECT COUNT(*) FROM `+table+` WHERE id = ?`), id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", table, err)
	}
	return n > 0, nil
}

func (s *Store) checkSearchKey(ctx context.Context, q queryer, system *models.ExternalSystem) error {
	var n int
	query := s.dialect.Rebind(`SELECT COUNT(*) FROM external_systems WHERE search_key = ? AND id <> ?`)
	if err := q.QueryRowContext(ctx, query, system.SearchKey, system.ID).Scan(&n); err != nil {
		return fmt.Errorf("failed to query external_systems: %w", err)
	}
	if n > 0 {
		return storage.SearchKeyTaken(system.SearchKey)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSystem(row scanner) (*models.ExternalSystem, error) {
	system := &models.ExternalSystem{}
	err := row.Scan(&system.ID, &system.Name, &system.SearchKey, &system.Protocol, &system.Active,
		&system.CreatedAt, &system.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return system, nil
}

func scanHTTPConfig(row scanner) (*models.HTTPConfig, error) {
	cfg := &models.HTTPConfig{}
	err := row.Scan(&cfg.ID, &cfg.ExternalSystemID, &cfg.URL, &cfg.RequestMethod, &cfg.TimeoutSeconds,
		&cfg.AuthorizationType, &cfg.Username, &cfg.EncryptedPassword, &cfg.OAuth2ClientID,
		&cfg.EncryptedOAuth2ClientSecret, &cfg.OAuth2AuthServerURL, &cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

var _ storage.Store = (*Store)(nil)

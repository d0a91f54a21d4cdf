// Package memory keeps connection records in process memory. It is used in
// tests and by the CLI when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"extsys/internal/common/errors"
	"extsys/internal/common/logging"
	"extsys/internal/events"
	"extsys/internal/models"
	"extsys/internal/storage"
)

type Store struct {
	mu       sync.RWMutex
	systems  map[string]*models.ExternalSystem
	notifier *storage.Notifier
	closed   bool
}

func New(bus events.Bus, logger logging.Logger) *Store {
	return &Store{
		systems:  make(map[string]*models.ExternalSystem),
		notifier: storage.NewNotifier(bus, logger),
	}
}

func (s *Store) GetExternalSystem(_ context.Context, id string) (*models.ExternalSystem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	system, ok := s.systems[id]
	if !ok {
		return nil, errors.NotFoundError("external system")
	}
	return clone(system), nil
}

func (s *Store) FindExternalSystem(ctx context.Context, ref string) (*models.ExternalSystem, error) {
	if system, err := s.GetExternalSystem(ctx, ref); err == nil {
		return system, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, system := range s.systems {
		if system.SearchKey == ref {
			return clone(system), nil
		}
	}
	return nil, errors.NotFoundError("external system")
}

func (s *Store) ListExternalSystems(_ context.Context) ([]*models.ExternalSystem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	systems := make([]*models.ExternalSystem, 0, len(s.systems))
	for _, system := range s.systems {
		systems = append(systems, clone(system))
	}
	sort.Slice(systems, func(i, j int) bool {
		if systems[i].Name != systems[j].Name {
			return systems[i].Name < systems[j].Name
		}
		return systems[i].ID < systems[j].ID
	})
	return systems, nil
}

func (s *Store) SaveExternalSystem(ctx context.Context, system *models.ExternalSystem) error {
	storage.PrepareExternalSystem(system, now())
	if err := storage.ValidateExternalSystem(system); err != nil {
		return err
	}

	s.mu.Lock()
	for id, other := range s.systems {
		if id != system.ID && other.SearchKey == system.SearchKey {
			s.mu.Unlock()
			return storage.SearchKeyTaken(system.SearchKey)
		}
	}

	action := events.ActionCreate
	if existing, ok := s.systems[system.ID]; ok {
		action = events.ActionUpdate
		system.CreatedAt = existing.CreatedAt
		// configurations saved on their own survive a save without them
		system.HTTP = mergeHTTP(existing.HTTP, system.HTTP)
	}
	s.systems[system.ID] = clone(system)
	s.mu.Unlock()

	s.notifier.SystemChanged(ctx, action, system.ID)
	return nil
}

func (s *Store) DeleteExternalSystem(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.systems[id]; !ok {
		s.mu.Unlock()
		return errors.NotFoundError("external system")
	}
	delete(s.systems, id)
	s.mu.Unlock()

	s.notifier.SystemChanged(ctx, events.ActionDelete, id)
	return nil
}

func (s *Store) SaveHTTPConfig(ctx context.Context, cfg *models.HTTPConfig) error {
	storage.PrepareHTTPConfig(cfg, now())
	if err := storage.ValidateHTTPConfig(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	system, ok := s.systems[cfg.ExternalSystemID]
	if !ok {
		s.mu.Unlock()
		return errors.NotFoundError("external system")
	}
	// a configuration may move between records
	for _, other := range s.systems {
		if other.ID != system.ID {
			other.HTTP = removeHTTP(other.HTTP, cfg.ID)
		}
	}

	action := events.ActionCreate
	for i := range system.HTTP {
		if system.HTTP[i].ID == cfg.ID {
			action = events.ActionUpdate
			cfg.CreatedAt = system.HTTP[i].CreatedAt
			system.HTTP[i] = *cfg
			break
		}
	}
	if action == events.ActionCreate {
		system.HTTP = append(system.HTTP, *cfg)
	}
	s.mu.Unlock()

	s.notifier.HTTPConfigChanged(ctx, action, cfg.ID, cfg.ExternalSystemID)
	return nil
}

func (s *Store) DeleteHTTPConfig(ctx context.Context, id string) error {
	s.mu.Lock()
	var systemID string
	for _, system := range s.systems {
		for _, cfg := range system.HTTP {
			if cfg.ID == id {
				systemID = system.ID
			}
		}
		if systemID != "" {
			system.HTTP = removeHTTP(system.HTTP, id)
			break
		}
	}
	s.mu.Unlock()

	if systemID == "" {
		return errors.NotFoundError("http configuration")
	}
	s.notifier.HTTPConfigChanged(ctx, events.ActionDelete, id, systemID)
	return nil
}

func (s *Store) Health(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.InternalError("memory store is closed", nil)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func clone(system *models.ExternalSystem) *models.ExternalSystem {
	c := *system
	if system.HTTP != nil {
		c.HTTP = append([]models.HTTPConfig(nil), system.HTTP...)
	}
	return &c
}

func mergeHTTP(existing, saved []models.HTTPConfig) []models.HTTPConfig {
	merged := append([]models.HTTPConfig(nil), existing...)
	for _, cfg := range saved {
		replaced := false
		for i := range merged {
			if merged[i].ID == cfg.ID {
				cfg.CreatedAt = merged[i].CreatedAt
				merged[i] = cfg
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, cfg)
		}
	}
	return merged
}

func removeHTTP(configs []models.HTTPConfig, id string) []models.HTTPConfig {
	kept := configs[:0]
	for _, cfg := range configs {
		if cfg.ID != id {
			kept = append(kept, cfg)
		}
	}
	return kept
}

var _ storage.Store = (*Store)(nil)

// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extsys/internal/common/errors"
	"extsys/internal/events"
	"extsys/internal/models"
	"extsys/internal/storage"
	"extsys/internal/testutil"
)

// Opener returns an empty store publishing on bus
type Opener func(t *testing.T, bus events.Bus) storage.Store

type recorder struct {
	mu     sync.Mutex
	events []events.ChangeEvent
}

func (r *recorder) handle(event events.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) take() []events.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	taken := r.events
	r.events = nil
	return taken
}

func setup(t *testing.T, open Opener) (storage.Store, *recorder) {
	bus := events.NewLocalBus()
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	store := open(t, bus)
	t.Cleanup(func() { store.Close() })
	return store, rec
}

// Run exercises store implementations returned by open.
func Run(t *testing.T, open Opener) {
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		store, rec := setup(t, open)

		system := testutil.NewExternalSystemBuilder().WithURL("https://countries.example.com").Build()
		require.NoError(t, store.SaveExternalSystem(ctx, system))

		got, err := store.GetExternalSystem(ctx, "es-1")
		require.NoError(t, err)
		assert.Equal(t, "Countries", got.Name)
		assert.Equal(t, "countries", got.SearchKey)
		assert.Equal(t, models.ProtocolHTTP, got.Protocol)
		assert.True(t, got.Active)
		assert.False(t, got.CreatedAt.IsZero())

		require.Len(t, got.HTTP, 1)
		cfg := got.HTTP[0]
		assert.Equal(t, "hc-1", cfg.ID)
		assert.Equal(t, "es-1", cfg.ExternalSystemID)
		assert.Equal(t, "https://countries.example.com", cfg.URL)
		assert.Equal(t, "POST", cfg.RequestMethod)
		assert.Equal(t, 5, cfg.TimeoutSeconds)
		assert.Equal(t, models.AuthNone, cfg.AuthorizationType)
		assert.True(t, cfg.Active)

		evs := rec.take()
		require.Len(t, evs, 1)
		assert.Equal(t, events.EntityExternalSystem, evs[0].Entity)
		assert.Equal(t, events.ActionCreate, evs[0].Action)
		assert.Equal(t, "es-1", evs[0].ExternalSystemID)
	})

	t.Run("generated ids", func(t *testing.T) {
		store, _ := setup(t, open)

		system := testutil.NewExternalSystemBuilder().WithID("").Build()
		system.HTTP[0].ID = ""
		require.NoError(t, store.SaveExternalSystem(ctx, system))
		assert.NotEmpty(t, system.ID)
		assert.NotEmpty(t, system.HTTP[0].ID)
		assert.Equal(t, system.ID, system.HTTP[0].ExternalSystemID)

		_, err := store.GetExternalSystem(ctx, system.ID)
		assert.NoError(t, err)
	})

	t.Run("secrets are stored", func(t *testing.T) {
		store, _ := setup(t, open)

		system := testutil.NewExternalSystemBuilder().
			WithBasicAuth(models.AuthBasic, "admin", "ciphertext").
			Build()
		require.NoError(t, store.SaveExternalSystem(ctx, system))

		got, err := store.GetExternalSystem(ctx, "es-1")
		require.NoError(t, err)
		assert.Equal(t, "admin", got.HTTP[0].Username)
		assert.Equal(t, "ciphertext", got.HTTP[0].EncryptedPassword)
	})

	t.Run("find by id or search key", func(t *testing.T) {
		store, _ := setup(t, open)
		require.NoError(t, store.SaveExternalSystem(ctx, testutil.NewExternalSystemBuilder().Build()))

		byID, err := store.FindExternalSystem(ctx, "es-1")
		require.NoError(t, err)
		assert.Equal(t, "es-1", byID.ID)

		byKey, err := store.FindExternalSystem(ctx, "countries")
		require.NoError(t, err)
		assert.Equal(t, "es-1", byKey.ID)
		assert.Len(t, byKey.HTTP, 1)

		_, err = store.FindExternalSystem(ctx, "missing")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))

		_, err = store.GetExternalSystem(ctx, "countries")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	})

	t.Run("list ordered by name", func(t *testing.T) {
		store, _ := setup(t, open)

		zulu := testutil.NewExternalSystemBuilder().WithID("es-z").WithSearchKey("zulu").WithoutHTTP().Build()
		zulu.Name = "Zulu"
		alpha := testutil.NewExternalSystemBuilder().WithID("es-a").WithSearchKey("alpha").Build()
		alpha.Name = "Alpha"
		require.NoError(t, store.SaveExternalSystem(ctx, zulu))
		require.NoError(t, store.SaveExternalSystem(ctx, alpha))

		systems, err := store.ListExternalSystems(ctx)
		require.NoError(t, err)
		require.Len(t, systems, 2)
		assert.Equal(t, "Alpha", systems[0].Name)
		assert.Len(t, systems[0].HTTP, 1)
		assert.Equal(t, "Zulu", systems[1].Name)
		assert.Empty(t, systems[1].HTTP)
	})

	t.Run("update", func(t *testing.T) {
		store, rec := setup(t, open)

		system := testutil.NewExternalSystemBuilder().Build()
		require.NoError(t, store.SaveExternalSystem(ctx, system))
		rec.take()

		system.Name = "Countries v2"
		system.SearchKey = "countries-v2"
		system.HTTP[0].TimeoutSeconds = 20
		require.NoError(t, store.SaveExternalSystem(ctx, system))

		got, err := store.FindExternalSystem(ctx, "countries-v2")
		require.NoError(t, err)
		assert.Equal(t, "Countries v2", got.Name)
		require.Len(t, got.HTTP, 1)
		assert.Equal(t, 20, got.HTTP[0].TimeoutSeconds)

		_, err = store.FindExternalSystem(ctx, "countries")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))

		evs := rec.take()
		require.Len(t, evs, 1)
		assert.Equal(t, events.ActionUpdate, evs[0].Action)
	})

	t.Run("duplicate search key", func(t *testing.T) {
		store, rec := setup(t, open)

		require.NoError(t, store.SaveExternalSystem(ctx, testutil.NewExternalSystemBuilder().Build()))
		rec.take()

		other := testutil.NewExternalSystemBuilder().WithID("es-2").WithoutHTTP().Build()
		err := store.SaveExternalSystem(ctx, other)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
		assert.Contains(t, err.Error(), "search_key countries is already in use")
		assert.Empty(t, rec.take())
	})

	t.Run("validation", func(t *testing.T) {
		store, rec := setup(t, open)

		tests := []struct {
			name    string
			system  *models.ExternalSystem
			message string
		}{
			{
				name:    "timeout above maximum",
				system:  testutil.NewExternalSystemBuilder().WithTimeout(35).Build(),
				message: storage.MaxTimeoutMessage,
			},
			{
				name:    "unknown method",
				system:  testutil.NewExternalSystemBuilder().WithMethod("PATCH").Build(),
				message: "request_method must be one of",
			},
			{
				name:    "basic without username",
				system:  testutil.NewExternalSystemBuilder().WithBasicAuth(models.AuthBasic, "", "secret").Build(),
				message: "username is required",
			},
			{
				name:    "oauth2 without token url",
				system:  testutil.NewExternalSystemBuilder().WithOAuth2("", "client", "secret").Build(),
				message: "oauth2_auth_server_url must be a valid URL",
			},
			{
				name:    "missing url",
				system:  testutil.NewExternalSystemBuilder().WithURL("").Build(),
				message: "url is required",
			},
			{
				name: "missing name",
				system: func() *models.ExternalSystem {
					s := testutil.NewExternalSystemBuilder().Build()
					s.Name = ""
					return s
				}(),
				message: "name is required",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := store.SaveExternalSystem(ctx, tt.system)
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
				assert.Contains(t, err.Error(), tt.message)
			})
		}

		systems, err := store.ListExternalSystems(ctx)
		require.NoError(t, err)
		assert.Empty(t, systems)
		assert.Empty(t, rec.take())
	})

	t.Run("timeout at maximum is accepted", func(t *testing.T) {
		store, _ := setup(t, open)
		assert.NoError(t, store.SaveExternalSystem(ctx, testutil.NewExternalSystemBuilder().WithTimeout(30).Build()))
	})

	t.Run("http configurations", func(t *testing.T) {
		store, rec := setup(t, open)
		require.NoError(t, store.SaveExternalSystem(ctx, testutil.NewExternalSystemBuilder().Build()))
		rec.take()

		cfg := &models.HTTPConfig{
			ID:                "hc-2",
			ExternalSystemID:  "es-1",
			URL:               "https://backup.example.com",
			RequestMethod:     "put",
			AuthorizationType: models.AuthNone,
		}
		require.NoError(t, store.SaveHTTPConfig(ctx, cfg))
		assert.Equal(t, "PUT", cfg.RequestMethod)

		got, err := store.GetExternalSystem(ctx, "es-1")
		require.NoError(t, err)
		require.Len(t, got.HTTP, 2)

		cfg.URL = "https://backup2.example.com"
		require.NoError(t, store.SaveHTTPConfig(ctx, cfg))

		got, err = store.GetExternalSystem(ctx, "es-1")
		require.NoError(t, err)
		require.Len(t, got.HTTP, 2)
		for _, c := range got.HTTP {
			if c.ID == "hc-2" {
				assert.Equal(t, "https://backup2.example.com", c.URL)
			}
		}

		evs := rec.take()
		require.Len(t, evs, 2)
		assert.Equal(t, events.EntityHTTPConfig, evs[0].Entity)
		assert.Equal(t, events.ActionCreate, evs[0].Action)
		assert.Equal(t, events.ActionUpdate, evs[1].Action)
		assert.Equal(t, "hc-2", evs[1].ID)
		assert.Equal(t, "es-1", evs[1].ExternalSystemID)

		require.NoError(t, store.DeleteHTTPConfig(ctx, "hc-2"))
		got, err = store.GetExternalSystem(ctx, "es-1")
		require.NoError(t, err)
		require.Len(t, got.HTTP, 1)
		assert.Equal(t, "hc-1", got.HTTP[0].ID)

		evs = rec.take()
		require.Len(t, evs, 1)
		assert.Equal(t, events.ActionDelete, evs[0].Action)
		assert.Equal(t, "es-1", evs[0].ExternalSystemID)

		err = store.DeleteHTTPConfig(ctx, "hc-2")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	})

	t.Run("http configuration of missing system", func(t *testing.T) {
		store, _ := setup(t, open)

		err := store.SaveHTTPConfig(ctx, &models.HTTPConfig{
			ExternalSystemID:  "missing",
			URL:               "https://example.com",
			RequestMethod:     "POST",
			AuthorizationType: models.AuthNone,
		})
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))

		err = store.SaveHTTPConfig(ctx, &models.HTTPConfig{
			ExternalSystemID:  "es-1",
			URL:               "https://example.com",
			RequestMethod:     "POST",
			TimeoutSeconds:    31,
			AuthorizationType: models.AuthNone,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), storage.MaxTimeoutMessage)
	})

	t.Run("delete", func(t *testing.T) {
		store, rec := setup(t, open)
		require.NoError(t, store.SaveExternalSystem(ctx, testutil.NewExternalSystemBuilder().Build()))
		rec.take()

		require.NoError(t, store.DeleteExternalSystem(ctx, "es-1"))

		_, err := store.GetExternalSystem(ctx, "es-1")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
		err = store.DeleteHTTPConfig(ctx, "hc-1")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))

		evs := rec.take()
		require.Len(t, evs, 1)
		assert.Equal(t, events.ActionDelete, evs[0].Action)
		assert.Equal(t, "es-1", evs[0].ID)

		err = store.DeleteExternalSystem(ctx, "es-1")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	})

	t.Run("health", func(t *testing.T) {
		store, _ := setup(t, open)
		assert.NoError(t, store.Health(ctx))
	})
}

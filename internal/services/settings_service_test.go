package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funecosystem/angel-ai/internal/storage"
	"github.com/funecosystem/angel-ai/internal/storage/sqlite"
)

func settingsFixture(t *testing.T) *SettingsService {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewSettingsService(store, PersonaSettings{Name: "Angel AI"})
}

func TestPersonaFallsBackToDefaults(t *testing.T) {
	svc := settingsFixture(t)

	settings, err := svc.Persona(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Angel AI", settings.Name)
}

func TestUpdatePersonaPersists(t *testing.T) {
	svc := settingsFixture(t)
	ctx := context.Background()

	err := svc.UpdatePersona(ctx, PersonaSettings{Name: "Thiên Thần"})
	require.NoError(t, err)

	settings, err := svc.Persona(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Thiên Thần", settings.Name)

	// Updates overwrite, not append.
	require.NoError(t, svc.UpdatePersona(ctx, PersonaSettings{Name: "Angel"}))
	settings, err = svc.Persona(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Angel", settings.Name)
}

func TestUpdatePersonaRejectsBlankName(t *testing.T) {
	svc := settingsFixture(t)

	err := svc.UpdatePersona(context.Background(), PersonaSettings{Name: "   "})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

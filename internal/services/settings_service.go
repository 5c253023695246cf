package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/funecosystem/angel-ai/internal/storage"
)

// Setting keys in the settings table.
const settingPersonaName = "persona_name"

// PersonaSettings is the runtime-editable persona configuration.
type PersonaSettings struct {
	Name string `json:"name"`
}

// SettingsService manages persisted runtime settings. Values written here
// take precedence over environment variables on the next config load.
type SettingsService struct {
	store    storage.SettingsStore
	defaults PersonaSettings
}

// NewSettingsService creates a settings service. defaults fill in values
// that have never been persisted.
func NewSettingsService(store storage.SettingsStore, defaults PersonaSettings) *SettingsService {
	return &SettingsService{store: store, defaults: defaults}
}

// Persona returns the current persona settings, falling back to the
// configured defaults for keys that were never written.
func (s *SettingsService) Persona(ctx context.Context) (*PersonaSettings, error) {
	settings := s.defaults

	name, err := s.store.GetSetting(ctx, settingPersonaName)
	switch {
	case err == nil && name != "":
		settings.Name = name
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	return &settings, nil
}

// UpdatePersona persists new persona settings.
func (s *SettingsService) UpdatePersona(ctx context.Context, settings PersonaSettings) error {
	settings.Name = strings.TrimSpace(settings.Name)
	if settings.Name == "" {
		return fmt.Errorf("%w: persona name is required", storage.ErrInvalidInput)
	}
	return s.store.SetSetting(ctx, settingPersonaName, settings.Name)
}

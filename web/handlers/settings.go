package handlers

import (
	"net/http"

	"github.com/funecosystem/angel-ai/internal/services"
)

// SettingsHandlers serves the admin persona settings endpoint.
type SettingsHandlers struct {
	settings *services.SettingsService
}

// NewSettingsHandlers creates the settings handlers.
func NewSettingsHandlers(settings *services.SettingsService) *SettingsHandlers {
	return &SettingsHandlers{settings: settings}
}

// Persona handles GET and PUT /api/settings/persona.
func (h *SettingsHandlers) Persona(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := h.settings.Persona(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)

	case http.MethodPut:
		var req services.PersonaSettings
		if !decodeBody(w, r, &req) {
			return
		}
		if err := h.settings.UpdatePersona(r.Context(), req); err != nil {
			writeServiceError(w, err)
			return
		}
		settings, err := h.settings.Persona(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)

	default:
		methodNotAllowed(w)
	}
}

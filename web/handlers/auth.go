package handlers

import (
	"net/http"

	"github.com/funecosystem/angel-ai/internal/services"
	"github.com/funecosystem/angel-ai/pkg/types"
)

// AuthHandlers serves registration, login and session introspection.
type AuthHandlers struct {
	auth *services.AuthService
}

// NewAuthHandlers creates the auth handlers.
func NewAuthHandlers(auth *services.AuthService) *AuthHandlers {
	return &AuthHandlers{auth: auth}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  *types.User `json:"user"`
	Token string      `json:"token"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, token, err := h.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, sessionResponse{User: user, Token: token})
}

// Login handles POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, sessionResponse{User: user, Token: token})
}

// Logout handles POST /api/auth/logout. Tokens are stateless, so logout
// only clears the cookie; the token itself stays valid until expiry.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/auth/me. It runs inside RequireUser.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/funecosystem/angel-ai/internal/auth"
	"github.com/funecosystem/angel-ai/internal/services"
	"github.com/funecosystem/angel-ai/internal/storage"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

// writeError writes a standard error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeServiceError maps service and storage errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, storage.ErrDuplicate):
		writeError(w, http.StatusConflict, "DUPLICATE", err.Error())
	case errors.Is(err, services.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "EMPTY_MESSAGE", "message content is required")
	case errors.Is(err, services.ErrNotEditable):
		writeError(w, http.StatusBadRequest, "NOT_EDITABLE", "only user messages can be edited")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired session")
	default:
		log.Printf("ERROR: Request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}

// decodeBody parses a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON request body")
		return false
	}
	return true
}

// parseListOptions reads ?page= and ?limit= query parameters.
func parseListOptions(r *http.Request) storage.ListOptions {
	opts := storage.ListOptions{}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		opts.Page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		opts.Limit = v
	}
	return opts
}

// methodNotAllowed writes the standard 405 response.
func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/funecosystem/angel-ai/internal/fetcher"
)

// FetchHandlers serves the URL scraper endpoint.
type FetchHandlers struct {
	fetcher *fetcher.Fetcher
}

// NewFetchHandlers creates the fetch handlers.
func NewFetchHandlers(f *fetcher.Fetcher) *FetchHandlers {
	return &FetchHandlers{fetcher: f}
}

type fetchURLRequest struct {
	URL string `json:"url"`
}

type fetchURLResponse struct {
	Success bool   `json:"success"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FetchURL handles POST /api/fetch-url: download a page and return its
// title and plain-text content.
func (h *FetchHandlers) FetchURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req fetchURLRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		writeFetchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fetchURLResponse{
		Success: true,
		Title:   result.Title,
		Content: result.Content,
		URL:     result.URL,
	})
}

// writeFetchError maps fetcher errors onto HTTP statuses. Upstream
// failures surface as 400 with the upstream status in the message.
func writeFetchError(w http.ResponseWriter, err error) {
	var statusErr *fetcher.StatusError
	switch {
	case errors.Is(err, fetcher.ErrEmptyURL):
		writeJSON(w, http.StatusBadRequest, fetchURLResponse{Success: false, Error: "URL is required"})
	case errors.As(err, &statusErr):
		writeJSON(w, http.StatusBadRequest, fetchURLResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to fetch: %s", statusErr.Status),
		})
	case errors.Is(err, fetcher.ErrCircuitOpen):
		writeJSON(w, http.StatusServiceUnavailable, fetchURLResponse{
			Success: false,
			Error:   "fetcher is temporarily unavailable",
		})
	default:
		writeServiceError(w, err)
	}
}

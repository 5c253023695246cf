package handlers

import (
	"net/http"

	"github.com/funecosystem/angel-ai/internal/services"
	"github.com/funecosystem/angel-ai/pkg/types"
)

// KnowledgeHandlers serves the admin knowledge base CRUD and URL import.
// All routes run inside RequireAdmin.
type KnowledgeHandlers struct {
	knowledge *services.KnowledgeService
}

// NewKnowledgeHandlers creates the knowledge handlers.
func NewKnowledgeHandlers(knowledge *services.KnowledgeService) *KnowledgeHandlers {
	return &KnowledgeHandlers{knowledge: knowledge}
}

type knowledgeDocRequest struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Source      string   `json:"source"`
	Tags        []string `json:"tags"`
	EnergyLevel int      `json:"energy_level"`
}

type importRequest struct {
	URL  string   `json:"url"`
	Tags []string `json:"tags"`
}

// List handles GET /api/knowledge.
func (h *KnowledgeHandlers) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.knowledge.List(r.Context(), parseListOptions(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Create handles POST /api/knowledge.
func (h *KnowledgeHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req knowledgeDocRequest
	if !decodeBody(w, r, &req) {
		return
	}

	doc := &types.KnowledgeDoc{
		Title:       req.Title,
		Content:     req.Content,
		Source:      req.Source,
		Tags:        req.Tags,
		EnergyLevel: req.EnergyLevel,
	}
	if err := h.knowledge.Create(r.Context(), doc); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// Get handles GET /api/knowledge/{id}.
func (h *KnowledgeHandlers) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.knowledge.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Update handles PUT /api/knowledge/{id}.
func (h *KnowledgeHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req knowledgeDocRequest
	if !decodeBody(w, r, &req) {
		return
	}

	doc := &types.KnowledgeDoc{
		ID:          r.PathValue("id"),
		Title:       req.Title,
		Content:     req.Content,
		Source:      req.Source,
		Tags:        req.Tags,
		EnergyLevel: req.EnergyLevel,
	}
	if err := h.knowledge.Update(r.Context(), doc); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Delete handles DELETE /api/knowledge/{id}.
func (h *KnowledgeHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.knowledge.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Import handles POST /api/knowledge/import: scrape a URL and store the
// result as a document.
func (h *KnowledgeHandlers) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeBody(w, r, &req) {
		return
	}

	doc, err := h.knowledge.ImportFromURL(r.Context(), req.URL, req.Tags)
	if err != nil {
		writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

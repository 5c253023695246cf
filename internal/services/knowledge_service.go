package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/funecosystem/angel-ai/internal/fetcher"
	"github.com/funecosystem/angel-ai/internal/storage"
	"github.com/funecosystem/angel-ai/pkg/types"
)

// KnowledgeService manages the admin-curated knowledge base and imports
// external pages into it through the URL fetcher.
type KnowledgeService struct {
	store   storage.KnowledgeStore
	fetcher *fetcher.Fetcher
}

// NewKnowledgeService creates a knowledge service. fetch may be nil when
// URL import is disabled.
func NewKnowledgeService(store storage.KnowledgeStore, fetch *fetcher.Fetcher) *KnowledgeService {
	return &KnowledgeService{store: store, fetcher: fetch}
}

// Create stores a new document.
func (s *KnowledgeService) Create(ctx context.Context, doc *types.KnowledgeDoc) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Title = strings.TrimSpace(doc.Title)
	doc.Content = strings.TrimSpace(doc.Content)
	return s.store.CreateDoc(ctx, doc)
}

// Get returns a document by ID.
func (s *KnowledgeService) Get(ctx context.Context, id string) (*types.KnowledgeDoc, error) {
	return s.store.GetDoc(ctx, id)
}

// List returns documents newest-first with pagination.
func (s *KnowledgeService) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.KnowledgeDoc], error) {
	return s.store.ListDocs(ctx, opts)
}

// Update modifies an existing document.
func (s *KnowledgeService) Update(ctx context.Context, doc *types.KnowledgeDoc) error {
	doc.Title = strings.TrimSpace(doc.Title)
	doc.Content = strings.TrimSpace(doc.Content)
	if doc.Title == "" || doc.Content == "" {
		return fmt.Errorf("%w: title and content are required", storage.ErrInvalidInput)
	}
	return s.store.UpdateDoc(ctx, doc)
}

// Delete removes a document.
func (s *KnowledgeService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteDoc(ctx, id)
}

// ImportFromURL scrapes a page and stores it as a document. The page URL
// is kept as the document source; an untitled page falls back to its URL
// as the title.
func (s *KnowledgeService) ImportFromURL(ctx context.Context, url string, tags []string) (*types.KnowledgeDoc, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("%w: URL import is disabled", storage.ErrInvalidInput)
	}

	result, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if result.Content == "" {
		return nil, fmt.Errorf("%w: page at %s has no readable content", storage.ErrInvalidInput, result.URL)
	}

	title := result.Title
	if title == "" {
		title = result.URL
	}
	doc := &types.KnowledgeDoc{
		ID:      uuid.NewString(),
		Title:   title,
		Content: result.Content,
		Source:  result.URL,
		Tags:    tags,
	}
	if err := s.store.CreateDoc(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

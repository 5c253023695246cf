package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/funecosystem/angel-ai/internal/storage"
	"github.com/funecosystem/angel-ai/pkg/types"
)

// CreateDoc stores a new knowledge document. Tags are serialised to JSON.
func (s *Store) CreateDoc(ctx context.Context, doc *types.KnowledgeDoc) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document ID is required", storage.ErrInvalidInput)
	}
	if doc.Title == "" || doc.Content == "" {
		return fmt.Errorf("%w: title and content are required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	if doc.EnergyLevel == 0 {
		doc.EnergyLevel = 12
	}

	tagsJSON, err := marshalTags(doc.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge (id, title, content, source, tags, energy_level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Title, doc.Content, doc.Source, tagsJSON, doc.EnergyLevel, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create knowledge doc: %w", err)
	}
	return nil
}

// GetDoc retrieves a document by ID.
func (s *Store) GetDoc(ctx context.Context, id string) (*types.KnowledgeDoc, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, source, tags, energy_level, created_at, updated_at
		FROM knowledge WHERE id = ?
	`, id)

	doc, err := scanDoc(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocs returns documents newest-first with pagination.
func (s *Store) ListDocs(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.KnowledgeDoc], error) {
	opts.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge").Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count knowledge docs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, source, tags, energy_level, created_at, updated_at
		FROM knowledge
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, opts.Limit, opts.Offset())
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list knowledge docs: %w", err)
	}
	defer rows.Close()

	items := make([]types.KnowledgeDoc, 0, opts.Limit)
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate knowledge docs: %w", err)
	}

	return &storage.PaginatedResult[types.KnowledgeDoc]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// UpdateDoc modifies an existing document.
func (s *Store) UpdateDoc(ctx context.Context, doc *types.KnowledgeDoc) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document ID is required", storage.ErrInvalidInput)
	}

	tagsJSON, err := marshalTags(doc.Tags)
	if err != nil {
		return err
	}
	doc.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE knowledge
		SET title = ?, content = ?, source = ?, tags = ?, energy_level = ?, updated_at = ?
		WHERE id = ?
	`, doc.Title, doc.Content, doc.Source, tagsJSON, doc.EnergyLevel, doc.UpdatedAt, doc.ID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update knowledge doc: %w", err)
	}
	return requireRow(res)
}

// DeleteDoc removes a document.
func (s *Store) DeleteDoc(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM knowledge WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete knowledge doc: %w", err)
	}
	return requireRow(res)
}

func marshalTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to marshal tags: %w", err)
	}
	return string(data), nil
}

func scanDoc(row rowScanner) (*types.KnowledgeDoc, error) {
	var doc types.KnowledgeDoc
	var tagsJSON sql.NullString
	err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Source, &tagsJSON,
		&doc.EnergyLevel, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan knowledge doc: %w", err)
	}

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &doc.Tags); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal tags: %w", err)
		}
	}
	return &doc, nil
}

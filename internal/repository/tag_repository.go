package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type TagRepositoryInterface interface {
	FindOrCreate(ctx context.Context, name string) (*model.Tag, error)
	List(ctx context.Context) ([]model.Tag, error)
}

type TagRepository struct {
	DB *sqlx.DB
}

// FindOrCreate returns the tag with this name, creating it on first use.
func (r *TagRepository) FindOrCreate(ctx context.Context, name string) (*model.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErrors.NewValidation("tag", "name is required")
	}
	query := `
        INSERT INTO tags (name) VALUES ($1)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING id, name, created_at
    `
	var t model.Tag
	if err := r.DB.GetContext(ctx, &t, query, name); err != nil {
		return nil, fmt.Errorf("failed to find or create tag: %w", err)
	}
	return &t, nil
}

func (r *TagRepository) List(ctx context.Context) ([]model.Tag, error) {
	tags := []model.Tag{}
	if err := r.DB.SelectContext(ctx, &tags, `SELECT id, name, created_at FROM tags ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

var _ TagRepositoryInterface = (*TagRepository)(nil)

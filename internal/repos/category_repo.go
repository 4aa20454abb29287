package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"tirepos/internal/domain"
)

type CategoryRepo struct{ db *sqlx.DB }

func NewCategoryRepo(db *sqlx.DB) *CategoryRepo { return &CategoryRepo{db: db} }

func (r *CategoryRepo) List(ctx context.Context) ([]domain.Category, error) {
	out := []domain.Category{}
	err := r.db.SelectContext(ctx, &out, `
  SELECT id, name, description
  FROM categories
  ORDER BY name
`)
	return out, err
}

func (r *CategoryRepo) Get(ctx context.Context, id int64) (domain.Category, error) {
	var c domain.Category
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`SELECT id, name, description FROM categories WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Category{}, ErrNotFound
	}
	return c, err
}

func (r *CategoryRepo) Create(ctx context.Context, name, description string) (domain.Category, error) {
	c := domain.Category{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
	  INSERT INTO categories(name, description) VALUES (?, ?) RETURNING id
	`), c.Name, c.Description).Scan(&c.ID)
	if isUniqueViolation(err) {
		return domain.Category{}, fmt.Errorf("category %s: %w", c.Name, ErrDuplicate)
	}
	if err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

// GetOrCreate finds a category by case-insensitive name, creating it if needed.
func (r *CategoryRepo) GetOrCreate(ctx context.Context, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	var c domain.Category
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`
	  SELECT id, name, description FROM categories WHERE LOWER(name) = LOWER(?)
	`), name)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Category{}, err
	}
	c, err = r.Create(ctx, name, "")
	if errors.Is(err, ErrDuplicate) {
		// lost a race with a concurrent insert
		return r.GetOrCreate(ctx, name)
	}
	return c, err
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/DeafMist/knowledge-share/backend/internal/models"
)

const (
	articleColumns = `a.id, a.title, a.category, a.content, a.tags, a.short_summary, a.user_id, a.created_at, a.updated_at`
	authorColumns  = `u.id AS "author.id", u.username AS "author.username", u.email AS "author.email"`
)

// ArticleFilter narrows ListArticles. Empty fields do not filter. A non-nil
// IDs restricts the result to those ids; an empty non-nil IDs matches nothing.
type ArticleFilter struct {
	Category string
	Tags     string
	Search   string
	UserID   string
	IDs      []string
}

// CreateArticle inserts a, assigning its ID and timestamps.
func (s *Store) CreateArticle(ctx context.Context, a *models.Article) error {
	now := s.timestamp()
	a.ID = uuid.NewString()
	a.CreatedAt = now
	a.UpdatedAt = now

	query := s.db.Rebind(`INSERT INTO articles (id, title, category, content, tags, short_summary, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Title, a.Category, a.Content, a.Tags, a.ShortSummary, a.UserID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// Article returns the article with its author.
func (s *Store) Article(ctx context.Context, id string) (*models.Article, error) {
	var a models.Article
	query := s.db.Rebind(`SELECT ` + articleColumns + `, ` + authorColumns + `
		FROM articles a JOIN users u ON u.id = a.user_id
		WHERE a.id = ?`)
	if err := s.db.GetContext(ctx, &a, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get article: %w", err)
	}
	return &a, nil
}

// ListArticles returns matching articles with authors, newest first.
func (s *Store) ListArticles(ctx context.Context, f ArticleFilter) ([]models.Article, error) {
	if f.IDs != nil && len(f.IDs) == 0 {
		return []models.Article{}, nil
	}

	var (
		conds []string
		args  []any
	)
	if f.Category != "" {
		conds = append(conds, "a.category = ?")
		args = append(args, f.Category)
	}
	if f.Tags != "" {
		conds = append(conds, "a.tags LIKE ?")
		args = append(args, "%"+f.Tags+"%")
	}
	if f.Search != "" {
		conds = append(conds, "(a.title LIKE ? OR a.short_summary LIKE ?)")
		args = append(args, "%"+f.Search+"%", "%"+f.Search+"%")
	}
	if f.UserID != "" {
		conds = append(conds, "a.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.IDs != nil {
		conds = append(conds, "a.id IN (?)")
		args = append(args, f.IDs)
	}

	query := `SELECT ` + articleColumns + `, ` + authorColumns + `
		FROM articles a JOIN users u ON u.id = a.user_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY a.created_at DESC, a.id DESC"

	if f.IDs != nil {
		var err error
		query, args, err = sqlx.In(query, args...)
		if err != nil {
			return nil, fmt.Errorf("expand article ids: %w", err)
		}
	}

	articles := []models.Article{}
	if err := s.db.SelectContext(ctx, &articles, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return articles, nil
}

// UpdateArticle persists the mutable fields of a and refreshes UpdatedAt.
func (s *Store) UpdateArticle(ctx context.Context, a *models.Article) error {
	a.UpdatedAt = s.timestamp()

	query := s.db.Rebind(`UPDATE articles
		SET title = ?, category = ?, content = ?, tags = ?, short_summary = ?, updated_at = ?
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, a.Title, a.Category, a.Content, a.Tags, a.ShortSummary, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	return expectRow(res)
}

// DeleteArticle removes the article with id.
func (s *Store) DeleteArticle(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM articles WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

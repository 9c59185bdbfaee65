package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/DeafMist/knowledge-share/backend/internal/models"
)

// CreateUser inserts u, assigning its ID and timestamps. Emails are unique.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if _, err := s.UserByEmail(ctx, u.Email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	now := s.timestamp()
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now

	query := s.db.Rebind(`INSERT INTO users (id, username, email, password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UserByEmail looks a user up by exact email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	query := s.db.Rebind(`SELECT id, username, email, password, created_at, updated_at FROM users WHERE email = ?`)
	if err := s.db.GetContext(ctx, &u, query, strings.TrimSpace(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// Package users persists bot users and their per-user context map.
//
// A user is identified by the platform-scoped sender ID within a bot
// namespace; the context map holds free-form key/value state such as the
// pending dialog prompt and survives process restarts.
package users

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domerrors "github.com/hermod-chat/hermod/internal/errors"
	"github.com/hermod-chat/hermod/internal/storage"
)

// User is a known bot user within one namespace.
type User struct {
	ID         int64
	Namespace  string
	PlatformID string
	CreatedAt  int64
}

// Store is the durable user repository.
type Store struct {
	db *storage.DB
}

// New creates a store backed by the given database.
func New(db *storage.DB) *Store {
	return &Store{db: db}
}

// FindOrCreate returns the user for (namespace, platformID), creating the
// row on first contact. Safe under concurrent calls for the same user: the
// unique index makes the insert idempotent.
func (s *Store) FindOrCreate(ctx context.Context, namespace, platformID string) (*User, error) {
	if namespace == "" || platformID == "" {
		return nil, domerrors.ErrInvalidRequest
	}

	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO users (namespace, platform_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(namespace, platform_id) DO NOTHING
	`, namespace, platformID, time.Now().Unix())
	if err != nil {
		return nil, domerrors.NewStorageError("create user", platformID, err)
	}

	var u User
	err = s.db.Conn().QueryRowContext(ctx, `
		SELECT id, namespace, platform_id, created_at
		FROM users
		WHERE namespace = ? AND platform_id = ?
	`, namespace, platformID).Scan(&u.ID, &u.Namespace, &u.PlatformID, &u.CreatedAt)
	if err != nil {
		return nil, domerrors.NewStorageError("find user", platformID, err)
	}
	return &u, nil
}

// GetContext returns the value stored under key for the user, or
// errors.ErrNotFound when the key is unset.
func (s *Store) GetContext(ctx context.Context, userID int64, key string) (string, error) {
	var value string
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT value FROM user_context WHERE user_id = ? AND key = ?`,
		userID, key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", domerrors.ErrNotFound
	}
	if err != nil {
		return "", domerrors.NewStorageError("get context", key, err)
	}
	return value, nil
}

// SetContext stores value under key for the user, replacing any previous
// value.
func (s *Store) SetContext(ctx context.Context, userID int64, key, value string) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO user_context (user_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value
	`, userID, key, value)
	if err != nil {
		return domerrors.NewStorageError("set context", key, err)
	}
	return nil
}

// DeleteContext removes the keys from the user's context map. Missing keys
// are ignored.
func (s *Store) DeleteContext(ctx context.Context, userID int64, keys ...string) error {
	for _, key := range keys {
		_, err := s.db.Conn().ExecContext(ctx,
			`DELETE FROM user_context WHERE user_id = ? AND key = ?`,
			userID, key,
		)
		if err != nil {
			return domerrors.NewStorageError("delete context", key, err)
		}
	}
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"spendbook/internal/models"
)

// Records reads and writes the users collection and the session pointer on
// top of a RecordStore.
type Records struct {
	store  RecordStore
	logger *slog.Logger
}

// NewRecords wraps store.
func NewRecords(store RecordStore, logger *slog.Logger) *Records {
	if logger == nil {
		logger = slog.Default()
	}
	return &Records{store: store, logger: logger.With("component", "records")}
}

// Users returns the stored users collection. A missing or malformed
// collection reads as empty.
func (r *Records) Users(ctx context.Context) ([]models.User, error) {
	raw, ok, err := r.store.Load(ctx, UsersKey)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if !ok || raw == "" {
		return []models.User{}, nil
	}

	users, err := models.DecodeUsers([]byte(raw))
	if err != nil {
		r.logger.WarnContext(ctx, "stored users collection is malformed, treating as empty", "error", err)
		return []models.User{}, nil
	}
	return users, nil
}

// SaveUsers replaces the stored users collection.
func (r *Records) SaveUsers(ctx context.Context, users []models.User) error {
	if users == nil {
		users = []models.User{}
	}
	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	if err := r.store.Save(ctx, UsersKey, string(data)); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

// Pointer returns the raw session pointer.
func (r *Records) Pointer(ctx context.Context) (string, bool, error) {
	raw, ok, err := r.store.Load(ctx, SessionKey)
	if err != nil {
		return "", false, fmt.Errorf("load session: %w", err)
	}
	return raw, ok && raw != "", nil
}

// SavePointer stores u as the session pointer in snapshot form.
func (r *Records) SavePointer(ctx context.Context, u *models.User) error {
	raw, err := models.EncodePointer(u)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.store.Save(ctx, SessionKey, raw); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ClearPointer removes the session pointer.
func (r *Records) ClearPointer(ctx context.Context) error {
	if err := r.store.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// FindUser returns the index of the user with the given identity, or -1.
func FindUser(users []models.User, identity string) int {
	identity = models.NormalizeIdentity(identity)
	if identity == "" {
		return -1
	}
	for i := range users {
		if users[i].Identity() == identity {
			return i
		}
	}
	return -1
}

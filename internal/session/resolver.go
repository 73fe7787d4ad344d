// Package session resolves the logged-in user from the session pointer.
//
// The pointer is stored either as a bare identity (older records) or as a
// serialized user. Both decode to the same user: the entry of the users
// collection with that identity. Whenever the stored pointer is not the
// canonical snapshot of that entry it is rewritten, so the legacy shape
// disappears after the first read.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"spendbook/internal/models"
	"spendbook/internal/storage"
)

// Resolver reads the session pointer.
type Resolver struct {
	records *storage.Records
	logger  *slog.Logger
}

// NewResolver returns a Resolver over records.
func NewResolver(records *storage.Records, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{records: records, logger: logger.With("component", "session")}
}

// Resolve returns the logged-in user. It fails with models.ErrUnauthenticated
// when there is no pointer and with models.ErrStaleSession when the pointer
// names a user that is not in the collection; a stale pointer is cleared.
func (r *Resolver) Resolve(ctx context.Context) (*models.User, error) {
	raw, ok, err := r.records.Pointer(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrUnauthenticated
	}

	p, err := models.DecodePointer(raw)
	if err != nil {
		r.logger.WarnContext(ctx, "unreadable session pointer, clearing it", "error", err)
		r.clear(ctx)
		return nil, models.ErrUnauthenticated
	}

	users, err := r.records.Users(ctx)
	if err != nil {
		return nil, err
	}

	i := storage.FindUser(users, p.Identity)
	if i < 0 {
		r.logger.InfoContext(ctx, "session refers to unknown user, clearing it", "identity", p.Identity, "shape", p.Kind)
		r.clear(ctx)
		return nil, models.ErrStaleSession
	}

	user := users[i].Clone()
	if user.Normalize() {
		users[i] = *user.Clone()
		if err := r.records.SaveUsers(ctx, users); err != nil {
			r.logger.WarnContext(ctx, "failed to store repaired user", "identity", p.Identity, "error", err)
		}
	}

	canonical, err := models.EncodePointer(user)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if canonical != raw {
		r.logger.DebugContext(ctx, "rewriting session pointer", "identity", p.Identity, "shape", p.Kind)
		if err := r.records.SavePointer(ctx, user); err != nil {
			r.logger.WarnContext(ctx, "failed to rewrite session pointer", "identity", p.Identity, "error", err)
		}
	}

	return user, nil
}

// Login makes u the logged-in user.
func (r *Resolver) Login(ctx context.Context, u *models.User) error {
	return r.records.SavePointer(ctx, u)
}

// Logout clears the session pointer.
func (r *Resolver) Logout(ctx context.Context) error {
	return r.records.ClearPointer(ctx)
}

func (r *Resolver) clear(ctx context.Context) {
	if err := r.records.ClearPointer(ctx); err != nil {
		r.logger.WarnContext(ctx, "failed to clear session pointer", "error", err)
	}
}

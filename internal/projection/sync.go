// Package projection commits changes to a user so that the users collection
// and the session pointer never disagree.
package projection

import (
	"context"
	"log/slog"

	"spendbook/internal/models"
	"spendbook/internal/notify"
	"spendbook/internal/storage"
)

// Patch edits a copy of a user. Returning an error aborts the commit before
// anything is written.
type Patch func(u *models.User) error

// Syncer writes user changes to the users collection and the session pointer
// and tells subscribers about them.
type Syncer struct {
	records *storage.Records
	hub     *notify.Hub
	logger  *slog.Logger
}

// NewSyncer returns a Syncer. hub may be nil.
func NewSyncer(records *storage.Records, hub *notify.Hub, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{records: records, hub: hub, logger: logger.With("component", "projection")}
}

// Commit applies patch to the user with the given identity, stores the
// collection, then stores the result as the session pointer. If no user has
// that identity nothing is written, the pointer is cleared and
// models.ErrStaleSession is returned.
func (s *Syncer) Commit(ctx context.Context, identity string, patch Patch) (*models.User, error) {
	users, err := s.records.Users(ctx)
	if err != nil {
		return nil, err
	}

	i := storage.FindUser(users, identity)
	if i < 0 {
		s.logger.WarnContext(ctx, "commit for unknown user", "identity", identity)
		if err := s.records.ClearPointer(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to clear session pointer", "error", err)
		}
		return nil, models.ErrStaleSession
	}

	previous := users[i].Identity()
	updated := users[i].Clone()
	if err := patch(updated); err != nil {
		return nil, err
	}
	updated.Normalize()

	next := updated.Identity()
	if next == "" {
		return nil, &models.ValidationError{Field: "email", Message: "email is required"}
	}
	if next != previous && storage.FindUser(users, next) >= 0 {
		return nil, models.ErrDuplicateUser
	}

	users[i] = *updated.Clone()
	if err := s.records.SaveUsers(ctx, users); err != nil {
		return nil, err
	}
	if err := s.records.SavePointer(ctx, updated); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "committed user", "identity", next, "expenses", len(updated.Expenses))

	ev := notify.Event{Kind: notify.UserUpdated, Identity: next, User: updated}
	if next != previous {
		ev.Previous = previous
	}
	s.publish(ctx, ev)

	return updated.Clone(), nil
}

// Insert appends a new user to the collection. It fails with
// models.ErrDuplicateUser if the identity is taken. The session pointer is
// not touched.
func (s *Syncer) Insert(ctx context.Context, u *models.User) error {
	identity := u.Identity()
	if identity == "" {
		return &models.ValidationError{Field: "email", Message: "email is required"}
	}

	users, err := s.records.Users(ctx)
	if err != nil {
		return err
	}
	if storage.FindUser(users, identity) >= 0 {
		return models.ErrDuplicateUser
	}

	fresh := u.Clone()
	fresh.Normalize()
	users = append(users, *fresh)
	return s.records.SaveUsers(ctx, users)
}

// Remove deletes the user with the given identity and clears the session
// pointer.
func (s *Syncer) Remove(ctx context.Context, identity string) error {
	users, err := s.records.Users(ctx)
	if err != nil {
		return err
	}

	i := storage.FindUser(users, identity)
	if i < 0 {
		return models.ErrStaleSession
	}
	removed := users[i].Identity()
	users = append(users[:i], users[i+1:]...)

	if err := s.records.SaveUsers(ctx, users); err != nil {
		return err
	}
	if err := s.records.ClearPointer(ctx); err != nil {
		return err
	}

	s.publish(ctx, notify.Event{Kind: notify.UserRemoved, Identity: removed})
	return nil
}

func (s *Syncer) publish(ctx context.Context, ev notify.Event) {
	if s.hub != nil {
		s.hub.Publish(ctx, ev)
	}
}

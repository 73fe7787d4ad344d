package tracker

import (
	"context"
	"sync"

	"spendbook/internal/models"
	"spendbook/internal/notify"
)

// Surface holds the user shown by one rendering surface, such as a
// navigation bar. It is loaded once by Mount and kept current by user events
// until Close.
type Surface struct {
	mu          sync.Mutex
	user        *models.User
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	onChange    func(*models.User)
}

// Mount resolves the current user and subscribes a Surface to changes.
// onChange, if not nil, runs after every refresh with the new user, or nil
// once the session ended.
func (s *Service) Mount(ctx context.Context, onChange func(*models.User)) (*Surface, error) {
	user, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	v := &Surface{user: user, onChange: onChange}
	v.ctx, v.cancel = context.WithCancel(context.WithoutCancel(ctx))
	v.unsubscribe = s.hub.Subscribe(v.handle)
	return v, nil
}

func (v *Surface) handle(_ context.Context, ev notify.Event) {
	v.mu.Lock()
	if v.closed || v.user == nil {
		v.mu.Unlock()
		return
	}

	identity := v.user.Identity()
	mine := ev.Identity == identity || (ev.Previous != "" && ev.Previous == identity)
	if ev.Kind == notify.SessionEnded && ev.Identity == "" {
		mine = true
	}
	if !mine {
		v.mu.Unlock()
		return
	}

	switch ev.Kind {
	case notify.UserUpdated:
		v.user = ev.User
	case notify.UserRemoved, notify.SessionEnded:
		v.user = nil
	}
	user, onChange := v.user, v.onChange
	v.mu.Unlock()

	if onChange != nil {
		onChange(cloneUser(user))
	}
}

// User returns a copy of the displayed user, or nil after the session ended.
func (v *Surface) User() *models.User {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneUser(v.user)
}

// Context is cancelled when the surface is closed. Work started on behalf of
// the surface, like an avatar upload, should run under it.
func (v *Surface) Context() context.Context {
	return v.ctx
}

// Close detaches the surface. Events arriving afterwards are ignored.
func (v *Surface) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	v.unsubscribe()
	v.cancel()
}

func cloneUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	return u.Clone()
}

package tracker

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"testing"

	"spendbook/internal/logging"
	"spendbook/internal/models"
	"spendbook/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggedIn(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	svc := New(storage.NewMemoryStore(), Options{Logger: logging.Discard()})
	_, err := svc.Signup(ctx, SignupInput{Name: "Ann", Email: "ann@x.io", Phone: "1", Password: "pw"})
	require.NoError(t, err)
	_, err = svc.Login(ctx, "ann@x.io", "pw")
	require.NoError(t, err)
	return svc
}

func TestMountRequiresSession(t *testing.T) {
	svc := New(storage.NewMemoryStore(), Options{Logger: logging.Discard()})
	_, err := svc.Mount(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestSurfaceFollowsCommits(t *testing.T) {
	ctx := context.Background()
	svc := loggedIn(t)

	var seen []string
	nav, err := svc.Mount(ctx, func(u *models.User) {
		if u != nil {
			seen = append(seen, u.Name)
		}
	})
	require.NoError(t, err)
	defer nav.Close()
	assert.Equal(t, "Ann", nav.User().Name)

	name := "Annie"
	_, err = svc.UpdateProfile(ctx, ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Annie", nav.User().Name)

	_, err = svc.SetBudget(ctx, 40)
	require.NoError(t, err)
	assert.Equal(t, 40.0, nav.User().Budget)
	assert.Equal(t, []string{"Annie", "Annie"}, seen)
}

func TestSurfaceFollowsIdentityChange(t *testing.T) {
	ctx := context.Background()
	svc := loggedIn(t)

	nav, err := svc.Mount(ctx, nil)
	require.NoError(t, err)
	defer nav.Close()

	email := "ann@new.io"
	_, err = svc.UpdateProfile(ctx, ProfileUpdate{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "ann@new.io", nav.User().Identity())

	_, err = svc.SetBudget(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, nav.User().Budget)
}

func TestSurfaceClearedOnLogout(t *testing.T) {
	ctx := context.Background()
	svc := loggedIn(t)

	ended := false
	nav, err := svc.Mount(ctx, func(u *models.User) { ended = u == nil })
	require.NoError(t, err)
	defer nav.Close()

	require.NoError(t, svc.Logout(ctx))
	assert.Nil(t, nav.User())
	assert.True(t, ended)
}

func TestSurfaceIgnoresEventsAfterClose(t *testing.T) {
	ctx := context.Background()
	svc := loggedIn(t)

	calls := 0
	nav, err := svc.Mount(ctx, func(*models.User) { calls++ })
	require.NoError(t, err)

	nav.Close()
	nav.Close()
	assert.ErrorIs(t, nav.Context().Err(), context.Canceled)

	_, err = svc.SetBudget(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0.0, nav.User().Budget)
}

func TestAvatarUploadAfterCloseIsDropped(t *testing.T) {
	ctx := context.Background()
	svc := loggedIn(t)

	profile, err := svc.Mount(ctx, nil)
	require.NoError(t, err)
	profile.Close()

	_, err = svc.SetAvatar(profile.Context(), pngReader(t))
	assert.ErrorIs(t, err, context.Canceled)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Empty(t, current.ProfilePic)
}

func pngReader(t *testing.T) io.Reader {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf
}

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "argus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestUser(t *testing.T, store *Store) *User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), "operator", "hash")
	require.NoError(t, err)
	return user
}

func createTestCamera(t *testing.T, store *Store, userID string) *Camera {
	t.Helper()
	cam := &Camera{
		UserID:           userID,
		Name:             "front door",
		RtspURL:          "rtsp://example.com/stream",
		Enabled:          true,
		DetectionEnabled: true,
		FpsTarget:        8,
	}
	require.NoError(t, store.CreateCamera(context.Background(), cam))
	return cam
}

func TestUserRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UserByUsername(ctx, "operator")
	require.ErrorIs(t, err, ErrNotFound)

	created := createTestUser(t, store)
	require.NotEmpty(t, created.ID)

	got, err := store.UserByUsername(ctx, "operator")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)
}

func TestCameraLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store)

	cam := createTestCamera(t, store, user.ID)
	require.NotEmpty(t, cam.ID)
	assert.Equal(t, CameraStatusStopped, cam.Status)

	got, err := store.Camera(ctx, cam.ID)
	require.NoError(t, err)
	assert.Equal(t, "front door", got.Name)
	assert.Equal(t, 8, got.FpsTarget)

	name := "garage"
	fps := 12
	updated, err := store.UpdateCamera(ctx, cam.ID, CameraUpdate{Name: &name, FpsTarget: &fps})
	require.NoError(t, err)
	assert.Equal(t, "garage", updated.Name)
	assert.Equal(t, 12, updated.FpsTarget)
	assert.Equal(t, "rtsp://example.com/stream", updated.RtspURL)

	require.NoError(t, store.SetCameraStatus(ctx, cam.ID, CameraStatusRunning))
	got, err = store.Camera(ctx, cam.ID)
	require.NoError(t, err)
	assert.Equal(t, CameraStatusRunning, got.Status)

	require.NoError(t, store.DeleteCamera(ctx, cam.ID))
	_, err = store.Camera(ctx, cam.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCamerasByUserNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store)

	first := createTestCamera(t, store, user.ID)
	time.Sleep(5 * time.Millisecond)
	second := createTestCamera(t, store, user.ID)

	cams, err := store.CamerasByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, cams, 2)
	assert.Equal(t, second.ID, cams[0].ID)
	assert.Equal(t, first.ID, cams[1].ID)

	other, err := store.CamerasByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestNotFoundOnMissingCamera(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Camera(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.SetCameraStatus(ctx, "missing", CameraStatusRunning)
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.DeleteCamera(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	name := "x"
	_, err = store.UpdateCamera(ctx, "missing", CameraUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAlertRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store)
	cam := createTestCamera(t, store, user.ID)

	for i := 0; i < 3; i++ {
		alert := &Alert{
			CameraID:    cam.ID,
			Timestamp:   time.Now().UTC(),
			BboxJSON:    `[{"x":1,"y":2,"w":3,"h":4}]`,
			Confidence:  0.9,
			SnapshotURL: "http://cdn.example.com/snap.jpg",
		}
		require.NoError(t, store.CreateAlert(ctx, alert))
		require.NotEmpty(t, alert.ID)
		time.Sleep(5 * time.Millisecond)
	}

	alerts, err := store.AlertsByCamera(ctx, cam.ID, 2)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)

	all, err := store.AlertsByCamera(ctx, cam.ID, 50)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, !all[0].CreatedAt.Before(all[1].CreatedAt))

	require.NoError(t, store.DeleteAlertsByCamera(ctx, cam.ID))
	remaining, err := store.AlertsByCamera(ctx, cam.ID, 50)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/comigor/guest-assistant/internal/config"
)

func strPtr(s string) *string { return &s }

// exerciseStore runs the slot contract against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.BookingNumber(ctx)
	require.NoError(t, err)
	require.False(t, ok, "fresh store has no booking number")

	require.NoError(t, s.Save(ctx, "BK001", strPtr("Welcome back, Jane!")))
	got, ok, err := s.BookingNumber(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "BK001", got)
	welcome, ok, err := s.Welcome(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Welcome back, Jane!", welcome)

	// overwrite, welcome absent
	require.NoError(t, s.Save(ctx, "BK002", nil))
	got, _, err = s.BookingNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, "BK002", got)
	_, ok, err = s.Welcome(ctx)
	require.NoError(t, err)
	require.False(t, ok, "nil welcome overwrites the previous one")

	// empty welcome is a value, not absence
	require.NoError(t, s.Save(ctx, "BK003", strPtr("")))
	welcome, ok, err = s.Welcome(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, welcome)

	require.NoError(t, s.Clear(ctx))
	_, ok, err = s.BookingNumber(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = s.Welcome(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "session.db"), "tab-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestSQLiteStore_ResumesAndIsolatesTabs(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	first, err := OpenSQLite(path, "tab-a")
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "BK001", strPtr("hi")))
	require.NoError(t, first.Close())

	resumed, err := OpenSQLite(path, "tab-a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resumed.Close() })
	got, ok, err := resumed.BookingNumber(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "BK001", got)

	other, err := OpenSQLite(path, "tab-b")
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	_, ok, err = other.BookingNumber(ctx)
	require.NoError(t, err)
	require.False(t, ok, "tabs never share slots")
}

func TestOpenSQLite_Validates(t *testing.T) {
	_, err := OpenSQLite("", "tab")
	require.Error(t, err)
	_, err = OpenSQLite(filepath.Join(t.TempDir(), "x.db"), " ")
	require.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("GUEST_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GUEST_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	s, err := NewRedisStore(client, uuid.NewString(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestNewRedisStore_Validates(t *testing.T) {
	_, err := NewRedisStore(nil, "tab", 0)
	require.Error(t, err)
	_, err = NewRedisStore(redis.NewClient(&redis.Options{}), "", 0)
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	b, tabID, err := Open(ctx, config.SessionConfig{Backend: "memory"})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, b)
	_, err = uuid.Parse(tabID)
	require.NoError(t, err, "generated tab ids are uuids")

	b, tabID, err = Open(ctx, config.SessionConfig{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "s.db"), TabID: "mine"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	require.IsType(t, &SQLiteStore{}, b)
	require.Equal(t, "mine", tabID)

	_, _, err = Open(ctx, config.SessionConfig{Backend: "etcd"})
	require.Error(t, err)
}

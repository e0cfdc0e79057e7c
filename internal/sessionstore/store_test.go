package sessionstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/ghaggin/courier/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() model.Session {
	return model.Session{
		UserID:       "7b0c2f4e-driver",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
}

func newRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.Nil(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisBackend(rdb, ""), mr
}

func backends(t *testing.T) map[string]scs.Store {
	redisBackend, _ := newRedisBackend(t)
	return map[string]scs.Store{
		"file":   NewFileBackend(filepath.Join(t.TempDir(), "nested", "session.json")),
		"redis":  redisBackend,
		"memory": memstore.NewWithCleanupInterval(0),
	}
}

func TestStore_roundTrip(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			assert := assert.New(t)
			ctx := context.Background()

			s := New(backend, nil)

			_, found, err := s.Load(ctx)
			require.Nil(err)
			assert.False(found)

			want := testSession()
			require.Nil(s.Save(ctx, want))

			got, found, err := s.Load(ctx)
			require.Nil(err)
			assert.True(found)
			assert.Equal(want.UserID, got.UserID)
			assert.Equal(want.AccessToken, got.AccessToken)
			assert.Equal(want.RefreshToken, got.RefreshToken)
			assert.True(want.Expiry.Equal(got.Expiry))

			require.Nil(s.Clear(ctx))
			_, found, err = s.Load(ctx)
			require.Nil(err)
			assert.False(found)

			// clearing twice is fine
			require.Nil(s.Clear(ctx))
		})
	}
}

func TestStore_roundTripLapsedExpiry(t *testing.T) {
	zero := testSession()
	zero.Expiry = time.Time{}
	lapsed := testSession()
	lapsed.Expiry = time.Now().AddDate(0, 0, -40).UTC().Truncate(time.Second)

	sessions := map[string]model.Session{"zero expiry": zero, "expired 40 days ago": lapsed}
	for name, backend := range backends(t) {
		for sname, want := range sessions {
			t.Run(name+"/"+sname, func(t *testing.T) {
				require := require.New(t)
				ctx := context.Background()

				s := New(backend, nil, WithKey(sname))
				require.Nil(s.Save(ctx, want))

				got, found, err := s.Load(ctx)
				require.Nil(err)
				require.True(found)
				require.Equal(want.AccessToken, got.AccessToken)
				require.True(want.Expiry.Equal(got.Expiry))
			})
		}
	}
}

func TestStore_lapsedSaveKeepsReplacement(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := New(NewFileBackend(filepath.Join(t.TempDir(), "session.json")), nil)
	require.Nil(s.Save(ctx, testSession()))

	lapsed := testSession()
	lapsed.AccessToken = "access-2"
	lapsed.Expiry = time.Now().AddDate(0, 0, -40)
	require.Nil(s.Save(ctx, lapsed))

	got, found, err := s.Load(ctx)
	require.Nil(err)
	require.True(found)
	require.Equal("access-2", got.AccessToken)
}

func TestStore_saveInvalid(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.NewWithCleanupInterval(0), nil)

	missingUser := testSession()
	missingUser.UserID = ""
	assert.ErrorIs(t, s.Save(ctx, missingUser), ErrCorrupt)

	_, found, err := s.Load(ctx)
	require.Nil(t, err)
	assert.False(t, found)
}

func TestStore_saveReplaces(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := New(NewFileBackend(filepath.Join(t.TempDir(), "session.json")), nil)
	first := testSession()
	require.Nil(s.Save(ctx, first))

	second := first
	second.AccessToken = "access-2"
	require.Nil(s.Save(ctx, second))

	got, found, err := s.Load(ctx)
	require.Nil(err)
	require.True(found)
	require.Equal("access-2", got.AccessToken)
}

func TestStore_keysAreIsolated(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	backend := NewFileBackend(filepath.Join(t.TempDir(), "session.json"))
	a := New(backend, nil, WithKey("a"))
	b := New(backend, nil, WithKey("b"))

	require.Nil(a.Save(ctx, testSession()))
	_, found, err := b.Load(ctx)
	require.Nil(err)
	require.False(found)
}

func TestStore_corrupt(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	backend := memstore.NewWithCleanupInterval(0)
	require.Nil(backend.Commit(DefaultKey, []byte("{not json"), time.Now().Add(time.Hour)))

	_, found, err := New(backend, nil).Load(ctx)
	require.False(found)
	require.ErrorIs(err, ErrCorrupt)

	require.Nil(backend.Commit(DefaultKey, []byte(`{"user_id":""}`), time.Now().Add(time.Hour)))
	_, _, err = New(backend, nil).Load(ctx)
	require.ErrorIs(err, ErrCorrupt)
}

type failingBackend struct{}

var errDiskFull = errors.New("no space left on device")

func (failingBackend) Find(string) ([]byte, bool, error) { return nil, false, errDiskFull }
func (failingBackend) Commit(string, []byte, time.Time) error { return errDiskFull }
func (failingBackend) Delete(string) error { return errDiskFull }

func TestStore_backendErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := New(failingBackend{}, nil)

	_, _, err := s.Load(ctx)
	assert.ErrorIs(err, ErrStorage)
	assert.ErrorIs(err, errDiskFull)
	assert.ErrorIs(s.Save(ctx, testSession()), ErrStorage)
	assert.ErrorIs(s.Clear(ctx), ErrStorage)
}

func TestFileBackend_expiry(t *testing.T) {
	require := require.New(t)

	f := NewFileBackend(filepath.Join(t.TempDir(), "session.json"))
	require.Nil(f.Commit("old", []byte("x"), time.Now().Add(-time.Second)))

	_, found, err := f.Find("old")
	require.Nil(err)
	require.False(found)
}

func TestFileBackend_directoryPath(t *testing.T) {
	f := NewFileBackend(t.TempDir())
	_, _, err := f.Find(DefaultKey)
	assert.ErrorIs(t, err, errStoreFileIsDir)
}

func TestFileBackend_canceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "session.json")
	f := NewFileBackend(path)
	assert.ErrorIs(t, f.CommitCtx(ctx, "k", []byte("v"), time.Now().Add(time.Hour)), context.Canceled)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRedisBackend_ttl(t *testing.T) {
	require := require.New(t)

	backend, mr := newRedisBackend(t)
	require.Nil(backend.Commit("k", []byte("v"), time.Now().Add(time.Minute)))
	require.True(mr.Exists(defaultRedisPrefix + "k"))
	require.Greater(mr.TTL(defaultRedisPrefix+"k"), time.Duration(0))

	mr.FastForward(2 * time.Minute)
	_, found, err := backend.Find("k")
	require.Nil(err)
	require.False(found)

	require.Nil(backend.Commit("gone", []byte("v"), time.Now().Add(-time.Minute)))
	require.False(mr.Exists(defaultRedisPrefix + "gone"))
}

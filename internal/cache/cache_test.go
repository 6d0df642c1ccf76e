package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedProfile struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(nil) })
	return mr
}

func TestAside_MissThenHit(t *testing.T) {
	setupMiniredis(t)
	ctx := context.Background()

	fetches := 0
	fetch := func(dest *cachedProfile) func() error {
		return func() error {
			fetches++
			dest.UserID = "u1"
			dest.Username = "alice01"
			return nil
		}
	}

	var first cachedProfile
	require.NoError(t, Aside(ctx, ProfileKey("u1"), &first, ProfileTTL, fetch(&first)))
	assert.Equal(t, 1, fetches)
	assert.Equal(t, "alice01", first.Username)

	var second cachedProfile
	require.NoError(t, Aside(ctx, ProfileKey("u1"), &second, ProfileTTL, fetch(&second)))
	assert.Equal(t, 1, fetches, "second read served from cache")
	assert.Equal(t, "alice01", second.Username)
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	setupMiniredis(t)
	ctx := context.Background()

	fetches := 0
	load := func(dest *cachedProfile, username string) func() error {
		return func() error {
			fetches++
			dest.Username = username
			return nil
		}
	}

	var p cachedProfile
	require.NoError(t, Aside(ctx, ProfileKey("u1"), &p, ProfileTTL, load(&p, "alice01")))
	InvalidateProfile(ctx, "u1")

	var q cachedProfile
	require.NoError(t, Aside(ctx, ProfileKey("u1"), &q, ProfileTTL, load(&q, "alice_dev")))
	assert.Equal(t, 2, fetches)
	assert.Equal(t, "alice_dev", q.Username)
}

func TestAside_NilClientFallsThrough(t *testing.T) {
	SetClient(nil)
	ctx := context.Background()

	fetches := 0
	var p cachedProfile
	require.NoError(t, Aside(ctx, ProfileKey("u1"), &p, ProfileTTL, func() error {
		fetches++
		p.Username = "alice01"
		return nil
	}))
	assert.Equal(t, 1, fetches)
	assert.Equal(t, "alice01", p.Username)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "profile:u1", ProfileKey("u1"))
	assert.Equal(t, "post:p9", PostKey("p9"))
	assert.Equal(t, "chat:c3", ChatKey("c3"))
}

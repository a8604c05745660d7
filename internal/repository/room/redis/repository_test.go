package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fares7elsadek/syncspace-watch/internal/repository/room"
)

func newTestRepo(t *testing.T) (*repo, *miniredis.Miniredis) {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	rc := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})

	return NewRepo(rc, time.Hour), s
}

func TestSetAndGetState(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	state := room.State{
		RoomID:        "r1",
		VideoRef:      "dQw4w9WgXcQ",
		BaseTimestamp: 42.5,
		IsPlaying:     true,
		PlaybackRate:  1.25,
		HostID:        "u1",
		HostUsername:  "alice",
		LastUpdatedAt: 1748779200000,
	}
	require.NoError(t, r.SetState(ctx, &state))

	got, err := r.GetState(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestSetStateAppliesExpiry(t *testing.T) {
	r, s := newTestRepo(t)
	ctx := context.Background()

	state := room.State{RoomID: "r1", PlaybackRate: 1.0}
	require.NoError(t, r.SetState(ctx, &state))

	assert.Equal(t, time.Hour, s.TTL("room:r1:state"))
}

func TestGetStateMissingRoom(t *testing.T) {
	r, _ := newTestRepo(t)

	_, err := r.GetState(context.Background(), "nope")
	assert.ErrorIs(t, err, room.ErrStateNotFound)
}

func TestRemoveState(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	state := room.State{RoomID: "r1", PlaybackRate: 1.0}
	require.NoError(t, r.SetState(ctx, &state))

	require.NoError(t, r.RemoveState(ctx, "r1"))

	_, err := r.GetState(ctx, "r1")
	assert.ErrorIs(t, err, room.ErrStateNotFound)

	assert.ErrorIs(t, r.RemoveState(ctx, "r1"), room.ErrStateNotFound)
}

package redis

import (
	"context"
	"fmt"

	"github.com/fares7elsadek/syncspace-watch/internal/repository/room"
)

func (r repo) getStateKey(roomID string) string {
	return "room:" + roomID + ":state"
}

// SetState replaces the room's playback state wholesale. Field-level patches
// are deliberately not offered: the base timestamp and its epoch must always
// move together.
func (r repo) SetState(ctx context.Context, state *room.State) error {
	stateKey := r.getStateKey(state.RoomID)

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, stateKey,
		"room_id", state.RoomID,
		"video_ref", state.VideoRef,
		"base_timestamp", state.BaseTimestamp,
		"is_playing", state.IsPlaying,
		"playback_rate", state.PlaybackRate,
		"host_id", state.HostID,
		"host_username", state.HostUsername,
		"last_updated_at", state.LastUpdatedAt,
	)
	pipe.Expire(ctx, stateKey, r.expireDuration)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set room state: %w", err)
	}

	return nil
}

func (r repo) GetState(ctx context.Context, roomID string) (room.State, error) {
	stateKey := r.getStateKey(roomID)

	res, err := r.rc.Exists(ctx, stateKey).Result()
	if err != nil {
		return room.State{}, fmt.Errorf("failed to check room state: %w", err)
	}
	if res == 0 {
		return room.State{}, room.ErrStateNotFound
	}

	var state room.State
	if err := r.rc.HGetAll(ctx, stateKey).Scan(&state); err != nil {
		return room.State{}, fmt.Errorf("failed to get room state: %w", err)
	}

	r.rc.Expire(ctx, stateKey, r.expireDuration)

	return state, nil
}

func (r repo) RemoveState(ctx context.Context, roomID string) error {
	res, err := r.rc.Del(ctx, r.getStateKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove room state: %w", err)
	}

	if res == 0 {
		return room.ErrStateNotFound
	}

	return nil
}

package sync

import (
	"math"
	"time"

	"github.com/fares7elsadek/syncspace-watch/internal/domain"
)

// maxProjectableElapsed guards against wall-clock jumps and stale receipt
// epochs. Anything outside of it falls back to the raw base timestamp.
const maxProjectableElapsed = 24 * time.Hour

// Project estimates where the room's playback position is at the given
// moment. receivedAt is the local wall-clock instant the state was accepted,
// not the server-side LastUpdatedAt, so the projection never depends on
// clock skew between client and server.
func Project(state domain.RoomState, receivedAt, now time.Time) float64 {
	if !state.IsPlaying {
		return state.BaseTimestamp
	}

	elapsed := now.Sub(receivedAt)
	if elapsed < 0 || elapsed > maxProjectableElapsed {
		return state.BaseTimestamp
	}

	position := state.BaseTimestamp + elapsed.Seconds()*state.PlaybackRate
	if position < 0 {
		return 0
	}

	return position
}

// Drift is the absolute difference between the locally observed playback
// position and the projected authoritative one, in seconds.
func Drift(engineTime, projected float64) float64 {
	return math.Abs(engineTime - projected)
}

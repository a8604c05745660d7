package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fares7elsadek/syncspace-watch/internal/domain"
)

func TestProjectPausedReturnsBase(t *testing.T) {
	receivedAt := time.Now()
	state := domain.RoomState{
		BaseTimestamp: 42.5,
		IsPlaying:     false,
		PlaybackRate:  1.0,
	}

	assert.Equal(t, 42.5, Project(state, receivedAt, receivedAt.Add(time.Hour)))
}

func TestProjectPlayingAdvancesWithElapsedTime(t *testing.T) {
	receivedAt := time.Now()
	state := domain.RoomState{
		BaseTimestamp: 100,
		IsPlaying:     true,
		PlaybackRate:  1.0,
	}

	assert.InDelta(t, 105, Project(state, receivedAt, receivedAt.Add(5*time.Second)), 1e-9)
}

func TestProjectScalesByPlaybackRate(t *testing.T) {
	receivedAt := time.Now()
	state := domain.RoomState{
		BaseTimestamp: 100,
		IsPlaying:     true,
		PlaybackRate:  1.5,
	}

	assert.InDelta(t, 115, Project(state, receivedAt, receivedAt.Add(10*time.Second)), 1e-9)
}

func TestProjectIsMonotonicWhilePlaying(t *testing.T) {
	receivedAt := time.Now()
	state := domain.RoomState{
		BaseTimestamp: 10,
		IsPlaying:     true,
		PlaybackRate:  1.0,
	}

	previous := Project(state, receivedAt, receivedAt)
	for i := 1; i <= 10; i++ {
		current := Project(state, receivedAt, receivedAt.Add(time.Duration(i)*time.Second))
		assert.GreaterOrEqual(t, current, previous)
		previous = current
	}
}

func TestProjectFallsBackOnNegativeElapsed(t *testing.T) {
	receivedAt := time.Now()
	state := domain.RoomState{
		BaseTimestamp: 100,
		IsPlaying:     true,
		PlaybackRate:  1.0,
	}

	// Wall clock jumped backwards.
	assert.Equal(t, 100.0, Project(state, receivedAt, receivedAt.Add(-time.Minute)))
}

func TestProjectFallsBackOnAbsurdElapsed(t *testing.T) {
	receivedAt := time.Now()
	state := domain.RoomState{
		BaseTimestamp: 100,
		IsPlaying:     true,
		PlaybackRate:  1.0,
	}

	assert.Equal(t, 100.0, Project(state, receivedAt, receivedAt.Add(25*time.Hour)))
}

func TestProjectClampsNegativePositionToZero(t *testing.T) {
	receivedAt := time.Now()
	state := domain.RoomState{
		BaseTimestamp: -30,
		IsPlaying:     true,
		PlaybackRate:  1.0,
	}

	assert.Equal(t, 0.0, Project(state, receivedAt, receivedAt.Add(5*time.Second)))
}

func TestDriftIsAbsolute(t *testing.T) {
	assert.Equal(t, 3.0, Drift(50, 53))
	assert.Equal(t, 3.0, Drift(53, 50))
	assert.Equal(t, 0.0, Drift(50, 50))
}

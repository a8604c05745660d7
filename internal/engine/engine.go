// Package engine defines the capability set of the external video-playback
// widget the sync core drives. Decode, render and buffering are the widget's
// own business; the core only issues commands and observes lifecycle events.
package engine

import "context"

// StateCode mirrors the YouTube iframe player state codes.
type StateCode int

const (
	StateUnstarted StateCode = -1
	StateEnded     StateCode = 0
	StatePlaying   StateCode = 1
	StatePaused    StateCode = 2
	StateBuffering StateCode = 3
	StateCued      StateCode = 5
)

func (c StateCode) String() string {
	switch c {
	case StateUnstarted:
		return "unstarted"
	case StateEnded:
		return "ended"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateCued:
		return "cued"
	default:
		return "unknown"
	}
}

// Engine is the playback-engine adapter contract. Callback setters accept
// nil to detach a previously registered listener; detaching on room leave is
// mandatory so events are never delivered to a stale session.
type Engine interface {
	OnReady(fn func())
	OnStateChange(fn func(code StateCode))
	OnError(fn func(code int))

	Load(ctx context.Context, videoRef string) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	SeekTo(ctx context.Context, seconds float64, exact bool) error
	CurrentTime(ctx context.Context) (float64, error)
	PlaybackRate(ctx context.Context) (float64, error)
	SetPlaybackRate(ctx context.Context, rate float64) error

	Release()
}

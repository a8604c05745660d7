package sync

import (
	"time"

	"github.com/fares7elsadek/syncspace-watch/internal/domain"
)

// Apply runs the control-event transition over a room state and returns the
// resulting state. It never mutates its input. The same machine is used on
// both sides of the protocol: the backbone applies it before persisting and
// fanning out, clients apply it to their local copy on receipt.
func Apply(state domain.RoomState, event domain.ControlEvent, now time.Time) domain.RoomState {
	next := state
	next.RoomID = event.RoomID

	switch event.Action {
	case domain.ActionPlay:
		next.IsPlaying = true
		if event.Timestamp != nil {
			next.BaseTimestamp = *event.Timestamp
		}
	case domain.ActionPause:
		next.IsPlaying = false
		if event.Timestamp != nil {
			next.BaseTimestamp = *event.Timestamp
		}
	case domain.ActionSeek:
		if event.Timestamp != nil {
			next.BaseTimestamp = *event.Timestamp
		}
	case domain.ActionChangeVideo:
		// Loading a video hands control to whoever loaded it.
		next.VideoRef = event.VideoRef
		next.BaseTimestamp = 0
		next.IsPlaying = false
		next.HostID = event.Actor.ID
		next.HostUsername = event.Actor.Username
	default:
		return state
	}

	if next.PlaybackRate == 0 {
		next.PlaybackRate = 1.0
	}
	next.LastUpdatedAt = now.UnixMilli()

	return next
}

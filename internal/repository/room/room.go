package room

import "errors"

var ErrStateNotFound = errors.New("room state not found")

// State is the persisted shape of a room's playback state.
type State struct {
	RoomID        string  `redis:"room_id"`
	VideoRef      string  `redis:"video_ref"`
	BaseTimestamp float64 `redis:"base_timestamp"`
	IsPlaying     bool    `redis:"is_playing"`
	PlaybackRate  float64 `redis:"playback_rate"`
	HostID        string  `redis:"host_id"`
	HostUsername  string  `redis:"host_username"`
	LastUpdatedAt int64   `redis:"last_updated_at"`
}

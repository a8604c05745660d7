package domain

// Action is the kind of a control event emitted by the room host.
type Action string

const (
	ActionPlay        Action = "PLAY"
	ActionPause       Action = "PAUSE"
	ActionSeek        Action = "SEEK"
	ActionChangeVideo Action = "CHANGE_VIDEO"
)

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RoomState is the authoritative playback state of a room. It is replaced
// wholesale on every update; BaseTimestamp is only meaningful together with
// LastUpdatedAt.
type RoomState struct {
	RoomID        string  `json:"room_id"`
	VideoRef      string  `json:"video_ref"`
	BaseTimestamp float64 `json:"base_timestamp"`
	IsPlaying     bool    `json:"is_playing"`
	PlaybackRate  float64 `json:"playback_rate"`
	HostID        string  `json:"host_id"`
	HostUsername  string  `json:"host_username"`
	// LastUpdatedAt is server-assigned, unix milliseconds.
	LastUpdatedAt int64 `json:"last_updated_at"`
}

// HasVideo reports whether the room currently has an active video.
func (s RoomState) HasVideo() bool {
	return s.VideoRef != ""
}

// HasHost reports whether control of the room is currently assigned.
func (s RoomState) HasHost() bool {
	return s.HostID != ""
}

// IsHost reports whether the given user currently controls the room.
func (s RoomState) IsHost(u User) bool {
	return s.HasHost() && s.HostID == u.ID
}

// ControlEvent is the wire message describing a host-initiated playback
// change. It is applied on receipt and never persisted.
type ControlEvent struct {
	RoomID string `json:"room_id" validate:"required"`
	Action Action `json:"action" validate:"required,oneof=PLAY PAUSE SEEK CHANGE_VIDEO"`
	// Timestamp is the playback position in seconds the event refers to.
	// Optional for PLAY/PAUSE, required for SEEK.
	Timestamp *float64 `json:"timestamp,omitempty" validate:"required_if=Action SEEK"`
	VideoRef  string   `json:"video_ref,omitempty"`
	Actor     User     `json:"actor"`
}

// ResetSignal announces that the room's video was stopped and its playback
// state discarded.
type ResetSignal struct {
	RoomID string `json:"room_id"`
	By     User   `json:"by"`
}

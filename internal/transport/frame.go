// Package transport carries the framing of the room messaging backbone: a
// single websocket connection multiplexing topic subscriptions and
// publications, in the style of a STOMP broker relay.
package transport

import "encoding/json"

type FrameType string

const (
	FrameSubscribe   FrameType = "SUBSCRIBE"
	FrameUnsubscribe FrameType = "UNSUBSCRIBE"
	FrameSend        FrameType = "SEND"
	FrameMessage     FrameType = "MESSAGE"
)

type Frame struct {
	Type        FrameType       `json:"type"`
	Destination string          `json:"destination,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// ControlTopic is the broadcast destination for a room's control events.
func ControlTopic(roomID string) string {
	return "/topic/room/" + roomID + "/control"
}

// ResetTopic is the broadcast destination for a room's reset signal.
func ResetTopic(roomID string) string {
	return "/topic/room/" + roomID + "/reset"
}

// ViewingDestination is where clients announce entering or leaving a room's
// player view.
func ViewingDestination(roomID string) string {
	return "/app/room/" + roomID + "/viewing"
}

package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/fares7elsadek/syncspace-watch/internal/domain"
	"github.com/fares7elsadek/syncspace-watch/internal/repository/room"
	"github.com/fares7elsadek/syncspace-watch/internal/repository/subscription"
	"github.com/fares7elsadek/syncspace-watch/internal/sync"
	"github.com/fares7elsadek/syncspace-watch/internal/transport"
)

// GetRoomState returns the room's authoritative state, stamping the receipt
// moment server-side. A room that was never written to is an empty idle
// room, not an error; rooms exist implicitly.
func (s service) GetRoomState(ctx context.Context, roomID string) (domain.RoomState, error) {
	state, err := s.roomRepo.GetState(ctx, roomID)
	if err != nil {
		if errors.Is(err, room.ErrStateNotFound) {
			return emptyState(roomID), nil
		}
		return domain.RoomState{}, fmt.Errorf("failed to get room state: %w", err)
	}

	return toDomain(state), nil
}

type ApplyControlEventParams struct {
	Event domain.ControlEvent
}

type ApplyControlEventResponse struct {
	State       domain.RoomState
	Subscribers []*subscription.Subscriber
}

// ApplyControlEvent validates the sender's authority against the stored
// host, runs the control-event transition, persists the result and returns
// the subscribers the event must be fanned out to. PLAY, PAUSE and SEEK are
// host-only; CHANGE_VIDEO is open to any member and hands control to the
// sender.
func (s service) ApplyControlEvent(ctx context.Context, params *ApplyControlEventParams) (ApplyControlEventResponse, error) {
	event := params.Event

	current, err := s.roomRepo.GetState(ctx, event.RoomID)
	if err != nil {
		if !errors.Is(err, room.ErrStateNotFound) {
			return ApplyControlEventResponse{}, fmt.Errorf("failed to get room state: %w", err)
		}
		current = fromDomain(emptyState(event.RoomID))
	}

	if event.Action != domain.ActionChangeVideo {
		if current.HostID == "" || current.HostID != event.Actor.ID {
			return ApplyControlEventResponse{}, ErrPermissionDenied
		}
	}

	next := sync.Apply(toDomain(current), event, s.clock.Now())

	persisted := fromDomain(next)
	if err := s.roomRepo.SetState(ctx, &persisted); err != nil {
		return ApplyControlEventResponse{}, fmt.Errorf("failed to persist room state: %w", err)
	}

	s.logger.InfoContext(ctx, "control event applied",
		"room_id", event.RoomID,
		"action", event.Action,
		"actor_id", event.Actor.ID,
	)

	return ApplyControlEventResponse{
		State:       next,
		Subscribers: s.subRepo.GetSubscribers(transport.ControlTopic(event.RoomID)),
	}, nil
}

type ResetRoomParams struct {
	RoomID string
	By     domain.User
}

type ResetRoomResponse struct {
	Subscribers []*subscription.Subscriber
}

// ResetRoom discards the room's playback state and returns the subscribers
// of the reset topic. Resetting an already-empty room is not an error.
func (s service) ResetRoom(ctx context.Context, params *ResetRoomParams) (ResetRoomResponse, error) {
	if err := s.roomRepo.RemoveState(ctx, params.RoomID); err != nil && !errors.Is(err, room.ErrStateNotFound) {
		return ResetRoomResponse{}, fmt.Errorf("failed to remove room state: %w", err)
	}

	s.logger.InfoContext(ctx, "room reset", "room_id", params.RoomID, "by", params.By.ID)

	return ResetRoomResponse{
		Subscribers: s.subRepo.GetSubscribers(transport.ResetTopic(params.RoomID)),
	}, nil
}

// Subscribe registers a connection on a destination.
func (s service) Subscribe(sub *subscription.Subscriber, destination string) {
	s.subRepo.Subscribe(sub, destination)
}

func (s service) Unsubscribe(subscriberID, destination string) error {
	return s.subRepo.Unsubscribe(subscriberID, destination)
}

// Subscribers returns the live subscribers of a destination.
func (s service) Subscribers(destination string) []*subscription.Subscriber {
	return s.subRepo.GetSubscribers(destination)
}

// Disconnect drops every subscription of a gone connection.
func (s service) Disconnect(subscriberID string) {
	s.subRepo.Drop(subscriberID)
}

func emptyState(roomID string) domain.RoomState {
	return domain.RoomState{
		RoomID:       roomID,
		PlaybackRate: 1.0,
	}
}

func toDomain(state room.State) domain.RoomState {
	return domain.RoomState{
		RoomID:        state.RoomID,
		VideoRef:      state.VideoRef,
		BaseTimestamp: state.BaseTimestamp,
		IsPlaying:     state.IsPlaying,
		PlaybackRate:  state.PlaybackRate,
		HostID:        state.HostID,
		HostUsername:  state.HostUsername,
		LastUpdatedAt: state.LastUpdatedAt,
	}
}

func fromDomain(state domain.RoomState) room.State {
	return room.State{
		RoomID:        state.RoomID,
		VideoRef:      state.VideoRef,
		BaseTimestamp: state.BaseTimestamp,
		IsPlaying:     state.IsPlaying,
		PlaybackRate:  state.PlaybackRate,
		HostID:        state.HostID,
		HostUsername:  state.HostUsername,
		LastUpdatedAt: state.LastUpdatedAt,
	}
}

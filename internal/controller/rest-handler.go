package controller

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fares7elsadek/syncspace-watch/internal/domain"
	"github.com/fares7elsadek/syncspace-watch/internal/service/room"
	"github.com/fares7elsadek/syncspace-watch/internal/transport"
	"github.com/fares7elsadek/syncspace-watch/pkg/rest"
)

func (c controller) getRoomState(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room-id")
	if roomID == "" {
		rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "room not found"})
		return
	}

	state, err := c.roomService.GetRoomState(r.Context(), roomID)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to get room state", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": err.Error()})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": state})
}

func (c controller) postControlEvent(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room-id")

	var event domain.ControlEvent
	if err := rest.ReadJSON(r, &event); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}
	event.RoomID = roomID

	if validationErrors, ok := c.validate.Validate(event); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	resp, err := c.roomService.ApplyControlEvent(r.Context(), &room.ApplyControlEventParams{Event: event})
	if err != nil {
		if errors.Is(err, room.ErrPermissionDenied) {
			rest.WriteJSON(w, http.StatusForbidden, rest.Envelope{"error": "only the host may control playback"})
			return
		}
		c.logger.WarnContext(r.Context(), "failed to apply control event", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": err.Error()})
		return
	}

	c.broadcast(r.Context(), resp.Subscribers, transport.ControlTopic(roomID), event)

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": resp.State})
}

func (c controller) postReset(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room-id")

	var signal domain.ResetSignal
	if err := rest.ReadJSON(r, &signal); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}
	signal.RoomID = roomID

	resp, err := c.roomService.ResetRoom(r.Context(), &room.ResetRoomParams{RoomID: roomID, By: signal.By})
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to reset room", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": err.Error()})
		return
	}

	c.broadcast(r.Context(), resp.Subscribers, transport.ResetTopic(roomID), signal)

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": "OK"})
}

package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/fares7elsadek/syncspace-watch/internal/domain"
	"github.com/fares7elsadek/syncspace-watch/internal/repository/subscription"
	"github.com/fares7elsadek/syncspace-watch/internal/service/room"
	"github.com/fares7elsadek/syncspace-watch/pkg/validator"
)

type iRoomService interface {
	GetRoomState(ctx context.Context, roomID string) (domain.RoomState, error)
	ApplyControlEvent(ctx context.Context, params *room.ApplyControlEventParams) (room.ApplyControlEventResponse, error)
	ResetRoom(ctx context.Context, params *room.ResetRoomParams) (room.ResetRoomResponse, error)
	Subscribe(sub *subscription.Subscriber, destination string)
	Unsubscribe(subscriberID, destination string) error
	Subscribers(destination string) []*subscription.Subscriber
	Disconnect(subscriberID string)
}

type controller struct {
	roomService iRoomService
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	logger      *slog.Logger
}

func NewController(roomService iRoomService, logger *slog.Logger) *controller {
	return &controller{
		roomService: roomService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.NewValidator(),
		logger:   logger,
	}
}

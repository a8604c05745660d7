package room

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/fares7elsadek/syncspace-watch/internal/repository/room"
	"github.com/fares7elsadek/syncspace-watch/internal/repository/subscription"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrRoomNotFound     = errors.New("room not found")
)

type iRoomRepo interface {
	SetState(ctx context.Context, state *room.State) error
	GetState(ctx context.Context, roomID string) (room.State, error)
	RemoveState(ctx context.Context, roomID string) error
}

type iSubscriptionRepo interface {
	Subscribe(sub *subscription.Subscriber, destination string)
	Unsubscribe(subscriberID, destination string) error
	Drop(subscriberID string)
	GetSubscribers(destination string) []*subscription.Subscriber
}

type service struct {
	roomRepo iRoomRepo
	subRepo  iSubscriptionRepo
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewService(roomRepo iRoomRepo, subRepo iSubscriptionRepo, clock clockwork.Clock, logger *slog.Logger) *service {
	return &service{
		roomRepo: roomRepo,
		subRepo:  subRepo,
		clock:    clock,
		logger:   logger,
	}
}

package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/versus-live/versus/internal/cooldown"
	"github.com/versus-live/versus/internal/invite"
	"github.com/versus-live/versus/internal/lobby"
	"github.com/versus-live/versus/internal/models"
	"github.com/versus-live/versus/internal/presence"
)

// CreatorDirectory is the account lookup surface the handlers need;
// database.CreatorStore satisfies it.
type CreatorDirectory interface {
	Create(ctx context.Context, c *models.Creator) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Creator, error)
	GetByHandle(ctx context.Context, handle string) (*models.Creator, error)
}

// BattleServer bundles everything the HTTP surface needs.
type BattleServer struct {
	Manager  *lobby.Manager
	Invites  *invite.Service
	Tracker  *cooldown.Tracker
	Channel  presence.Channel
	Creators CreatorDirectory
	Logger   *logrus.Logger
}

func NewBattleServer(manager *lobby.Manager, invites *invite.Service, tracker *cooldown.Tracker, channel presence.Channel, creators CreatorDirectory, logger *logrus.Logger) *BattleServer {
	return &BattleServer{
		Manager:  manager,
		Invites:  invites,
		Tracker:  tracker,
		Channel:  channel,
		Creators: creators,
		Logger:   logger,
	}
}

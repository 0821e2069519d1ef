package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/versus-live/versus/internal/auth"
	"github.com/versus-live/versus/internal/cooldown"
	"github.com/versus-live/versus/internal/database"
	"github.com/versus-live/versus/internal/handlers"
	"github.com/versus-live/versus/internal/invite"
	"github.com/versus-live/versus/internal/lobby"
	"github.com/versus-live/versus/internal/matchmaking"
	"github.com/versus-live/versus/internal/middleware"
	"github.com/versus-live/versus/internal/presence"
)

func main() {
	logger := logrus.New()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := auth.Init(); err != nil {
		logger.Fatalf("auth init failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := database.Connect(ctx)
	if err != nil {
		logger.Fatalf("postgres connect failed: %v", err)
	}
	defer pool.Close()

	rdb, err := presence.ConnectRedis(ctx)
	if err != nil {
		logger.Fatalf("redis connect failed: %v", err)
	}
	defer rdb.Close()

	lobbies := database.NewLobbyStore(pool)
	invitations := database.NewInvitationStore(pool)
	creators := database.NewCreatorStore(pool)

	channel := presence.NewRedisChannel(rdb, logger)
	tracker := cooldown.NewTracker(cooldown.NewRedisStore(rdb), cooldown.DefaultDuration, logger)

	coordinator := matchmaking.NewCoordinator(lobbies, channel, logger, matchmaking.Config{})
	manager := lobby.NewManager(lobbies, tracker, channel, coordinator, logger)
	invites := invite.NewService(invitations, manager, channel, logger)

	go coordinator.Run(ctx)
	go invites.Run(ctx, invite.DefaultSweepInterval)

	bs := handlers.NewBattleServer(manager, invites, tracker, channel, creators, logger)

	logged := middleware.LogMiddleware(logger)
	mux := http.NewServeMux()

	// creator accounts
	mux.Handle("/creator/create", logged(handlers.CreateCreatorHandler(bs)))
	mux.Handle("/creator/login", logged(handlers.LoginHandler(bs)))

	// lobby lifecycle
	mux.Handle("/lobby/create", logged(handlers.CreateLobbyHandler(bs)))
	mux.Handle("/lobby/get", logged(handlers.GetLobbyHandler(bs)))
	mux.Handle("/lobby/list", logged(handlers.ListLobbiesHandler(bs)))
	mux.Handle("/lobby/join", logged(handlers.JoinLobbyHandler(bs)))
	mux.Handle("/lobby/leave", logged(handlers.LeaveLobbyHandler(bs)))
	mux.Handle("/lobby/search/request", logged(handlers.RequestSearchHandler(bs)))
	mux.Handle("/lobby/search/cancel", logged(handlers.CancelSearchHandler(bs)))
	mux.Handle("/lobby/respond", logged(handlers.RespondToMatchHandler(bs)))
	mux.Handle("/lobby/end", logged(handlers.EndBattleHandler(bs)))

	// invitations
	mux.Handle("/invite/send", logged(handlers.SendInviteHandler(bs)))
	mux.Handle("/invite/accept", logged(handlers.AcceptInviteHandler(bs)))
	mux.Handle("/invite/decline", logged(handlers.DeclineInviteHandler(bs)))

	// cooldown
	mux.Handle("/cooldown/status", logged(handlers.CooldownStatusHandler(bs)))

	// presence websocket
	mux.Handle("/presence/ws/", logged(handlers.PresenceWSHandler(logger, bs)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		logger.Errorf("server exited: %v", err)
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

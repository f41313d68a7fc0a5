package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/farkleio/tablecore/internal/action"
	"github.com/farkleio/tablecore/internal/api"
	"github.com/farkleio/tablecore/internal/botengine"
	"github.com/farkleio/tablecore/internal/conduct"
	"github.com/farkleio/tablecore/internal/config"
	"github.com/farkleio/tablecore/internal/membership"
	"github.com/farkleio/tablecore/internal/middleware"
	"github.com/farkleio/tablecore/internal/sessionctl"
	"github.com/farkleio/tablecore/internal/socket"
	"github.com/farkleio/tablecore/internal/store"
	"github.com/farkleio/tablecore/internal/store/memadapter"
	"github.com/farkleio/tablecore/internal/store/pgadapter"
	"github.com/farkleio/tablecore/internal/store/sqliteadapter"
	"github.com/farkleio/tablecore/internal/sweep"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No.env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "storage", cfg.StorageKind)

	adapter, closeAdapter, err := openAdapter(cfg)
	if err != nil {
		slog.Error("Failed to initialize persistence adapter", "error", err)
		os.Exit(1)
	}
	defer closeAdapter()

	world := store.NewWorld(cfg.Audit.LogCapacity)
	st := store.New(world, adapter)

	rehydrateCtx, rehydrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := st.RehydrateStoreFromAdapter(rehydrateCtx, "startup", store.RehydrateOpts{Force: true}); err != nil {
		slog.Error("Failed to rehydrate store from adapter at startup", "error", err)
		rehydrateCancel()
		os.Exit(1)
	}
	rehydrateCancel()
	slog.Info("Store rehydrated from adapter")

	roller := action.NewFarkleRoller()
	bots := botengine.NewScriptedEngine(roller)
	registry := conduct.NewReferenceRegistry()

	sessions := sessionctl.New(st, cfg.Session, bots)

	// socket.Orchestrator and membership.Service depend on each other
	// (membership notifies sockets, sockets delegate turn/membership
	// actions back to membership): wire the orchestrator with a nil
	// membership first, build membership over it, then close the loop.
	orchestrator := socket.New(st, nil, roller, registry, bots, cfg.Socket)
	mem := membership.New(world, orchestrator, sessions, roller)
	orchestrator.Membership = mem

	sessionHandler := api.NewSessionHandler(sessions, mem)
	adminHandler := api.NewAdminHandler(world, mem, cfg.Bootstrap, cfg.Audit)
	healthHandler := api.NewHealthHandler(st)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(corsOrigins(cfg)))

	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)
	adminHandler.RegisterRoutes(r)
	r.Get("/ws", orchestrator.ServeWebSocket)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: r,
		ReadTimeout: 30 * time.Second,
		WriteTimeout: 0, // long-lived WebSocket connections are served off this mux too
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	turnSweeper := sweep.NewTurnSweeper(st, orchestrator, bots, roller, cfg.Session)
	idleSweeper := sweep.NewIdleSweeper(st, orchestrator, sessions, mem)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		turnSweeper.Run(groupCtx, cfg.Sweep.TurnTimeoutInterval)
		return nil
	})
	group.Go(func() error {
		idleSweeper.Run(groupCtx, cfg.Sweep.IdleSweepInterval)
		return nil
	})
	group.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	<-ctx.Done()
	stop()
	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if err := st.PersistStore(shutdownCtx); err != nil {
		slog.Error("Final persist on shutdown failed", "error", err)
	}

	if err := group.Wait(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

// openAdapter selects the PersistenceAdapter named by cfg.StorageKind.
func openAdapter(cfg *config.Config) (store.PersistenceAdapter, func(), error) {
	switch cfg.StorageKind {
	case "sqlite":
		a, err := sqliteadapter.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return a, func() {
			if err := a.Close(); err != nil {
				slog.Error("Failed to close sqlite adapter", "error", err)
			}
		}, nil
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a, err := pgadapter.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return a, func() { a.Close() }, nil
	default:
		return memadapter.New(), func() {}, nil
	}
}

// corsOrigins narrows the allowed-origins list to the configured
// frontend in production; development (no FrontendURL / localhost)
// keeps a permissive wildcard.
func corsOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}

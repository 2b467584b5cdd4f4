package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"animeshelf/config"
	"animeshelf/handlers"
	"animeshelf/internal/database"
	"animeshelf/internal/logging"
	"animeshelf/services/catalog"
	"animeshelf/services/metadata"
	"animeshelf/services/profiles"
	"animeshelf/services/recommend"
	"animeshelf/services/users"
	"animeshelf/utils"
)

const sessionPurgeInterval = time.Hour

func main() {
	defaultConfig := os.Getenv("ANIMESHELF_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "data/settings.json"
	}
	configPath := flag.String("config", defaultConfig, "path to settings.json")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("[main] %v", err)
	}
}

func run(configPath string) error {
	manager := config.NewManager(configPath)
	settings, err := manager.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logger, closer := logging.Setup(settings.Logging)
	defer closer.Close()
	logger.Info("starting animeshelf", "config", manager.Path(), "port", settings.Server.Port)

	db, err := database.NewDB(database.Config{DatabasePath: settings.Database.Path})
	if err != nil {
		return err
	}
	defer db.Close()

	secret := settings.Auth.JWTSecret
	if secret == "" {
		if secret, err = utils.GenerateSecret(); err != nil {
			return err
		}
		log.Printf("[main] no JWT secret configured; sessions will not survive a restart")
	}
	usersService, err := users.NewService(db, users.Options{
		Secret:               []byte(secret),
		SessionTTL:           time.Duration(settings.Auth.SessionTTLHours) * time.Hour,
		RequireVerifiedEmail: settings.Auth.RequireVerifiedEmail,
		Mailer:               users.LogMailer{},
	})
	if err != nil {
		return err
	}

	store := profiles.NewStore(db, profiles.Options{
		Exclusive:          settings.Lists.Exclusive,
		MaxConflictRetries: settings.Lists.MaxConflictRetries,
	})

	clients := config.NewConfigAdapter(manager).GetConfigGetter()()
	catalogClient := catalog.NewClient(clients.Catalog, clients.Breaker)
	detailsService := metadata.NewService(clients.Details, clients.Breaker)
	recommender := recommend.NewService(store, catalogClient, clients.Recommend, clients.Breaker)
	if clients.Catalog.ClientID == "" {
		log.Printf("[main] MAL client id not set; catalog search will be rejected upstream")
	}

	router := utils.NewRouter()
	router.Use(handlers.RequestLogger)
	handlers.RegisterRoutes(router, handlers.Dependencies{
		Users:       usersService,
		Profiles:    store,
		Catalog:     catalogClient,
		Details:     detailsService,
		Recommender: recommender,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go purgeSessions(ctx, usersService)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func purgeSessions(ctx context.Context, svc *users.Service) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpiredSessions(ctx)
			if err != nil {
				log.Printf("[main] purge sessions: %v", err)
				continue
			}
			if n > 0 {
				slog.Info("purged expired sessions", "count", n)
			}
		}
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/academiafc/clubsync/auth"
	"github.com/academiafc/clubsync/config"
	"github.com/academiafc/clubsync/core/document"
	"github.com/academiafc/clubsync/core/mutate"
	"github.com/academiafc/clubsync/core/sync"
	"github.com/academiafc/clubsync/httpapi"
	"github.com/academiafc/clubsync/images"
	"github.com/academiafc/clubsync/notify"
	"github.com/academiafc/clubsync/sqlite"
)

func main() {
	cfg := config.Load()

	logger, err := buildLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.AdminPassword == "" || cfg.JWTSecret == "" {
		logger.Fatal("ADMIN_PASSWORD and JWT_SECRET must be set")
	}

	pathPrefix := fmt.Sprintf("artifacts/%s/public/data", cfg.AppID)
	store, err := sqlite.NewStore(cfg.DBPath, pathPrefix, logger)
	if err != nil {
		logger.Fatal("failed to open document store", zap.Error(err))
	}
	defer store.Close()

	notifier, err := notify.NewNotifier(logger)
	if err != nil {
		logger.Fatal("failed to initialize notifier", zap.Error(err))
	}

	gate := auth.NewGate(auth.Credentials{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
	}, logger)
	tokens := auth.NewTokens(cfg.JWTSecret)

	manager := sync.NewManager(store, logger)
	gateway := mutate.NewGateway(store, notifier, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Primary collections follow the auth gate; the registrations feed has
	// its own lifecycle so the public site never opens it.
	unbind := manager.Bind(ctx, gate)
	defer unbind()
	unbindRegs := manager.BindCollection(ctx, gate, document.CollectionRegistrations)
	defer unbindRegs()

	// The server process itself holds the gate open so public snapshots are
	// warm before the first browser connects.
	gate.SignInAnonymously()

	imageService, err := images.NewLocalService(cfg.UploadsDir, cfg.PublicURL, logger)
	if err != nil {
		logger.Fatal("failed to initialize image hosting", zap.Error(err))
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := httpapi.NewServer(gate, tokens, manager, gateway, notifier, imageService, logger)
	router := server.Router(cfg.FrontendAddress, cfg.UploadsDir)

	srv := &http.Server{Addr: cfg.ServerAddr, Handler: router}
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	manager.Close()
}

func buildLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

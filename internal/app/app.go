package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/craftbound/portal/internal/authme"
	"github.com/craftbound/portal/internal/config"
	"github.com/craftbound/portal/internal/db"
	portalhttp "github.com/craftbound/portal/internal/http"
	adminapi "github.com/craftbound/portal/internal/http/api/admin"
	adminhandlers "github.com/craftbound/portal/internal/http/api/admin/handlers"
	"github.com/craftbound/portal/internal/http/api/front"
	"github.com/craftbound/portal/internal/ledger"
	"github.com/craftbound/portal/internal/logging"
	"github.com/craftbound/portal/internal/luckperms"
	"github.com/craftbound/portal/internal/rbac"
	"github.com/craftbound/portal/internal/settings"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Migrate opens the portal database and runs migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(config.ResolvePath(configPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the portal API server.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(config.ResolvePath(configPath))
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.Log)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errSettings := settings.Refresh(ctx, conn); errSettings != nil {
		return errSettings
	}

	var bridge *authme.Client
	if cfg.Authme.DSN != "" {
		var errBridge error
		bridge, errBridge = authme.NewClient(cfg.Authme.DSN, authme.Options{
			Table:     cfg.Authme.Table,
			Timeout:   cfg.AuthmeLookupTimeout(),
			RedisAddr: cfg.Authme.RedisAddr,
			RedisDB:   cfg.Authme.RedisDB,
			CacheTTL:  time.Duration(cfg.Authme.CacheTTL) * time.Second,
		})
		if errBridge != nil {
			return fmt.Errorf("connect authme database: %w", errBridge)
		}
	} else {
		log.Warn("authme dsn not configured, binding operations disabled")
	}

	players := luckperms.NewClient(luckperms.Config{
		BaseURL: cfg.LuckPerms.BaseURL,
		APIKey:  cfg.LuckPerms.APIKey,
		Timeout: time.Duration(cfg.LuckPerms.Timeout) * time.Second,
	})
	if players == nil {
		log.Info("luckperms not configured, permissions snapshots will degrade")
	}

	// Typed nils must not leak into the ledger's interfaces.
	var accountSource ledger.AccountSource
	if bridge != nil {
		accountSource = bridge
	}
	var playerSource ledger.PlayerSource
	if players != nil {
		playerSource = players
	}
	bindings := ledger.NewService(conn, accountSource, playerSource)
	access := rbac.NewService(conn)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(portalhttp.RequestLogMiddleware())

	healthHandler := adminhandlers.NewHealthHandler(conn)
	engine.GET("/healthz", healthHandler.Healthz)

	adminapi.RegisterAdminRoutes(engine, conn, cfg.JWT, bindings, access, bridge)
	front.RegisterFrontRoutes(engine, conn, cfg.JWT, bindings)

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Listen)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return <-errCh
	case errServe := <-errCh:
		return errServe
	}
}

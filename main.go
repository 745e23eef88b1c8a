package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/portfolio-chat-api/config"
	"github.com/kendall-kelly/portfolio-chat-api/logging"
	"github.com/kendall-kelly/portfolio-chat-api/realtime"
	"github.com/kendall-kelly/portfolio-chat-api/routes"
	"github.com/kendall-kelly/portfolio-chat-api/services"
	"github.com/kendall-kelly/portfolio-chat-api/telemetry"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", logging.Err(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logging.NewLogger(config.ServiceName, cfg.LogLevel, cfg.LogFormat)
	log.Info("starting portfolio chat API", "env", cfg.GoEnv, "port", cfg.Port)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := config.ConnectDatabase(cfg); err != nil {
		return err
	}
	db := config.GetDB()
	if err := config.Migrate(db); err != nil {
		return err
	}
	log.Info("database migration completed successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, config.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", logging.Err(err))
		}
	}()

	gateway, closeServices, err := initServices(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer closeServices()

	router, err := routes.Setup(cfg, gateway, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server is listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := gateway.Shutdown(shutdownCtx); err != nil {
		log.Warn("websocket sessions did not close in time", logging.Err(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}

// initServices wires the process-wide services onto db and returns the
// realtime gateway, which also becomes the REST broadcaster. The returned
// func releases connections opened here.
func initServices(ctx context.Context, cfg *config.Config, db *gorm.DB, log *slog.Logger) (*realtime.Gateway, func(), error) {
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	chat := services.InitChatService(db, services.WithWelcomeTemplate(cfg.WelcomeTemplate))
	services.InitDirectoryService(db)

	tokens := services.TokenConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Expiry:   cfg.JWTExpiry,
	}
	if cfg.Auth0Domain != "" {
		// Tokens come from Auth0; locally signed ones would never validate
		tokens.Secret = ""
	}
	auth := services.InitAuthService(db, tokens)
	if err := auth.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return nil, nil, err
	}

	if cfg.UsesS3() {
		s3, err := services.InitS3Service(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		services.SetAttachmentService(services.NewS3AttachmentService(s3))
		log.Info("attachments stored in s3", "bucket", cfg.AWSS3Bucket)
	} else {
		services.SetAttachmentService(services.NewLocalAttachmentService(cfg.UploadDir))
		log.Info("attachments stored on disk", "dir", cfg.UploadDir)
	}

	gatewayCfg := realtime.GatewayConfig{
		Session: realtime.SessionConfig{
			PingInterval: cfg.WSPingInterval,
			PongTimeout:  cfg.WSPongTimeout,
			WriteTimeout: cfg.WSWriteTimeout,
		},
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: allowedOrigins(cfg),
	}

	if cfg.UsesRedis() {
		rdb, err := config.ConnectRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := rdb.Close(); err != nil {
				log.Warn("failed to close redis client", logging.Err(err))
			}
		})
		gatewayCfg.Relay = realtime.NewRedisRelay(rdb, cfg.RedisChannel, log)
	}

	gateway := realtime.NewGateway(chat, gatewayCfg, log)
	if err := gateway.StartRelay(ctx); err != nil {
		closeAll()
		return nil, nil, err
	}
	services.SetBroadcaster(gateway)

	return gateway, closeAll, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" || !cfg.IsProduction() {
		return nil
	}
	return []string{cfg.FrontendURL}
}

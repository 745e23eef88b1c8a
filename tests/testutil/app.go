package testutil

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/portfolio-chat-api/config"
	"github.com/kendall-kelly/portfolio-chat-api/realtime"
	"github.com/kendall-kelly/portfolio-chat-api/routes"
	"github.com/kendall-kelly/portfolio-chat-api/services"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// TestAdminPassword is the password of the admin account seeded by NewTestApp
const TestAdminPassword = "correct-horse-battery"

// TestApp is the full chat API on a private in-memory SQLite database
type TestApp struct {
	Config  *config.Config
	DB      *gorm.DB
	Router  *gin.Engine
	Gateway *realtime.Gateway
	Server  *httptest.Server
}

// TestConfig returns a valid configuration for an isolated test app
func TestConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		DatabaseURL:     "sqlite://:memory:",
		Port:            "0",
		GoEnv:           "test",
		LogLevel:        "error",
		LogFormat:       "text",
		JWTSecret:       strings.Repeat("k", config.MinJWTSecretLength),
		JWTIssuer:       "portfolio-chat-api",
		JWTAudience:     "portfolio-admin",
		JWTExpiry:       time.Hour,
		AdminUsername:   "admin",
		AdminPassword:   TestAdminPassword,
		UploadDir:       t.TempDir(),
		WelcomeTemplate: services.DefaultWelcomeTemplate,
		WSPingInterval:  time.Second,
		WSPongTimeout:   2 * time.Second,
		WSWriteTimeout:  time.Second,
		RequestTimeout:  5 * time.Second,
	}
}

// NewTestApp wires the services, the gateway and the router the same way the
// server does and starts an httptest server in front of them
func NewTestApp(t *testing.T) *TestApp {
	t.Helper()
	RequireTestEnvironment(t)
	gin.SetMode(gin.TestMode)

	cfg := TestConfig(t)
	require.NoError(t, cfg.Validate())
	require.NoError(t, config.ConnectDatabase(cfg))
	db := config.GetDB()
	require.NoError(t, config.Migrate(db))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	chat := services.InitChatService(db, services.WithWelcomeTemplate(cfg.WelcomeTemplate))
	services.InitDirectoryService(db)
	auth := services.InitAuthService(db, services.TokenConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Expiry:   cfg.JWTExpiry,
	})
	require.NoError(t, auth.EnsureAdmin(context.Background(), cfg.AdminUsername, cfg.AdminPassword))
	services.SetAttachmentService(services.NewLocalAttachmentService(cfg.UploadDir))

	gateway := realtime.NewGateway(chat, realtime.GatewayConfig{
		Session: realtime.SessionConfig{
			PingInterval: cfg.WSPingInterval,
			PongTimeout:  cfg.WSPongTimeout,
			WriteTimeout: cfg.WSWriteTimeout,
		},
		RequestTimeout: cfg.RequestTimeout,
	}, log)
	services.SetBroadcaster(gateway)

	router, err := routes.Setup(cfg, gateway, log)
	require.NoError(t, err)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = gateway.Shutdown(ctx)
		server.Close()
		services.SetBroadcaster(nil)
		services.SetAttachmentService(nil)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		config.SetDB(nil)
	})

	return &TestApp{Config: cfg, DB: db, Router: router, Gateway: gateway, Server: server}
}

// Tokens returns the signing parameters the app validates against
func (a *TestApp) Tokens() services.TokenConfig {
	return services.TokenConfig{
		Secret:   a.Config.JWTSecret,
		Issuer:   a.Config.JWTIssuer,
		Audience: a.Config.JWTAudience,
		Expiry:   a.Config.JWTExpiry,
	}
}

// WebsocketURL is the chat socket endpoint of the running server
func (a *TestApp) WebsocketURL() string {
	return "ws" + strings.TrimPrefix(a.Server.URL, "http") + "/api/chat/ws"
}

// Do serves req through the router without a network round trip
func (a *TestApp) Do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	return w
}

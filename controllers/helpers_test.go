package controllers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/portfolio-chat-api/middleware"
	"github.com/kendall-kelly/portfolio-chat-api/models"
	"github.com/kendall-kelly/portfolio-chat-api/services"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// setupTestDB opens a private in-memory database and installs the chat
// services on top of it
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err, "Failed to connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Message{}, &models.User{}), "Failed to migrate test database")

	services.InitChatService(db)
	services.InitDirectoryService(db)
	t.Cleanup(func() {
		services.SetChatService(nil)
		services.SetDirectoryService(nil)
		_ = sqlDB.Close()
	})

	return db
}

// mockAuthMiddleware stores claims in the context the same way the real JWT middleware does
func mockAuthMiddleware(subject, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", subject)
		c.Set("validated_claims", &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{Subject: subject},
			CustomClaims:     &middleware.CustomClaims{Role: role},
		})
		c.Next()
	}
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []*models.Message
	reads    []string
}

func (r *recordingBroadcaster) BroadcastNewMessage(_ context.Context, msg *models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recordingBroadcaster) BroadcastMessagesRead(_ context.Context, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads = append(r.reads, conversationID)
}

func installRecordingBroadcaster(t *testing.T) *recordingBroadcaster {
	t.Helper()
	rec := &recordingBroadcaster{}
	services.SetBroadcaster(rec)
	t.Cleanup(func() { services.SetBroadcaster(nil) })
	return rec
}

func decodeJSON(t *testing.T, body []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, v), "response should be valid JSON: %s", string(body))
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var response map[string]interface{}
	decodeJSON(t, body, &response)
	require.Equal(t, false, response["success"])
	errorData := response["error"].(map[string]interface{})
	return errorData["code"].(string)
}

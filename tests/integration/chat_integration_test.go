package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kendall-kelly/portfolio-chat-api/models"
	"github.com/kendall-kelly/portfolio-chat-api/services"
	"github.com/kendall-kelly/portfolio-chat-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// ChatIntegrationTestSuite drives the REST API through the production router
type ChatIntegrationTestSuite struct {
	suite.Suite
	app *testutil.TestApp
}

// SetupTest gives every test its own database and server
func (suite *ChatIntegrationTestSuite) SetupTest() {
	suite.app = testutil.NewTestApp(suite.T())
}

func (suite *ChatIntegrationTestSuite) request(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var payload bytes.Buffer
	if body != nil {
		suite.Require().NoError(json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return suite.app.Do(req)
}

func (suite *ChatIntegrationTestSuite) decode(w *httptest.ResponseRecorder, v interface{}) {
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), v), "response should be valid JSON: %s", w.Body.String())
}

func (suite *ChatIntegrationTestSuite) errorCode(w *httptest.ResponseRecorder) string {
	var response struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	suite.decode(w, &response)
	suite.False(response.Success)
	suite.NotEmpty(response.Error.Message)
	return response.Error.Code
}

func (suite *ChatIntegrationTestSuite) startConversation(fullName string) string {
	w := suite.request(http.MethodPost, "/api/chat/start", map[string]string{
		"fullName": fullName,
		"email":    "visitor@example.com",
	}, "")
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var response struct {
		ConversationID string           `json:"conversationId"`
		Messages       []models.Message `json:"messages"`
	}
	suite.decode(w, &response)
	return response.ConversationID
}

func (suite *ChatIntegrationTestSuite) sendText(conversationID, sender, text string) models.Message {
	w := suite.request(http.MethodPost, "/api/chat/messages", services.CreateMessageInput{
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
	}, "")
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var message models.Message
	suite.decode(w, &message)
	return message
}

func (suite *ChatIntegrationTestSuite) TestHealthEndpoint() {
	w := suite.request(http.MethodGet, "/api/health", nil, "")

	suite.Equal(http.StatusOK, w.Code)
	var response map[string]interface{}
	suite.decode(w, &response)
	suite.Equal(true, response["success"])
	suite.Equal("Portfolio Chat API is running", response["message"])
}

func (suite *ChatIntegrationTestSuite) TestRoutesRequireAPIPrefix() {
	w := suite.request(http.MethodGet, "/health", nil, "")
	suite.Equal(http.StatusNotFound, w.Code)

	w = suite.request(http.MethodPost, "/api/health", nil, "")
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *ChatIntegrationTestSuite) TestDatabaseStatusListsTables() {
	w := suite.request(http.MethodGet, "/api/database/status", nil, "")

	suite.Equal(http.StatusOK, w.Code)
	var response struct {
		Tables []string `json:"tables"`
	}
	suite.decode(w, &response)
	suite.Contains(response.Tables, "messages")
	suite.Contains(response.Tables, "users")
}

func (suite *ChatIntegrationTestSuite) TestStartConversationCreatesWelcomeMessage() {
	w := suite.request(http.MethodPost, "/api/chat/start", map[string]string{"fullName": "Lan Anh"}, "")
	suite.Require().Equal(http.StatusCreated, w.Code)

	var response struct {
		ConversationID string           `json:"conversationId"`
		Messages       []models.Message `json:"messages"`
	}
	suite.decode(w, &response)
	suite.NotEmpty(response.ConversationID)
	suite.Require().Len(response.Messages, 1)

	welcome := response.Messages[0]
	suite.Equal(models.SenderAdmin, welcome.Sender)
	suite.True(welcome.IsRead)
	suite.Contains(welcome.Text, "Lan Anh")
}

func (suite *ChatIntegrationTestSuite) TestStartConversationValidation() {
	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing name", map[string]string{"email": "visitor@example.com"}},
		{"name with digits", map[string]string{"fullName": "R2D2"}},
		{"bad phone", map[string]string{"fullName": "Lan Anh", "phone": "12345"}},
		{"bad email", map[string]string{"fullName": "Lan Anh", "email": "not-an-email"}},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w := suite.request(http.MethodPost, "/api/chat/start", tt.body, "")
			suite.Equal(http.StatusBadRequest, w.Code)
			suite.Equal("VALIDATION_ERROR", suite.errorCode(w))
		})
	}
}

func (suite *ChatIntegrationTestSuite) TestMessagesAreListedOldestFirst() {
	conversationID := suite.startConversation("Lan Anh")
	first := suite.sendText(conversationID, "user", "first")
	second := suite.sendText(conversationID, "user", "second")

	w := suite.request(http.MethodGet, "/api/chat/messages/"+conversationID, nil, "")
	suite.Require().Equal(http.StatusOK, w.Code)

	var messages []models.Message
	suite.decode(w, &messages)
	suite.Require().Len(messages, 3)
	suite.Equal(first.ID, messages[1].ID)
	suite.Equal(second.ID, messages[2].ID)
	suite.False(messages[1].IsRead, "visitor messages start unread")
}

func (suite *ChatIntegrationTestSuite) TestUnknownConversationHasNoMessages() {
	w := suite.request(http.MethodGet, "/api/chat/messages/does-not-exist", nil, "")

	suite.Equal(http.StatusOK, w.Code)
	suite.JSONEq(`[]`, w.Body.String())
}

func (suite *ChatIntegrationTestSuite) TestCreateMessageValidation() {
	conversationID := suite.startConversation("Lan Anh")

	tests := []struct {
		name  string
		input services.CreateMessageInput
	}{
		{"missing conversation", services.CreateMessageInput{Sender: "user", Text: "hi"}},
		{"unknown sender", services.CreateMessageInput{ConversationID: conversationID, Sender: "bot", Text: "hi"}},
		{"no text or file", services.CreateMessageInput{ConversationID: conversationID, Sender: "user"}},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w := suite.request(http.MethodPost, "/api/chat/messages", tt.input, "")
			suite.Equal(http.StatusBadRequest, w.Code)
			suite.Equal("VALIDATION_ERROR", suite.errorCode(w))
		})
	}
}

func (suite *ChatIntegrationTestSuite) TestAdminEndpointsRejectMissingToken() {
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/chat/conversations"},
		{http.MethodPost, "/api/chat/mark-read/abc"},
		{http.MethodPost, "/api/chat/archive/abc"},
	}

	for _, p := range paths {
		suite.Run(p.path, func() {
			w := suite.request(p.method, p.path, nil, "")
			suite.Equal(http.StatusUnauthorized, w.Code)
			suite.Equal("INVALID_TOKEN", suite.errorCode(w))
		})
	}
}

func (suite *ChatIntegrationTestSuite) TestAdminEndpointsRejectMalformedAuthHeader() {
	testCases := []struct {
		name   string
		header string
	}{
		{"Missing Bearer prefix", "token-without-bearer"},
		{"Wrong prefix", "Basic token"},
		{"Garbage token", "Bearer invalid-token-here"},
	}

	for _, tc := range testCases {
		suite.T().Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/chat/conversations", nil)
			req.Header.Set("Authorization", tc.header)

			w := suite.app.Do(req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func (suite *ChatIntegrationTestSuite) TestAdminEndpointsRejectNonAdminToken() {
	w := suite.request(http.MethodGet, "/api/chat/conversations", nil, suite.app.VisitorToken(suite.T()))

	suite.Equal(http.StatusForbidden, w.Code)
	suite.Equal("FORBIDDEN", suite.errorCode(w))
}

func (suite *ChatIntegrationTestSuite) TestAdminEndpointsRejectExpiredToken() {
	token := testutil.SignToken(suite.T(), suite.app.Tokens(), "admin", models.RoleAdmin, -2*time.Hour)

	w := suite.request(http.MethodGet, "/api/chat/conversations", nil, token)
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *ChatIntegrationTestSuite) TestLoginIssuesUsableToken() {
	w := suite.request(http.MethodPost, "/api/auth/login", map[string]string{
		"username": suite.app.Config.AdminUsername,
		"password": testutil.TestAdminPassword,
	}, "")
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var login struct {
		AccessToken string `json:"access_token"`
		User        struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"user"`
	}
	suite.decode(w, &login)
	suite.NotEmpty(login.AccessToken)
	suite.Equal(models.RoleAdmin, login.User.Role)

	w = suite.request(http.MethodGet, "/api/chat/conversations", nil, login.AccessToken)
	suite.Equal(http.StatusOK, w.Code)
}

func (suite *ChatIntegrationTestSuite) TestLoginRejectsWrongPassword() {
	w := suite.request(http.MethodPost, "/api/auth/login", map[string]string{
		"username": suite.app.Config.AdminUsername,
		"password": "wrong-password",
	}, "")

	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Equal("INVALID_CREDENTIALS", suite.errorCode(w))
}

func (suite *ChatIntegrationTestSuite) TestAdminInboxFlow() {
	token := suite.app.AdminToken(suite.T())

	older := suite.startConversation("Lan Anh")
	suite.sendText(older, "user", "hello")
	suite.sendText(older, "user", "anyone there?")
	newer := suite.startConversation("Minh Chau")
	suite.sendText(newer, "user", "quote please")

	w := suite.request(http.MethodGet, "/api/chat/conversations", nil, token)
	suite.Require().Equal(http.StatusOK, w.Code)
	var inbox []services.ConversationSummary
	suite.decode(w, &inbox)
	suite.Require().Len(inbox, 2)
	suite.Equal(newer, inbox[0].ConversationID, "most recent conversation comes first")
	suite.Equal(older, inbox[1].ConversationID)
	suite.Equal(3, inbox[1].MessageCount)
	suite.Equal(2, inbox[1].UnreadCount)

	w = suite.request(http.MethodPost, "/api/chat/mark-read/"+older, nil, token)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.JSONEq(`{"success":true}`, w.Body.String())

	w = suite.request(http.MethodPost, "/api/chat/archive/"+newer, nil, token)
	suite.Require().Equal(http.StatusOK, w.Code)

	w = suite.request(http.MethodGet, "/api/chat/conversations", nil, token)
	suite.decode(w, &inbox)
	suite.Require().Len(inbox, 2, "archived conversations are listed by default")
	suite.True(inbox[0].Archived)
	suite.Equal(0, inbox[1].UnreadCount)

	w = suite.request(http.MethodGet, "/api/chat/conversations?excludeArchived=true", nil, token)
	suite.decode(w, &inbox)
	suite.Require().Len(inbox, 1)
	suite.Equal(older, inbox[0].ConversationID)
}

func (suite *ChatIntegrationTestSuite) TestRequestIDIsEchoed() {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")

	w := suite.app.Do(req)
	suite.Equal("req-123", w.Header().Get("X-Request-ID"))
}

func TestChatIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(ChatIntegrationTestSuite))
}

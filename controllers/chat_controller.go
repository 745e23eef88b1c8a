package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/portfolio-chat-api/logging"
	"github.com/kendall-kelly/portfolio-chat-api/services"
	"github.com/kendall-kelly/portfolio-chat-api/utils"
)

// StartConversationRequest is the visitor contact form
type StartConversationRequest struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

// errorResponse writes the standard error envelope
func errorResponse(c *gin.Context, status int, code, message string, details interface{}) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	c.PureJSON(status, gin.H{
		"success": false,
		"error":   body,
	})
}

// serviceError maps a service error onto a response
func serviceError(c *gin.Context, err error, message string) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", ve.Message, gin.H{"reason": ve.Code})
		return
	}

	logging.FromContext(c.Request.Context()).Error(message, logging.Err(err))
	errorResponse(c, http.StatusInternalServerError, "DATABASE_ERROR", message, nil)
}

// StartConversation handles POST /api/chat/start - opens a conversation for a visitor
func StartConversation(c *gin.Context) {
	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
		return
	}

	if fieldErrors := utils.ValidateContact(req.FullName, req.Phone, req.Email); len(fieldErrors) > 0 {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid contact information", fieldErrors)
		return
	}

	ctx := c.Request.Context()
	chat := services.GetChatService()

	conversationID, err := chat.StartConversation(ctx, services.ContactInfo{
		FullName: req.FullName,
		Phone:    req.Phone,
		Email:    req.Email,
	})
	if err != nil {
		serviceError(c, err, "Failed to start conversation")
		return
	}

	messages, err := chat.ListMessages(ctx, conversationID)
	if err != nil {
		serviceError(c, err, "Failed to fetch messages")
		return
	}

	logging.FromContext(ctx).Info("conversation started", logging.Conversation(conversationID))
	c.PureJSON(http.StatusCreated, gin.H{
		"conversationId": conversationID,
		"messages":       messages,
	})
}

// CreateMessage handles POST /api/chat/messages - REST fallback for send_message
func CreateMessage(c *gin.Context) {
	var input services.CreateMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
		return
	}

	ctx := c.Request.Context()
	message, err := services.GetChatService().CreateMessage(ctx, input)
	if err != nil {
		serviceError(c, err, "Failed to create message")
		return
	}

	services.GetBroadcaster().BroadcastNewMessage(ctx, message)
	c.PureJSON(http.StatusCreated, message)
}

// ListMessages handles GET /api/chat/messages/:conversationId
func ListMessages(c *gin.Context) {
	conversationID := c.Param("conversationId")

	messages, err := services.GetChatService().ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		serviceError(c, err, "Failed to fetch messages")
		return
	}

	c.PureJSON(http.StatusOK, messages)
}

// ListConversations handles GET /api/chat/conversations - the admin inbox
func ListConversations(c *gin.Context) {
	var opts services.DirectoryOptions
	if raw := c.Query("excludeArchived"); raw != "" {
		exclude, err := strconv.ParseBool(raw)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "excludeArchived must be a boolean", nil)
			return
		}
		opts.ExcludeArchived = exclude
	}

	summaries, err := services.GetDirectoryService().ListConversations(c.Request.Context(), opts)
	if err != nil {
		serviceError(c, err, "Failed to fetch conversations")
		return
	}

	c.PureJSON(http.StatusOK, summaries)
}

// MarkRead handles POST /api/chat/mark-read/:conversationId
func MarkRead(c *gin.Context) {
	conversationID := c.Param("conversationId")
	ctx := c.Request.Context()

	if _, err := services.GetChatService().MarkRead(ctx, conversationID); err != nil {
		serviceError(c, err, "Failed to mark messages as read")
		return
	}

	services.GetBroadcaster().BroadcastMessagesRead(ctx, conversationID)
	c.PureJSON(http.StatusOK, gin.H{"success": true})
}

// ArchiveConversation handles POST /api/chat/archive/:conversationId
func ArchiveConversation(c *gin.Context) {
	conversationID := c.Param("conversationId")

	if _, err := services.GetChatService().Archive(c.Request.Context(), conversationID); err != nil {
		serviceError(c, err, "Failed to archive conversation")
		return
	}

	c.PureJSON(http.StatusOK, gin.H{"success": true})
}

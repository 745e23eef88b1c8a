package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	appConfig "github.com/kendall-kelly/portfolio-chat-api/config"
	"github.com/kendall-kelly/portfolio-chat-api/models"
	"github.com/kendall-kelly/portfolio-chat-api/utils"
	"gorm.io/gorm"
)

// DefaultWelcomeTemplate greets a visitor by name when a conversation starts
const DefaultWelcomeTemplate = "Xin chào %s! Tôi có thể giúp gì cho bạn?"

// ContactInfo is the visitor identity collected before a chat starts
type ContactInfo struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

// CreateMessageInput is the payload for a new message, shared by the REST
// endpoint and the send_message socket event
type CreateMessageInput struct {
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender"`
	Text           string `json:"text,omitempty"`
	FullName       string `json:"fullName,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
	FileURL        string `json:"fileUrl,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	FileType       string `json:"fileType,omitempty"`
	FileSize       *int64 `json:"fileSize,omitempty"`
}

// ChatService is the conversation/message store
type ChatService interface {
	// StartConversation creates a conversation with an admin welcome message and returns its id
	StartConversation(ctx context.Context, contact ContactInfo) (string, error)

	// CreateMessage validates and persists a message
	CreateMessage(ctx context.Context, input CreateMessageInput) (*models.Message, error)

	// ListMessages returns every message of a conversation, oldest first
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	// MarkRead marks the visitor's unread messages as read and returns how many changed
	MarkRead(ctx context.Context, conversationID string) (int64, error)

	// Archive flags every message of the conversation as archived
	Archive(ctx context.Context, conversationID string) (int64, error)
}

// GormChatService implements ChatService on a single messages table
type GormChatService struct {
	db              *gorm.DB
	welcomeTemplate string
	now             func() time.Time
}

// ChatOption customizes a GormChatService
type ChatOption func(*GormChatService)

// WithWelcomeTemplate sets the fmt template for the welcome message; it
// receives the visitor's full name. Templates without exactly one %s keep
// the default.
func WithWelcomeTemplate(template string) ChatOption {
	return func(s *GormChatService) {
		if appConfig.ValidWelcomeTemplate(template) {
			s.welcomeTemplate = template
		}
	}
}

// WithClock replaces the time source used for CreatedAt
func WithClock(now func() time.Time) ChatOption {
	return func(s *GormChatService) {
		s.now = now
	}
}

var chatServiceInstance ChatService

// NewGormChatService creates a chat store backed by db
func NewGormChatService(db *gorm.DB, opts ...ChatOption) *GormChatService {
	s := &GormChatService{
		db:              db,
		welcomeTemplate: DefaultWelcomeTemplate,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitChatService initializes the process-wide chat service
func InitChatService(db *gorm.DB, opts ...ChatOption) ChatService {
	chatServiceInstance = NewGormChatService(db, opts...)
	return chatServiceInstance
}

// GetChatService returns the initialized chat service instance
func GetChatService() ChatService {
	return chatServiceInstance
}

// SetChatService sets the chat service instance (primarily for testing)
func SetChatService(service ChatService) {
	chatServiceInstance = service
}

// StartConversation generates a fresh conversation id and stores the welcome message
func (s *GormChatService) StartConversation(ctx context.Context, contact ContactInfo) (string, error) {
	fullName := strings.TrimSpace(contact.FullName)
	if fullName == "" {
		return "", newValidationError("MISSING_FULL_NAME", "fullName is required to start a conversation")
	}

	conversationID := uuid.NewString()
	welcome := models.Message{
		ConversationID: conversationID,
		Sender:         models.SenderAdmin,
		Text:           fmt.Sprintf(s.welcomeTemplate, fullName),
		FullName:       &fullName,
		Phone:          optional(contact.Phone),
		Email:          optional(contact.Email),
		IsRead:         models.SenderAdmin.InitiallyRead(),
		CreatedAt:      s.now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&welcome).Error; err != nil {
		return "", fmt.Errorf("failed to create welcome message: %w", err)
	}

	return conversationID, nil
}

// CreateMessage validates the input and persists it as a new message
func (s *GormChatService) CreateMessage(ctx context.Context, input CreateMessageInput) (*models.Message, error) {
	message, err := buildMessage(input)
	if err != nil {
		return nil, err
	}
	message.CreatedAt = s.now().UTC()

	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return message, nil
}

// ListMessages returns the conversation's messages ordered by creation time
func (s *GormChatService) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	messages := []models.Message{}
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}

// MarkRead flips is_read for the visitor's unread messages in one statement
func (s *GormChatService) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND sender = ? AND is_read = ?", conversationID, models.SenderUser, false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark messages as read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Archive sets archived on every message of the conversation in one statement
func (s *GormChatService) Archive(ctx context.Context, conversationID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Update("archived", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to archive conversation: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// buildMessage turns untrusted input into a message ready to insert
func buildMessage(input CreateMessageInput) (*models.Message, error) {
	conversationID := input.ConversationID
	if strings.TrimSpace(conversationID) == "" {
		return nil, newValidationError("MISSING_CONVERSATION_ID", "conversationId is required")
	}

	sender, err := models.ParseSender(input.Sender)
	if err != nil {
		return nil, newValidationError("INVALID_SENDER", err.Error())
	}

	if strings.TrimSpace(input.Text) == "" && strings.TrimSpace(input.FileURL) == "" {
		return nil, newValidationError("EMPTY_MESSAGE", "a message needs text or an attachment")
	}

	message := &models.Message{
		ConversationID: conversationID,
		Sender:         sender,
		Text:           input.Text,
		FullName:       optional(input.FullName),
		Phone:          optional(input.Phone),
		Email:          optional(input.Email),
		IsRead:         sender.InitiallyRead(),
		FileURL:        optional(input.FileURL),
		FileName:       optional(input.FileName),
	}

	if input.FileType != "" {
		fileType, err := models.ParseFileType(input.FileType)
		if err != nil {
			return nil, newValidationError("INVALID_FILE_TYPE", err.Error())
		}
		message.FileType = &fileType
	}

	if input.FileSize != nil {
		size := *input.FileSize
		if size < 0 || size > utils.MaxFileSize {
			return nil, newValidationError("INVALID_FILE_SIZE", fmt.Sprintf("fileSize must be between 0 and %d bytes", utils.MaxFileSize))
		}
		message.FileSize = &size
	}

	return message, nil
}

// optional returns nil for blank strings so absent fields stay NULL
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

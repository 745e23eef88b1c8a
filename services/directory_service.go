package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kendall-kelly/portfolio-chat-api/models"
	"gorm.io/gorm"
)

// ConversationSummary is one row of the admin inbox
type ConversationSummary struct {
	ConversationID string          `json:"conversationId"`
	LastMessage    *models.Message `json:"lastMessage"`
	MessageCount   int             `json:"messageCount"`
	UnreadCount    int             `json:"unreadCount"`
	FullName       *string         `json:"fullName"`
	Phone          *string         `json:"phone"`
	Email          *string         `json:"email"`
	Archived       bool            `json:"archived"`
}

// DirectoryOptions filters the inbox view
type DirectoryOptions struct {
	// ExcludeArchived hides conversations whose messages are all archived
	ExcludeArchived bool
}

// DirectoryService builds the admin inbox from the message store
type DirectoryService interface {
	ListConversations(ctx context.Context, opts DirectoryOptions) ([]ConversationSummary, error)
}

// GormDirectoryService recomputes the inbox from the messages table on every call
type GormDirectoryService struct {
	db *gorm.DB
}

var directoryServiceInstance DirectoryService

// NewGormDirectoryService creates a directory service backed by db
func NewGormDirectoryService(db *gorm.DB) *GormDirectoryService {
	return &GormDirectoryService{db: db}
}

// InitDirectoryService initializes the process-wide directory service
func InitDirectoryService(db *gorm.DB) DirectoryService {
	directoryServiceInstance = NewGormDirectoryService(db)
	return directoryServiceInstance
}

// GetDirectoryService returns the initialized directory service instance
func GetDirectoryService() DirectoryService {
	return directoryServiceInstance
}

// SetDirectoryService sets the directory service instance (primarily for testing)
func SetDirectoryService(service DirectoryService) {
	directoryServiceInstance = service
}

// ListConversations loads every message and reduces them to per-conversation summaries
func (s *GormDirectoryService) ListConversations(ctx context.Context, opts DirectoryOptions) ([]ConversationSummary, error) {
	var messages []models.Message
	if err := s.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	summaries := BuildDirectory(messages)
	if !opts.ExcludeArchived {
		return summaries, nil
	}

	visible := summaries[:0]
	for _, summary := range summaries {
		if !summary.Archived {
			visible = append(visible, summary)
		}
	}
	return visible, nil
}

type conversationGroup struct {
	summary ConversationSummary
	contact *models.Message
}

// BuildDirectory groups messages by conversation id and reduces each group to
// its count, unread count, latest message and contact details. The result is
// ordered by latest message, newest first. Input order does not matter.
func BuildDirectory(messages []models.Message) []ConversationSummary {
	groups := make(map[string]*conversationGroup)
	order := make([]string, 0)

	for i := range messages {
		m := &messages[i]
		if _, err := models.ParseSender(string(m.Sender)); err != nil {
			slog.Warn("skipping message with unknown sender",
				"conversation_id", m.ConversationID, "message_id", m.ID, "error", err)
			continue
		}
		g, ok := groups[m.ConversationID]
		if !ok {
			g = &conversationGroup{summary: ConversationSummary{
				ConversationID: m.ConversationID,
				Archived:       true,
			}}
			groups[m.ConversationID] = g
			order = append(order, m.ConversationID)
		}

		g.summary.MessageCount++
		if m.Sender.CountsAsUnread() && !m.IsRead {
			g.summary.UnreadCount++
		}
		if !m.Archived {
			g.summary.Archived = false
		}
		if g.summary.LastMessage == nil || newer(m, g.summary.LastMessage) {
			g.summary.LastMessage = m
		}
		if m.HasContact() && (g.contact == nil || newer(m, g.contact)) {
			g.contact = m
		}
	}

	summaries := make([]ConversationSummary, 0, len(order))
	for _, id := range order {
		g := groups[id]
		last := g.summary.LastMessage
		contact := g.contact
		if contact == nil {
			contact = last
		}
		g.summary.FullName = firstNonEmpty(contact.FullName, last.FullName)
		g.summary.Phone = firstNonEmpty(contact.Phone, last.Phone)
		g.summary.Email = firstNonEmpty(contact.Email, last.Email)
		summaries = append(summaries, g.summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessage, summaries[j].LastMessage
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return summaries[i].ConversationID < summaries[j].ConversationID
	})

	return summaries
}

// newer orders messages by creation time, then by id
func newer(a, b *models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func firstNonEmpty(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

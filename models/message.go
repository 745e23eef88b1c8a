package models

import (
	"fmt"
	"time"
)

// Sender identifies who authored a message. It is a closed set: every switch
// over Sender handles SenderUser and SenderAdmin and panics on anything else,
// so a new role cannot slip through unread counting or read receipts.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

// ParseSender converts untrusted input into a Sender
func ParseSender(s string) (Sender, error) {
	switch Sender(s) {
	case SenderUser, SenderAdmin:
		return Sender(s), nil
	}
	return "", fmt.Errorf("sender must be %q or %q, got %q", SenderUser, SenderAdmin, s)
}

// InitiallyRead reports whether a message from this sender is stored already read
func (s Sender) InitiallyRead() bool {
	switch s {
	case SenderAdmin:
		return true
	case SenderUser:
		return false
	}
	panic(fmt.Sprintf("models: unknown sender %q", string(s)))
}

// CountsAsUnread reports whether an unread message from this sender shows up
// in the admin's unread count and is affected by mark-read
func (s Sender) CountsAsUnread() bool {
	switch s {
	case SenderUser:
		return true
	case SenderAdmin:
		return false
	}
	panic(fmt.Sprintf("models: unknown sender %q", string(s)))
}

// FileType classifies an attachment
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeFile  FileType = "file"
)

// ParseFileType converts untrusted input into a FileType
func ParseFileType(s string) (FileType, error) {
	switch FileType(s) {
	case FileTypeImage, FileTypeFile:
		return FileType(s), nil
	}
	return "", fmt.Errorf("fileType must be %q or %q, got %q", FileTypeImage, FileTypeFile, s)
}

// Message is a single chat message. A conversation is the set of messages
// sharing a ConversationID; there is no conversation table.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"type:varchar(64);not null;index:idx_messages_conversation_created,priority:1" json:"conversationId"`
	Sender         Sender    `gorm:"type:varchar(10);not null;check:sender IN ('user', 'admin')" json:"sender"`
	Text           string    `gorm:"type:text;not null" json:"text"`
	FullName       *string   `json:"fullName,omitempty"`
	Phone          *string   `json:"phone,omitempty"`
	Email          *string   `json:"email,omitempty"`
	IsRead         bool      `gorm:"not null;default:false" json:"isRead"`
	Archived       bool      `gorm:"not null;default:false" json:"archived"`
	FileURL        *string   `json:"fileUrl,omitempty"`
	FileName       *string   `json:"fileName,omitempty"`
	FileType       *FileType `gorm:"type:varchar(10)" json:"fileType,omitempty"`
	FileSize       *int64    `json:"fileSize,omitempty"`
	CreatedAt      time.Time `gorm:"index:idx_messages_conversation_created,priority:2" json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TableName specifies the table name for the Message model
func (Message) TableName() string {
	return "messages"
}

// HasAttachment reports whether the message carries a file
func (m *Message) HasAttachment() bool {
	return m.FileURL != nil && *m.FileURL != ""
}

// HasContact reports whether the message carries the visitor's name
func (m *Message) HasContact() bool {
	return m.FullName != nil && *m.FullName != ""
}

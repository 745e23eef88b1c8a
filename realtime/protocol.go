package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/kendall-kelly/portfolio-chat-api/models"
)

// Client to server events
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventMarkRead          = "mark_read"
	EventTyping            = "typing"
)

// Server to client events
const (
	EventConnected    = "connected"
	EventMessages     = "messages"
	EventNewMessage   = "new_message"
	EventMessagesRead = "messages_read"
	EventTypingStatus = "typing_status"
	EventError        = "error"
	EventAck          = "ack"
)

// Error codes carried by error events and failed acks
const (
	CodeInvalidFrame   = "INVALID_FRAME"
	CodeUnknownEvent   = "UNKNOWN_EVENT"
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeDatabaseError  = "DATABASE_ERROR"
)

// Envelope is the JSON frame exchanged in both directions. AckID is set by a
// client that wants a direct reply and echoed back on the ack frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID *int64          `json:"ackId,omitempty"`
}

type outboundEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	AckID *int64 `json:"ackId,omitempty"`
}

// ConversationRef is the payload of join, leave and mark_read
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// TypingPayload is relayed unchanged from typing to typing_status
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender"`
	IsTyping       bool   `json:"isTyping"`
}

// ConnectedPayload is sent once right after the upgrade
type ConnectedPayload struct {
	SocketID string `json:"socketId"`
}

// ErrorPayload is the body of an error event
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MessageAck acknowledges a stored message; it is the message plus success
type MessageAck struct {
	*models.Message
	Success bool `json:"success"`
}

// FailureAck reports a rejected request to its sender
type FailureAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// MarkReadAck acknowledges mark_read with the number of messages changed
type MarkReadAck struct {
	Success bool  `json:"success"`
	Updated int64 `json:"updated"`
}

// JoinAck acknowledges join_conversation
type JoinAck struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversationId"`
	MessageCount   int    `json:"messageCount"`
}

// Encode builds a frame for event with the given payload
func Encode(event string, data any, ackID *int64) ([]byte, error) {
	frame, err := json.Marshal(outboundEnvelope{Event: event, Data: data, AckID: ackID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", event, err)
	}
	return frame, nil
}

// Decode parses an inbound frame
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("malformed frame: missing event")
	}
	return &env, nil
}

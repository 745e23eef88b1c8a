package services

import (
	"context"

	"github.com/kendall-kelly/portfolio-chat-api/models"
)

// Broadcaster pushes store changes made outside a websocket session to the
// sockets joined to the affected conversation.
type Broadcaster interface {
	BroadcastNewMessage(ctx context.Context, msg *models.Message)
	BroadcastMessagesRead(ctx context.Context, conversationID string)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastNewMessage(context.Context, *models.Message) {}

func (noopBroadcaster) BroadcastMessagesRead(context.Context, string) {}

var broadcasterInstance Broadcaster = noopBroadcaster{}

// GetBroadcaster returns the active broadcaster. It never returns nil.
func GetBroadcaster() Broadcaster {
	return broadcasterInstance
}

// SetBroadcaster replaces the active broadcaster. Passing nil restores the no-op default.
func SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = noopBroadcaster{}
	}
	broadcasterInstance = b
}

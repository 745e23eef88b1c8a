package services

import (
	"context"
	"testing"

	"github.com/kendall-kelly/portfolio-chat-api/models"
	"github.com/stretchr/testify/assert"
)

type countingBroadcaster struct{ newMessages, reads int }

func (c *countingBroadcaster) BroadcastNewMessage(context.Context, *models.Message) { c.newMessages++ }
func (c *countingBroadcaster) BroadcastMessagesRead(context.Context, string)        { c.reads++ }

func TestBroadcasterDefaultsToNoop(t *testing.T) {
	SetBroadcaster(nil)
	b := GetBroadcaster()
	assert.NotNil(t, b)
	assert.NotPanics(t, func() {
		b.BroadcastNewMessage(context.Background(), &models.Message{})
		b.BroadcastMessagesRead(context.Background(), "c1")
	})
}

func TestSetBroadcaster(t *testing.T) {
	defer SetBroadcaster(nil)

	counter := &countingBroadcaster{}
	SetBroadcaster(counter)
	GetBroadcaster().BroadcastNewMessage(context.Background(), &models.Message{})
	GetBroadcaster().BroadcastMessagesRead(context.Background(), "c1")

	assert.Equal(t, 1, counter.newMessages)
	assert.Equal(t, 1, counter.reads)
}

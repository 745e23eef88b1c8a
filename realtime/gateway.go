package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kendall-kelly/portfolio-chat-api/logging"
	"github.com/kendall-kelly/portfolio-chat-api/models"
	"github.com/kendall-kelly/portfolio-chat-api/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GatewayConfig configures the websocket endpoint
type GatewayConfig struct {
	Session        SessionConfig
	RequestTimeout time.Duration
	// AllowedOrigins restricts the Origin header; empty allows any origin
	AllowedOrigins []string
	// Relay shares broadcasts with other instances; nil keeps them local
	Relay Relay
}

// Gateway serves the chat session protocol. It owns the registry, runs one
// read loop per socket and also implements services.Broadcaster so REST
// writes reach the same rooms.
type Gateway struct {
	chat     services.ChatService
	registry *Registry
	cfg      GatewayConfig
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

var _ services.Broadcaster = (*Gateway)(nil)

var tracer = otel.Tracer("github.com/kendall-kelly/portfolio-chat-api/realtime")

// NewGateway creates a gateway that persists through chat
func NewGateway(chat services.ChatService, cfg GatewayConfig, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}

	defaults := DefaultSessionConfig()
	if cfg.Session.PingInterval <= 0 {
		cfg.Session.PingInterval = defaults.PingInterval
	}
	if cfg.Session.PongTimeout <= 0 {
		cfg.Session.PongTimeout = defaults.PongTimeout
	}
	if cfg.Session.WriteTimeout <= 0 {
		cfg.Session.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.Session.SendBuffer <= 0 {
		cfg.Session.SendBuffer = defaults.SendBuffer
	}
	if cfg.Session.MaxMessageSize <= 0 {
		cfg.Session.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	g := &Gateway{
		chat:     chat,
		registry: NewRegistry(log),
		cfg:      cfg,
		log:      log,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// Registry exposes the session registry
func (g *Gateway) Registry() *Registry {
	return g.registry
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}

// Handle is the gin handler for GET /api/chat/ws
func (g *Gateway) Handle(c *gin.Context) {
	g.ServeHTTP(c.Writer, c.Request)
}

// ServeHTTP upgrades the request and runs the session until it disconnects
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	g.sessions.Add(1)
	g.mu.Unlock()
	defer g.sessions.Done()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(r.Context()).Warn("websocket upgrade failed", logging.Err(err))
		return
	}

	socketID := uuid.NewString()
	log := logging.FromContext(r.Context()).With(logging.Socket(socketID))
	ctx := logging.WithContext(context.WithoutCancel(r.Context()), log)

	session := newSession(socketID, conn, g.cfg.Session, log)
	g.registry.Register(session)
	defer func() {
		g.registry.Unregister(socketID)
		session.Close()
		log.Info("socket disconnected")
	}()

	go session.writePump()

	if g.isClosed() {
		session.CloseGoingAway()
		return
	}

	log.Info("socket connected")
	g.reply(ctx, session, EventConnected, ConnectedPayload{SocketID: socketID}, nil)

	session.readLoop(func(frame []byte) {
		g.dispatch(ctx, session, frame)
	})
}

func (g *Gateway) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Shutdown closes every open socket and waits for their handlers to return
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	for _, m := range g.registry.Members() {
		if s, ok := m.(*Session); ok {
			s.CloseGoingAway()
		}
	}

	done := make(chan struct{})
	go func() {
		g.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch handles one inbound frame. Frames from one socket are handled in order.
func (g *Gateway) dispatch(ctx context.Context, s *Session, frame []byte) {
	env, err := Decode(frame)
	if err != nil {
		g.reply(ctx, s, EventError, ErrorPayload{Code: CodeInvalidFrame, Message: err.Error()}, nil)
		return
	}

	ctx, span := tracer.Start(ctx, "ws "+env.Event,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("chat.socket_id", s.ID()),
			attribute.String("chat.event", env.Event),
		),
	)
	defer span.End()

	log := logging.FromContext(ctx).With(logging.Event(env.Event))
	ctx = logging.WithContext(ctx, log)
	log.Debug("event received")

	switch env.Event {
	case EventJoinConversation:
		g.handleJoin(ctx, s, env)
	case EventLeaveConversation:
		g.handleLeave(ctx, s, env)
	case EventSendMessage:
		g.handleSendMessage(ctx, s, env)
	case EventMarkRead:
		g.handleMarkRead(ctx, s, env)
	case EventTyping:
		g.handleTyping(ctx, s, env)
	default:
		g.fail(ctx, s, env, CodeUnknownEvent, "unknown event "+env.Event)
	}
}

func (g *Gateway) handleJoin(ctx context.Context, s *Session, env *Envelope) {
	ref, ok := g.conversationRef(ctx, s, env)
	if !ok {
		return
	}

	previous, err := g.registry.Join(s.ID(), ref.ConversationID)
	if err != nil {
		g.fail(ctx, s, env, CodeInvalidPayload, err.Error())
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	messages, err := g.chat.ListMessages(reqCtx, ref.ConversationID)
	if err != nil {
		logging.FromContext(ctx).Error("failed to load history", logging.Conversation(ref.ConversationID), logging.Err(err))
		g.fail(ctx, s, env, CodeDatabaseError, "failed to load messages")
		return
	}

	logging.FromContext(ctx).Info("joined conversation",
		logging.Conversation(ref.ConversationID),
		slog.String("previous_conversation_id", previous))

	g.reply(ctx, s, EventMessages, messages, nil)
	if env.AckID != nil {
		g.reply(ctx, s, EventAck, JoinAck{Success: true, ConversationID: ref.ConversationID, MessageCount: len(messages)}, env.AckID)
	}
}

func (g *Gateway) handleLeave(ctx context.Context, s *Session, env *Envelope) {
	ref, ok := g.conversationRef(ctx, s, env)
	if !ok {
		return
	}

	left := g.registry.Leave(s.ID(), ref.ConversationID)
	if left {
		logging.FromContext(ctx).Info("left conversation", logging.Conversation(ref.ConversationID))
	}
	if env.AckID != nil {
		g.reply(ctx, s, EventAck, map[string]bool{"success": true}, env.AckID)
	}
}

func (g *Gateway) handleSendMessage(ctx context.Context, s *Session, env *Envelope) {
	var input services.CreateMessageInput
	if err := json.Unmarshal(env.Data, &input); err != nil {
		g.fail(ctx, s, env, CodeInvalidPayload, "invalid send_message payload")
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	message, err := g.chat.CreateMessage(reqCtx, input)
	if err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			g.fail(ctx, s, env, ve.Code, ve.Message)
			return
		}
		logging.FromContext(ctx).Error("failed to store message", logging.Conversation(input.ConversationID), logging.Err(err))
		g.fail(ctx, s, env, CodeDatabaseError, "failed to store message")
		return
	}

	g.BroadcastNewMessage(ctx, message)
	if env.AckID != nil {
		g.reply(ctx, s, EventAck, MessageAck{Message: message, Success: true}, env.AckID)
	}
}

func (g *Gateway) handleMarkRead(ctx context.Context, s *Session, env *Envelope) {
	ref, ok := g.conversationRef(ctx, s, env)
	if !ok {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	updated, err := g.chat.MarkRead(reqCtx, ref.ConversationID)
	if err != nil {
		logging.FromContext(ctx).Error("failed to mark messages read", logging.Conversation(ref.ConversationID), logging.Err(err))
		g.fail(ctx, s, env, CodeDatabaseError, "failed to mark messages as read")
		return
	}

	g.BroadcastMessagesRead(ctx, ref.ConversationID)
	if env.AckID != nil {
		g.reply(ctx, s, EventAck, MarkReadAck{Success: true, Updated: updated}, env.AckID)
	}
}

func (g *Gateway) handleTyping(ctx context.Context, s *Session, env *Envelope) {
	var payload TypingPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil || strings.TrimSpace(payload.ConversationID) == "" {
		g.fail(ctx, s, env, CodeInvalidPayload, "typing requires a conversationId")
		return
	}

	if _, err := g.fanOut(ctx, payload.ConversationID, EventTypingStatus, payload); err != nil {
		logging.FromContext(ctx).Error("failed to relay typing status", logging.Err(err))
	}
}

// BroadcastNewMessage sends new_message to the message's room
func (g *Gateway) BroadcastNewMessage(ctx context.Context, msg *models.Message) {
	delivered, err := g.fanOut(ctx, msg.ConversationID, EventNewMessage, msg)
	if err != nil {
		logging.FromContext(ctx).Error("failed to broadcast message",
			logging.Conversation(msg.ConversationID), logging.MessageID(msg.ID), logging.Err(err))
		return
	}
	logging.FromContext(ctx).Debug("message broadcast",
		logging.Conversation(msg.ConversationID), logging.MessageID(msg.ID), slog.Int("delivered", delivered))
}

// BroadcastMessagesRead sends messages_read, whose payload is the conversation id, to the room
func (g *Gateway) BroadcastMessagesRead(ctx context.Context, conversationID string) {
	if _, err := g.fanOut(ctx, conversationID, EventMessagesRead, conversationID); err != nil {
		logging.FromContext(ctx).Error("failed to broadcast read receipt",
			logging.Conversation(conversationID), logging.Err(err))
	}
}

// fanOut delivers to the local room and publishes for other instances
func (g *Gateway) fanOut(ctx context.Context, conversationID, event string, payload any) (int, error) {
	delivered, err := g.registry.Broadcast(conversationID, event, payload)
	if err != nil {
		return 0, err
	}
	if g.cfg.Relay != nil {
		if err := g.cfg.Relay.Publish(ctx, conversationID, event, payload); err != nil {
			logging.FromContext(ctx).Warn("failed to relay broadcast",
				logging.Conversation(conversationID), logging.Event(event), logging.Err(err))
		}
	}
	return delivered, nil
}

// StartRelay subscribes to broadcasts from other instances. It is a no-op
// without a relay.
func (g *Gateway) StartRelay(ctx context.Context) error {
	if g.cfg.Relay == nil {
		return nil
	}
	return g.cfg.Relay.Start(ctx, g.deliverRemote)
}

func (g *Gateway) deliverRemote(conversationID, event string, data json.RawMessage) {
	delivered, err := g.registry.Broadcast(conversationID, event, data)
	if err != nil {
		g.log.Warn("failed to deliver relayed broadcast",
			logging.Conversation(conversationID), logging.Event(event), logging.Err(err))
		return
	}
	g.log.Debug("relayed broadcast delivered",
		logging.Conversation(conversationID), logging.Event(event), slog.Int("delivered", delivered))
}

func (g *Gateway) conversationRef(ctx context.Context, s *Session, env *Envelope) (ConversationRef, bool) {
	var ref ConversationRef
	if err := json.Unmarshal(env.Data, &ref); err != nil || strings.TrimSpace(ref.ConversationID) == "" {
		g.fail(ctx, s, env, CodeInvalidPayload, env.Event+" requires a conversationId")
		return ref, false
	}
	return ref, true
}

// fail answers with a failed ack when the client asked for one, otherwise with an error event
func (g *Gateway) fail(ctx context.Context, s *Session, env *Envelope, code, message string) {
	trace.SpanFromContext(ctx).SetStatus(codes.Error, code)
	if env.AckID != nil {
		g.reply(ctx, s, EventAck, FailureAck{Success: false, Error: message, Code: code}, env.AckID)
		return
	}
	g.reply(ctx, s, EventError, ErrorPayload{Code: code, Message: message}, nil)
}

func (g *Gateway) reply(ctx context.Context, s *Session, event string, payload any, ackID *int64) {
	frame, err := Encode(event, payload, ackID)
	if err != nil {
		logging.FromContext(ctx).Error("failed to encode reply", logging.Event(event), logging.Err(err))
		return
	}
	if err := s.Deliver(frame); err != nil {
		logging.FromContext(ctx).Debug("reply dropped", logging.Event(event), logging.Err(err))
	}
}

package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"market-live/auth"
	"market-live/contract"
	"market-live/domain"
	"market-live/domain/event"
	apperrors "market-live/errors"
	"market-live/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds a single inbound frame, generous against the
	// 4000 rune body limit enforced downstream.
	maxMessageSize = 32 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one upgraded WebSocket connection. It implements
// contract.EventSink so the registry can hand it straight to the router:
// Consume serializes the event and drops it into the buffered send
// channel, the writePump drains that channel onto the socket.
type Client struct {
	userID       string
	connectionID uuid.UUID
	conn         *websocket.Conn
	send         chan []byte
	// done closes when the readPump exits; the send channel itself is
	// never closed because fan-out goroutines may still hold the sink.
	done        chan struct{}
	registry    contract.IRegistry
	chatService ChatOps
	limiter     *RateLimiter
	monitoring  *observability.MonitoringManager
	log         *slog.Logger
}

// ChatOps is the slice of the chat service the live channel needs.
type ChatOps interface {
	Send(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error)
	MarkRead(ctx context.Context, cmd domain.MarkReadCommand) error
	Typing(ctx context.Context, chatID domain.ChatID, userID string, started bool)
}

var _ contract.EventSink = (*Client)(nil)

// Consume never blocks the router: a full send buffer means this
// connection is too slow right now, so the event is dropped here and the
// client recovers it through resync on its next reconnect.
func (c *Client) Consume(_ context.Context, e event.DomainEvent) error {
	envelope := toEnvelope(e)
	if envelope == nil {
		return nil
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return apperrors.ErrTransientDelivery
	case c.send <- raw:
		return nil
	default:
		return apperrors.ErrTransientDelivery
	}
}

// ServeWs authenticates via the token middleware, upgrades the request and
// registers the connection before any pump starts, so no event can slip
// between registration and the first read.
func ServeWs(
	registry contract.IRegistry,
	chatService ChatOps,
	limiter *RateLimiter,
	monitoring *observability.MonitoringManager,
	sendBuffer int,
	log *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		client := &Client{
			userID:      userID,
			conn:        conn,
			send:        make(chan []byte, sendBuffer),
			done:        make(chan struct{}),
			registry:    registry,
			chatService: chatService,
			limiter:     limiter,
			monitoring:  monitoring,
			log:         log.With(slog.String("user_id", userID)),
		}
		client.connectionID = registry.Register(userID, client)

		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.registry.Deregister(c.connectionID)
		close(c.done)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.registry.Heartbeat(c.connectionID)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := context.Background()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket closed unexpectedly", slog.String("error", err.Error()))
			}
			return
		}
		c.registry.Heartbeat(c.connectionID)

		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			c.reply(Envelope{Kind: KindError, Body: "malformed envelope"})
			continue
		}
		c.handle(ctx, envelope)
	}
}

func (c *Client) handle(ctx context.Context, envelope Envelope) {
	switch envelope.Kind {
	case KindHeartbeat:
		// Heartbeat already recorded on read.
	case KindJoinRoom:
		chatID, err := uuid.Parse(envelope.ChatID)
		if err != nil {
			c.reply(Envelope{Kind: KindError, Body: "invalid chat id"})
			return
		}
		c.registry.JoinChat(c.connectionID, chatID)
	case KindLeaveRoom:
		chatID, err := uuid.Parse(envelope.ChatID)
		if err != nil {
			return
		}
		c.registry.LeaveChat(c.connectionID, chatID)
	case KindFocus:
		// An empty chat_id clears focus: the user navigated away from
		// every conversation view.
		if envelope.ChatID == "" {
			c.registry.SetFocus(c.connectionID, nil)
			return
		}
		chatID, err := uuid.Parse(envelope.ChatID)
		if err != nil {
			c.reply(Envelope{Kind: KindError, Body: "invalid chat id"})
			return
		}
		c.registry.SetFocus(c.connectionID, &chatID)
	case KindNewMessage:
		c.handleNewMessage(ctx, envelope)
	case KindTypingStart, KindTypingStop:
		chatID, err := uuid.Parse(envelope.ChatID)
		if err != nil {
			return
		}
		c.chatService.Typing(ctx, chatID, c.userID, envelope.Kind == KindTypingStart)
	case KindReadReceipt:
		chatID, err := uuid.Parse(envelope.ChatID)
		if err != nil {
			c.reply(Envelope{Kind: KindError, Body: "invalid chat id"})
			return
		}
		if err := c.chatService.MarkRead(ctx, domain.MarkReadCommand{ChatID: chatID, UserID: c.userID}); err != nil {
			c.log.Warn("mark read failed", slog.String("chat_id", envelope.ChatID), slog.String("error", err.Error()))
		}
	default:
		c.reply(Envelope{Kind: KindError, Body: "unknown envelope kind"})
	}
}

// handleNewMessage checks the rate limit before touching the router, so a
// rejected message never reaches persistence.
func (c *Client) handleNewMessage(ctx context.Context, envelope Envelope) {
	chatID, err := uuid.Parse(envelope.ChatID)
	if err != nil {
		c.reply(Envelope{Kind: KindError, Body: "invalid chat id"})
		return
	}

	if err := c.limiter.Allow(c.userID); err != nil {
		c.monitoring.IncrRateLimitRejects()
		var rateErr apperrors.RateLimitError
		if stderrors.As(err, &rateErr) {
			c.reply(Envelope{Kind: KindRateLimitExceeded, RetryAfterMs: rateErr.RetryAfter.Milliseconds()})
		}
		return
	}

	_, err = c.chatService.Send(ctx, domain.PostMessageCommand{
		ChatID:    chatID,
		SenderID:  c.userID,
		Body:      envelope.Body,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		c.log.Warn("message rejected",
			slog.String("chat_id", envelope.ChatID),
			slog.String("error", err.Error()))
		c.reply(Envelope{Kind: KindError, ChatID: envelope.ChatID, Body: err.Error()})
	}
}

func (c *Client) reply(envelope Envelope) {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case raw := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

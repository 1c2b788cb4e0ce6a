package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"market-live/contract"
	"market-live/domain"
	"market-live/domain/event"
	apperrors "market-live/errors"
	"market-live/moderation"
	"market-live/observability"
	"market-live/repositories"
)

var validate = validator.New()

// bodyRules bounds a message body to 4000 runes and rejects empty ones.
// Validated here rather than at the transport so every send path is covered.
const bodyRules = "required,max=4000"

// Router is the single authorized path for introducing a new message and
// propagating its effects. Every operation that mutates a chat's unread
// counters (send, mark read, add/remove participant) runs under that
// chat's lock and only that chat's lock, so two concurrent senders never
// lose an increment and no operation ever blocks on an unrelated chat.
type Router struct {
	log        *slog.Logger
	registry   contract.IRegistry
	chats      repositories.IChatRepository
	messages   repositories.IMessageRepository
	counters   repositories.ICounterRepository
	dispatcher contract.IDispatcher
	moderator  *moderation.Moderator
	monitoring *observability.MonitoringManager

	mu        sync.Mutex
	chatLocks map[domain.ChatID]*sync.Mutex
}

func NewRouter(
	log *slog.Logger,
	registry contract.IRegistry,
	chats repositories.IChatRepository,
	messages repositories.IMessageRepository,
	counters repositories.ICounterRepository,
	dispatcher contract.IDispatcher,
	moderator *moderation.Moderator,
	monitoring *observability.MonitoringManager,
) *Router {
	return &Router{
		log:        log,
		registry:   registry,
		chats:      chats,
		messages:   messages,
		counters:   counters,
		dispatcher: dispatcher,
		moderator:  moderator,
		monitoring: monitoring,
		chatLocks:  make(map[domain.ChatID]*sync.Mutex),
	}
}

// lockFor returns the serialization point for one chat, creating it on
// first use. Lock scope is strictly per-chat-id.
func (r *Router) lockFor(chatID domain.ChatID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.chatLocks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		r.chatLocks[chatID] = lock
	}
	return lock
}

// Send runs the full routing algorithm: validate sender, mask the body,
// persist message plus counter moves atomically, fan out to every live
// connection of every active participant, then notify recipients who are
// offline or not viewing the chat. A persistence failure aborts the whole
// operation; nothing fans out and no counter moves.
func (r *Router) Send(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	if err := validate.Var(cmd.Body, bodyRules); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidMessage, err)
	}

	lock := r.lockFor(cmd.ChatID)
	lock.Lock()
	defer lock.Unlock()

	chat, err := r.chats.Get(cmd.ChatID)
	if err != nil {
		return domain.Message{}, err
	}
	if !chat.IsActiveParticipant(cmd.SenderID) {
		return domain.Message{}, fmt.Errorf("%w: user %s in chat %s",
			apperrors.ErrNotParticipant, cmd.SenderID, cmd.ChatID)
	}

	body := cmd.Body
	if r.moderator != nil {
		masked, found := r.moderator.Censor(cmd.Body)
		if len(found) > 0 {
			info := whatlanggo.Detect(cmd.Body)
			r.log.Warn("Masked blacklisted words in message",
				"chat_id", cmd.ChatID,
				"sender_id", cmd.SenderID,
				"lang", info.Lang.Iso6391(),
				"words", len(found))
			body = masked
		}
	}

	message := domain.Message{
		ID:            uuid.New(),
		ChatID:        cmd.ChatID,
		SenderID:      cmd.SenderID,
		Body:          body,
		CreatedAt:     cmd.CreatedAt,
		DeliveryState: domain.DeliverySent,
	}

	var recipients []string
	for _, userID := range chat.ActiveParticipantIDs() {
		if userID != cmd.SenderID {
			recipients = append(recipients, userID)
		}
	}

	// Message append and all counter moves commit in one transaction.
	if err := r.messages.Append(message, recipients); err != nil {
		return domain.Message{}, fmt.Errorf("message persistence failed: %w", err)
	}
	r.monitoring.IncrMessagesRouted()

	chat.LastMessageAt = message.CreatedAt
	if err := r.chats.Save(chat); err != nil {
		// The message is durable; a stale LastMessageAt only affects
		// chat-list ordering until the next send.
		r.log.Error("Failed to update chat watermark", "chat_id", chat.ID, "error", err)
	}

	// Fan-out. The sender's own connections receive the message too, which
	// is what keeps their other tabs in sync.
	delivered := event.MessageDelivered{Message: message}
	r.fanoutToUser(ctx, cmd.SenderID, delivered)

	reached, live := 0, 0
	for _, userID := range recipients {
		reachedUser, liveUser := r.fanoutToUser(ctx, userID, delivered)
		reached += reachedUser
		live += liveUser
	}

	if state := domain.DeliveryStateFor(reached, live); state != domain.DeliverySent {
		if err := r.messages.SetDeliveryState(message, state); err != nil {
			r.log.Error("Failed to record delivery state", "message_id", message.ID, "error", err)
		}
		message.DeliveryState = state
	}

	r.notifyRecipients(ctx, message, recipients)
	return message, nil
}

// fanoutToUser pushes one event to every live connection of one user.
// A dead sink is logged and skipped; it never blocks the rest of the batch.
func (r *Router) fanoutToUser(ctx context.Context, userID string, evt event.DomainEvent) (reached, live int) {
	sinks := r.registry.ConnectionsFor(userID)
	for _, sink := range sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			r.monitoring.IncrDeliveryFailures()
			r.log.Warn("Skipping unreachable connection",
				"user_id", userID,
				"error", fmt.Errorf("%w: %v", apperrors.ErrTransientDelivery, err))
			continue
		}
		r.monitoring.IncrEventsDelivered()
		reached++
	}
	return reached, len(sinks)
}

// notifyRecipients emits a notification for each recipient who is offline,
// or online but not currently viewing this chat. Dispatch failures are
// logged only; the message itself is already durable and fanned out.
func (r *Router) notifyRecipients(ctx context.Context, message domain.Message, recipients []string) {
	for _, userID := range recipients {
		if r.registry.IsViewing(userID, message.ChatID) {
			continue
		}
		n := domain.NewNotification(userID, message.SenderID, domain.KindMessage,
			domain.SubjectRef{Type: "message", ID: message.ID.String()}, message.CreatedAt)
		if err := r.dispatcher.Dispatch(ctx, n); err != nil {
			r.log.Error("Notification dispatch failed",
				"recipient_id", userID, "message_id", message.ID, "error", err)
		}
	}
}

// MarkRead resets the participant's unread entry to 0 and propagates the
// acknowledgement to the reader's other connections so multi-tab badges
// converge. Idempotent.
func (r *Router) MarkRead(ctx context.Context, cmd domain.MarkReadCommand) error {
	lock := r.lockFor(cmd.ChatID)
	lock.Lock()
	defer lock.Unlock()

	chat, err := r.chats.Get(cmd.ChatID)
	if err != nil {
		return err
	}
	if !chat.IsActiveParticipant(cmd.UserID) {
		return fmt.Errorf("%w: user %s in chat %s",
			apperrors.ErrNotParticipant, cmd.UserID, cmd.ChatID)
	}

	if err := r.counters.Reset(cmd.ChatID, cmd.UserID); err != nil {
		return err
	}

	r.fanoutToUser(ctx, cmd.UserID, event.ReadAcknowledged{
		ChatID: cmd.ChatID,
		UserID: cmd.UserID,
		At:     time.Now().UTC(),
	})
	return nil
}

// AddParticipant admits a new member to a group chat. The actor must hold
// the admin role; direct chats never grow.
func (r *Router) AddParticipant(ctx context.Context, cmd domain.AddParticipantCommand) error {
	lock := r.lockFor(cmd.ChatID)
	lock.Lock()
	defer lock.Unlock()

	chat, err := r.chats.Get(cmd.ChatID)
	if err != nil {
		return err
	}
	if chat.Type != domain.ChatGroup {
		return fmt.Errorf("%w: cannot add participants to a direct chat", apperrors.ErrPermissionDenied)
	}
	if !chat.IsAdmin(cmd.ActorID) {
		return fmt.Errorf("%w: actor %s is not an admin of chat %s",
			apperrors.ErrPermissionDenied, cmd.ActorID, cmd.ChatID)
	}
	if chat.IsActiveParticipant(cmd.UserID) {
		return nil
	}

	chat.Add(cmd.UserID, time.Now().UTC())
	if err := r.chats.UpdateParticipants(chat, []string{cmd.UserID}, nil, time.Now().UTC()); err != nil {
		return err
	}

	r.fanoutToChat(ctx, chat, event.ParticipantJoined{ChatID: chat.ID, UserID: cmd.UserID})
	return nil
}

// RemoveParticipant deactivates a member. Allowed for admins, or for a
// user removing themself. The removed user's unread entry disappears, but
// their authored messages stay visible to the rest of the chat.
func (r *Router) RemoveParticipant(ctx context.Context, cmd domain.RemoveParticipantCommand) error {
	lock := r.lockFor(cmd.ChatID)
	lock.Lock()
	defer lock.Unlock()

	chat, err := r.chats.Get(cmd.ChatID)
	if err != nil {
		return err
	}
	removingSelf := cmd.ActorID == cmd.UserID
	if !removingSelf && (chat.Type != domain.ChatGroup || !chat.IsAdmin(cmd.ActorID)) {
		return fmt.Errorf("%w: actor %s cannot remove %s from chat %s",
			apperrors.ErrPermissionDenied, cmd.ActorID, cmd.UserID, cmd.ChatID)
	}

	now := time.Now().UTC()
	if !chat.Deactivate(cmd.UserID, now) {
		return fmt.Errorf("%w: user %s in chat %s", apperrors.ErrNotFound, cmd.UserID, cmd.ChatID)
	}
	if err := r.chats.UpdateParticipants(chat, nil, []string{cmd.UserID}, now); err != nil {
		return err
	}

	r.fanoutToChat(ctx, chat, event.ParticipantLeft{ChatID: chat.ID, UserID: cmd.UserID})
	return nil
}

// Leave soft-closes the chat for one user. Direct chats become one-sided
// inactive rather than deleted, so the remaining participant keeps history.
func (r *Router) Leave(ctx context.Context, cmd domain.LeaveCommand) error {
	return r.RemoveParticipant(ctx, domain.RemoveParticipantCommand{
		ChatID:  cmd.ChatID,
		ActorID: cmd.UserID,
		UserID:  cmd.UserID,
	})
}

// Rename updates group metadata. Admin only.
func (r *Router) Rename(cmd domain.RenameCommand) error {
	lock := r.lockFor(cmd.ChatID)
	lock.Lock()
	defer lock.Unlock()

	chat, err := r.chats.Get(cmd.ChatID)
	if err != nil {
		return err
	}
	if chat.Type != domain.ChatGroup || !chat.IsAdmin(cmd.ActorID) {
		return fmt.Errorf("%w: actor %s cannot rename chat %s",
			apperrors.ErrPermissionDenied, cmd.ActorID, cmd.ChatID)
	}
	chat.Name = cmd.Name
	return r.chats.Save(chat)
}

// Typing forwards a typing indicator to the other active participants.
// Fire-and-forget: no acknowledgement, no persistence, and losing one
// never corrupts counters or messages.
func (r *Router) Typing(ctx context.Context, chatID domain.ChatID, userID string, started bool) {
	chat, err := r.chats.Get(chatID)
	if err != nil || !chat.IsActiveParticipant(userID) {
		return
	}

	var evt event.DomainEvent
	if started {
		evt = event.TypingStarted{ChatID: chatID, UserID: userID}
	} else {
		evt = event.TypingStopped{ChatID: chatID, UserID: userID}
	}
	for _, participantID := range chat.ActiveParticipantIDs() {
		if participantID != userID {
			r.fanoutToUser(ctx, participantID, evt)
		}
	}
}

// History returns a page of the chat's messages for one participant,
// honouring their "clear conversation" cutoff.
func (r *Router) History(cmd domain.GetMessagesCommand) ([]domain.Message, *string, error) {
	chat, err := r.chats.Get(cmd.ChatID)
	if err != nil {
		return nil, nil, err
	}
	if !chat.IsActiveParticipant(cmd.UserID) {
		return nil, nil, fmt.Errorf("%w: user %s in chat %s",
			apperrors.ErrNotParticipant, cmd.UserID, cmd.ChatID)
	}

	cutoff, err := r.counters.GetClearCutoff(cmd.ChatID, cmd.UserID)
	if err != nil {
		return nil, nil, err
	}
	return r.messages.GetMessages(cmd.ChatID, cmd.Cursor, cutoff)
}

// ClearHistory advances the caller's visibility cutoff to now. Data is
// never deleted; other participants keep the full history.
func (r *Router) ClearHistory(chatID domain.ChatID, userID string) error {
	chat, err := r.chats.Get(chatID)
	if err != nil {
		return err
	}
	if !chat.IsActiveParticipant(userID) {
		return fmt.Errorf("%w: user %s in chat %s", apperrors.ErrNotParticipant, userID, chatID)
	}
	return r.counters.SetClearCutoff(chatID, userID, time.Now().UTC())
}

func (r *Router) fanoutToChat(ctx context.Context, chat domain.Chat, evt event.DomainEvent) {
	for _, userID := range chat.ActiveParticipantIDs() {
		r.fanoutToUser(ctx, userID, evt)
	}
}

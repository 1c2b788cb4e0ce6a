package services

import (
	"context"
	"fmt"
	"time"

	"market-live/domain"
	apperrors "market-live/errors"
	"market-live/repositories"
	"market-live/runtime"
)

type IChatService interface {
	CreateDirect(userA, userB string) (domain.Chat, error)
	CreateGroup(owner string, others []string, name string) (domain.Chat, error)
	ListChats(userID string) ([]domain.Chat, error)
	Send(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error)
	History(cmd domain.GetMessagesCommand) ([]domain.Message, *string, error)
	ClearHistory(chatID domain.ChatID, userID string) error
	MarkRead(ctx context.Context, cmd domain.MarkReadCommand) error
	AddParticipant(ctx context.Context, cmd domain.AddParticipantCommand) error
	RemoveParticipant(ctx context.Context, cmd domain.RemoveParticipantCommand) error
	Leave(ctx context.Context, cmd domain.LeaveCommand) error
	Rename(cmd domain.RenameCommand) error
	Typing(ctx context.Context, chatID domain.ChatID, userID string, started bool)
}

// ChatService is the room directory plus a thin facade over the router.
// Chat creation lives here; everything that moves counters goes through
// the router's per-chat serialization.
type ChatService struct {
	chats  repositories.IChatRepository
	router *runtime.Router
}

func NewChatService(chats repositories.IChatRepository, router *runtime.Router) *ChatService {
	return &ChatService{chats: chats, router: router}
}

// CreateDirect is idempotent: repeated "message this user" actions for the
// same pair return the existing chat instead of a duplicate, reopening it
// when one side had previously left.
func (s *ChatService) CreateDirect(userA, userB string) (domain.Chat, error) {
	if userA == userB {
		return domain.Chat{}, fmt.Errorf("%w: cannot open a direct chat with yourself",
			apperrors.ErrPermissionDenied)
	}
	chat, _, err := s.chats.CreateDirect(userA, userB, time.Now().UTC())
	return chat, err
}

// CreateGroup requires at least one participant besides the owner, who is
// assigned the admin role.
func (s *ChatService) CreateGroup(owner string, others []string, name string) (domain.Chat, error) {
	if len(others) == 0 {
		return domain.Chat{}, fmt.Errorf("%w: a group needs at least one participant besides the owner",
			apperrors.ErrPermissionDenied)
	}
	chat := domain.NewGroup(owner, others, name, time.Now().UTC())
	if err := s.chats.CreateGroup(chat); err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

func (s *ChatService) ListChats(userID string) ([]domain.Chat, error) {
	return s.chats.ListForUser(userID)
}

func (s *ChatService) Send(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	return s.router.Send(ctx, cmd)
}

func (s *ChatService) History(cmd domain.GetMessagesCommand) ([]domain.Message, *string, error) {
	return s.router.History(cmd)
}

func (s *ChatService) ClearHistory(chatID domain.ChatID, userID string) error {
	return s.router.ClearHistory(chatID, userID)
}

func (s *ChatService) MarkRead(ctx context.Context, cmd domain.MarkReadCommand) error {
	return s.router.MarkRead(ctx, cmd)
}

func (s *ChatService) AddParticipant(ctx context.Context, cmd domain.AddParticipantCommand) error {
	return s.router.AddParticipant(ctx, cmd)
}

func (s *ChatService) RemoveParticipant(ctx context.Context, cmd domain.RemoveParticipantCommand) error {
	return s.router.RemoveParticipant(ctx, cmd)
}

func (s *ChatService) Leave(ctx context.Context, cmd domain.LeaveCommand) error {
	return s.router.Leave(ctx, cmd)
}

func (s *ChatService) Rename(cmd domain.RenameCommand) error {
	return s.router.Rename(cmd)
}

func (s *ChatService) Typing(ctx context.Context, chatID domain.ChatID, userID string, started bool) {
	s.router.Typing(ctx, chatID, userID, started)
}

package domain

import (
	"time"
)

// Command is the tagged union of chat mutations. Everything that touches a
// chat's unread counters flows through the router's per-chat serialization
// point as one of these.
type Command interface {
	Chat() ChatID
}

type PostMessageCommand struct {
	ChatID    ChatID
	SenderID  string
	Body      string
	CreatedAt time.Time
}

func (c PostMessageCommand) Chat() ChatID { return c.ChatID }

type MarkReadCommand struct {
	ChatID ChatID
	UserID string
}

func (c MarkReadCommand) Chat() ChatID { return c.ChatID }

type AddParticipantCommand struct {
	ChatID  ChatID
	ActorID string
	UserID  string
}

func (c AddParticipantCommand) Chat() ChatID { return c.ChatID }

type RemoveParticipantCommand struct {
	ChatID  ChatID
	ActorID string
	UserID  string
}

func (c RemoveParticipantCommand) Chat() ChatID { return c.ChatID }

type LeaveCommand struct {
	ChatID ChatID
	UserID string
}

func (c LeaveCommand) Chat() ChatID { return c.ChatID }

type RenameCommand struct {
	ChatID  ChatID
	ActorID string
	Name    string
}

func (c RenameCommand) Chat() ChatID { return c.ChatID }

type GetMessagesCommand struct {
	ChatID ChatID
	UserID string
	Cursor *string
}

func (c GetMessagesCommand) Chat() ChatID { return c.ChatID }

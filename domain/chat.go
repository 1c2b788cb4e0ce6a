// Package domain contains core concepts of the live chat subsystem.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatID identifies a messaging thread. Aliased so signatures stay readable
// without forcing conversions at every uuid call site.
type ChatID = uuid.UUID

type ChatType string

const (
	ChatDirect ChatType = "direct"
	ChatGroup  ChatType = "group"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Participant is the single canonical membership model. A participant who
// left keeps their row with IsActive=false so history stays attributable.
type Participant struct {
	UserID   string
	Role     Role
	IsActive bool
	JoinedAt time.Time
	LeftAt   *time.Time
}

// Chat is a direct (exactly 2 active participants) or group (2..N, at least
// one admin) messaging thread. Unread counters live in their own store keyed
// by (chat, user); the chat record never embeds them.
type Chat struct {
	ID            ChatID
	Type          ChatType
	Name          string
	Participants  []Participant
	CreatedAt     time.Time
	LastMessageAt time.Time
}

func NewDirect(userA, userB string, now time.Time) Chat {
	return Chat{
		ID:        uuid.New(),
		Type:      ChatDirect,
		CreatedAt: now,
		Participants: []Participant{
			{UserID: userA, Role: RoleMember, IsActive: true, JoinedAt: now},
			{UserID: userB, Role: RoleMember, IsActive: true, JoinedAt: now},
		},
	}
}

// NewGroup assigns the admin role to the owner. Callers must provide at
// least one other participant.
func NewGroup(owner string, others []string, name string, now time.Time) Chat {
	participants := []Participant{
		{UserID: owner, Role: RoleAdmin, IsActive: true, JoinedAt: now},
	}
	for _, userID := range others {
		participants = append(participants, Participant{
			UserID: userID, Role: RoleMember, IsActive: true, JoinedAt: now,
		})
	}
	return Chat{
		ID:           uuid.New(),
		Type:         ChatGroup,
		Name:         name,
		CreatedAt:    now,
		Participants: participants,
	}
}

// ActiveParticipantIDs returns the users that currently receive messages
// and hold an unread counter entry.
func (c Chat) ActiveParticipantIDs() []string {
	var ids []string
	for _, p := range c.Participants {
		if p.IsActive {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

func (c Chat) IsActiveParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID && p.IsActive {
			return true
		}
	}
	return false
}

func (c Chat) IsAdmin(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID && p.IsActive && p.Role == RoleAdmin {
			return true
		}
	}
	return false
}

// Deactivate marks the participant as gone without removing the row.
// Returns false when the user is not an active participant.
func (c *Chat) Deactivate(userID string, now time.Time) bool {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID && c.Participants[i].IsActive {
			c.Participants[i].IsActive = false
			c.Participants[i].LeftAt = &now
			return true
		}
	}
	return false
}

// Reactivate flips a departed participant back to active with a fresh
// JoinedAt, clearing LeftAt. Returns false when the user has no inactive
// row to revive.
func (c *Chat) Reactivate(userID string, now time.Time) bool {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID && !c.Participants[i].IsActive {
			c.Participants[i].IsActive = true
			c.Participants[i].JoinedAt = now
			c.Participants[i].LeftAt = nil
			return true
		}
	}
	return false
}

// Add appends a new active participant. Rejoining users get a fresh row;
// back-dated messages are never retroactively counted for them.
func (c *Chat) Add(userID string, now time.Time) {
	c.Participants = append(c.Participants, Participant{
		UserID: userID, Role: RoleMember, IsActive: true, JoinedAt: now,
	})
}

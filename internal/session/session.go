package session

import (
	"context"
	"sort"
	"time"
)

// ChatSession is an ordered dialogue plus its model and system prompt.
// The message slice is the canonical truth; persistence layers mirror it.
type ChatSession struct {
	OwnerID      int64
	Name         string
	Model        string
	SystemPrompt string
	Messages     []ChatMessage
}

// New builds a session and injects the system prompt when one is given.
func New(ownerID int64, name, model, systemPrompt string) *ChatSession {
	s := &ChatSession{OwnerID: ownerID, Name: name, Model: model}
	s.SetSystemPrompt(systemPrompt)
	return s
}

// TemporaryName is the session name used for ad-hoc conversations
// reconstructed from a channel's recent history.
func TemporaryName(channelID string) string {
	return "Temp-" + channelID
}

// NewTemporarySession builds the throwaway session for a channel without
// an active one, seeded with recent channel history. The trigger message
// is not part of history; the caller appends it separately.
func NewTemporarySession(channelID string, adminID int64, model, systemPrompt string, history []ChatMessage) *ChatSession {
	s := New(adminID, TemporaryName(channelID), model, systemPrompt)
	for _, msg := range history {
		s.Append(msg)
	}
	return s
}

// SetSystemPrompt replaces the session's system prompt. Any prior
// synthetic system message is dropped; a non-empty prompt inserts a
// fresh one at position zero. Calling twice with the same prompt leaves
// the message list unchanged.
func (s *ChatSession) SetSystemPrompt(prompt string) {
	kept := s.Messages[:0]
	for _, m := range s.Messages {
		if !m.Synthetic() {
			kept = append(kept, m)
		}
	}
	s.Messages = kept
	s.SystemPrompt = prompt
	if prompt == "" {
		return
	}
	s.Messages = append([]ChatMessage{{
		ID:             SyntheticID,
		OwnerID:        s.OwnerID,
		SenderID:       SyntheticID,
		SenderNickname: "System",
		SessionName:    s.Name,
		Timestamp:      time.Time{},
		Role:           RoleSystem,
		Content:        prompt,
	}}, s.Messages...)
}

// Append adds a message and keeps the list ordered by timestamp. The
// synthetic system message sorts first through its zero timestamp; ties
// keep insertion order.
func (s *ChatSession) Append(msg ChatMessage) {
	msg.OwnerID = s.OwnerID
	msg.SessionName = s.Name
	s.Messages = append(s.Messages, msg)
	sort.SliceStable(s.Messages, func(i, j int) bool {
		return s.Messages[i].Timestamp.Before(s.Messages[j].Timestamp)
	})
}

// TokenTotal estimates the token footprint of the whole dialogue.
func (s *ChatSession) TokenTotal(counter TokenCounter) int {
	total := 0
	for _, m := range s.Messages {
		total += m.TokenLength(counter)
	}
	return total
}

// Conversation abstracts the two session flavors the respond path works
// with: throwaway in-memory sessions and store-backed ones where every
// mutation persists synchronously.
type Conversation interface {
	Session() *ChatSession
	Append(ctx context.Context, msg ChatMessage) error
}

type memoryConversation struct {
	s *ChatSession
}

// NewTemporary wraps an in-memory session; mutations live only for the
// duration of the response.
func NewTemporary(s *ChatSession) Conversation {
	return memoryConversation{s: s}
}

func (c memoryConversation) Session() *ChatSession { return c.s }

func (c memoryConversation) Append(ctx context.Context, msg ChatMessage) error {
	c.s.Append(msg)
	return nil
}

type storedConversation struct {
	s     *ChatSession
	store *Store
}

// NewStored wraps a store-backed session; appends write through.
func NewStored(s *ChatSession, store *Store) Conversation {
	return storedConversation{s: s, store: store}
}

func (c storedConversation) Session() *ChatSession { return c.s }

func (c storedConversation) Append(ctx context.Context, msg ChatMessage) error {
	c.s.Append(msg)
	return c.store.SyncMessages(ctx, c.s)
}

package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// TimestampLayout is the storage format for message timestamps. The
// fractional part is fixed-width so lexicographic order on the stored
// text matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// SyntheticID marks the system-prompt message injected at position zero
// of a session. Platform message ids are always positive.
const SyntheticID = -1

// ChatMessage is a single dialogue turn, scoped to its owning session.
type ChatMessage struct {
	ID             int64
	OwnerID        int64
	SenderID       int64
	SenderNickname string
	SessionName    string
	Timestamp      time.Time
	Role           Role
	Content        string
}

// TokenCounter counts model tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// String renders the message the way the model sees it, with the sender
// name on its own line.
func (m ChatMessage) String() string {
	return fmt.Sprintf("@%s:\n%s", m.SenderNickname, m.Content)
}

// TokenLength returns the token count of the rendered message.
func (m ChatMessage) TokenLength(counter TokenCounter) int {
	return counter.Count(m.String())
}

// Synthetic reports whether this is the injected system-prompt message.
func (m ChatMessage) Synthetic() bool {
	return m.ID == SyntheticID
}

// Mention is a user mention carried alongside platform message content.
type Mention struct {
	ID   int64
	Name string
}

// RewriteMentions replaces every bare <@id> token with <@name (UID: id)>
// so the model sees names instead of opaque ids. Nickname-style <@!id>
// tokens are folded into the bare form first. Applying the rewrite twice
// is a no-op: the substituted form contains no bare mention token.
func RewriteMentions(text string, mentions []Mention) string {
	for _, m := range mentions {
		id := strconv.FormatInt(m.ID, 10)
		text = strings.ReplaceAll(text, "<@!"+id+">", "<@"+id+">")
		text = strings.ReplaceAll(text, "<@"+id+">", fmt.Sprintf("<@%s (UID: %s)>", m.Name, id))
	}
	return text
}

// FromDiscord converts a platform message into a ChatMessage, rewriting
// mentions at capture time.
func FromDiscord(m *discordgo.Message, role Role, sessionName string, ownerID int64) (ChatMessage, error) {
	id, err := strconv.ParseInt(m.ID, 10, 64)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("parse message id %q: %w", m.ID, err)
	}
	senderID, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("parse author id %q: %w", m.Author.ID, err)
	}

	mentions := make([]Mention, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		uid, err := strconv.ParseInt(u.ID, 10, 64)
		if err != nil {
			continue
		}
		mentions = append(mentions, Mention{ID: uid, Name: displayName(u, nil)})
	}

	return ChatMessage{
		ID:             id,
		OwnerID:        ownerID,
		SenderID:       senderID,
		SenderNickname: displayName(m.Author, m.Member),
		SessionName:    sessionName,
		Timestamp:      m.Timestamp.UTC(),
		Role:           role,
		Content:        RewriteMentions(m.Content, mentions),
	}, nil
}

// displayName picks the most specific name available, mirroring what
// users see in the client.
func displayName(u *discordgo.User, member *discordgo.Member) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

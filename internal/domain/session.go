package domain

import (
	"strings"
	"time"
)

// PartitionKeyLayout is the date bucket format used for new sessions.
const PartitionKeyLayout = "20060102"

// Session is a conversation identified by SessionID. PartitionKey is a date
// bucket assigned when the session is first created.
type Session struct {
	SessionID     string `json:"sessionId"`
	PartitionKey  string `json:"pk"`
	Turns         []Turn `json:"context"`
	PendingPrompt string `json:"promo"`
}

// PartitionKeyFor returns the date bucket for t.
func PartitionKeyFor(t time.Time) string {
	return t.UTC().Format(PartitionKeyLayout)
}

// MergeSession combines a stored session (nil when none was found) with the
// incoming request values. A stored session keeps its own identity and the
// incoming turns are appended after its turns. Without a stored session the
// incoming identity is used, falling back to newID and a bucket for now.
func MergeSession(existing *Session, incoming Session, now time.Time, newID func() string) Session {
	if existing != nil {
		turns := make([]Turn, 0, len(existing.Turns)+len(incoming.Turns))
		turns = append(turns, existing.Turns...)
		turns = append(turns, incoming.Turns...)
		return Session{
			SessionID:     existing.SessionID,
			PartitionKey:  existing.PartitionKey,
			Turns:         turns,
			PendingPrompt: incoming.PendingPrompt,
		}
	}

	out := Session{
		SessionID:     strings.TrimSpace(incoming.SessionID),
		PartitionKey:  strings.TrimSpace(incoming.PartitionKey),
		Turns:         append([]Turn(nil), incoming.Turns...),
		PendingPrompt: incoming.PendingPrompt,
	}
	if out.SessionID == "" {
		out.SessionID = newID()
	}
	if out.PartitionKey == "" {
		out.PartitionKey = PartitionKeyFor(now)
	}
	if out.Turns == nil {
		out.Turns = []Turn{}
	}
	return out
}

// AppendTurn adds a turn unless its content is blank. It reports whether the
// turn was added.
func (s *Session) AppendTurn(role Role, content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	s.Turns = append(s.Turns, Turn{Role: role, Content: content})
	return true
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	s.Turns = append([]Turn(nil), s.Turns...)
	return s
}

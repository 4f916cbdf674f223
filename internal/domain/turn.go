package domain

import (
	"fmt"
	"unicode/utf8"
)

// Role tags a conversation turn with its author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole validates a raw role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	default:
		return "", fmt.Errorf("domain: unknown role %q", s)
	}
}

// Turn is one message in a conversation. It is also the provider-agnostic chat
// message shape sent to the completion API.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ContentLength sums the content length of every turn in characters (runes),
// not bytes.
func ContentLength(turns []Turn) int {
	n := 0
	for _, t := range turns {
		n += utf8.RuneCountInString(t.Content)
	}
	return n
}

package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"chat-gateway/internal/domain"
)

type rawTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ParseContext decodes the "context" request field into turns.
//
// The field is usually a JSON string whose content is itself a JSON array of
// {role, content} objects. A bare JSON array is accepted as well. Absent, null
// or empty values yield no turns. Any other decoded value becomes a single
// system turn: strings verbatim, everything else as its trimmed JSON text.
func ParseContext(raw json.RawMessage) ([]domain.Turn, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []domain.Turn{}, nil
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("usecase: decode context string: %w", err)
		}
		encoded = strings.TrimSpace(encoded)
		if encoded == "" {
			return []domain.Turn{}, nil
		}
		raw = json.RawMessage(encoded)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("usecase: decode context: %w", err)
	}
	if _, ok := value.([]any); !ok {
		return []domain.Turn{{Role: domain.RoleSystem, Content: stringify(value, raw)}}, nil
	}

	var items []rawTurn
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("usecase: decode context turns: %w", err)
	}
	turns := make([]domain.Turn, 0, len(items))
	for i, item := range items {
		role, err := domain.ParseRole(item.Role)
		if err != nil {
			return nil, fmt.Errorf("usecase: context turn %d: %w", i, err)
		}
		turns = append(turns, domain.Turn{Role: role, Content: item.Content})
	}
	return turns, nil
}

func stringify(value any, raw json.RawMessage) string {
	if s, ok := value.(string); ok {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// EncodeContext is the inverse of ParseContext for the string-encoded form.
func EncodeContext(turns []domain.Turn) (json.RawMessage, error) {
	if turns == nil {
		turns = []domain.Turn{}
	}
	inner, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("usecase: encode context: %w", err)
	}
	outer, err := json.Marshal(string(inner))
	if err != nil {
		return nil, fmt.Errorf("usecase: encode context: %w", err)
	}
	return outer, nil
}

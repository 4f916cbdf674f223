package usecase

import (
	"context"
	"strings"

	"chat-gateway/internal/domain"
	"chat-gateway/internal/logging"
)

func (s *ChatService) needsCompaction(turns []domain.Turn) bool {
	return len(turns) > s.cfg.CompactMaxTurns || domain.ContentLength(turns) > s.cfg.CompactMaxChars
}

// compact replaces the session history with a single summary turn. On failure
// the session is left untouched and the error is only logged.
func (s *ChatService) compact(ctx context.Context, session *domain.Session) bool {
	log := logging.FromContext(ctx)
	log.Info("compacting session",
		"sessionId", session.SessionID,
		"turns", len(session.Turns),
		"contentLength", domain.ContentLength(session.Turns))

	request := append(session.Clone().Turns, domain.Turn{Role: domain.RoleUser, Content: summaryInstruction})

	summary, err := s.llm.Generate(ctx, request)
	if err != nil {
		log.Warn("compaction failed; keeping full history",
			"sessionId", session.SessionID, "category", upstreamCategory(err), "err", err)
		return false
	}
	if strings.TrimSpace(summary) == "" {
		log.Warn("compaction returned an empty summary; keeping full history", "sessionId", session.SessionID)
		return false
	}
	session.Turns = []domain.Turn{{Role: domain.RoleAssistant, Content: summary}}
	return true
}

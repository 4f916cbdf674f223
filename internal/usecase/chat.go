package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-gateway/internal/domain"
	"chat-gateway/internal/logging"
)

const (
	defaultCompactMaxTurns = 10
	defaultCompactMaxChars = 10000
	summaryInstruction     = "Summary this chat."
)

type QuotaLedger interface {
	CheckAndConsume(ctx context.Context, userID string) (domain.QuotaState, error)
	Initialize(ctx context.Context, userID string, allowance int) error
}

type UserDirectory interface {
	GetOrCreate(ctx context.Context, userID string) (domain.User, error)
}

type SessionStore interface {
	FindSession(ctx context.Context, sessionID string) (domain.Session, bool, error)
	SaveSession(ctx context.Context, session domain.Session) error
}

type CompletionClient interface {
	Generate(ctx context.Context, turns []domain.Turn) (string, error)
}

// categorizer is implemented by completion errors that carry a failure category.
type categorizer interface {
	ErrorCategory() string
}

// statusCoder is implemented by completion errors that saw an HTTP response.
type statusCoder interface {
	HTTPStatusCode() int
}

type ChatConfig struct {
	// CompactMaxTurns and CompactMaxChars are exclusive upper bounds; a
	// session above either one is summarized after the reply.
	CompactMaxTurns int
	CompactMaxChars int
}

type ChatService struct {
	quota    QuotaLedger
	users    UserDirectory
	sessions SessionStore
	llm      CompletionClient
	cfg      ChatConfig
	now      func() time.Time
}

type ChatInput struct {
	UserID       string
	SessionID    string
	PartitionKey string
	Context      json.RawMessage
	Prompt       string
}

type ChatOutput struct {
	Reply     string
	Session   domain.Session
	Compacted bool
}

func NewChatService(q QuotaLedger, u UserDirectory, s SessionStore, llm CompletionClient, cfg ChatConfig) (*ChatService, error) {
	if q == nil {
		return nil, errors.New("usecase: quota ledger must not be nil")
	}
	if u == nil {
		return nil, errors.New("usecase: user directory must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: completion client must not be nil")
	}
	if cfg.CompactMaxTurns <= 0 {
		cfg.CompactMaxTurns = defaultCompactMaxTurns
	}
	if cfg.CompactMaxChars <= 0 {
		cfg.CompactMaxChars = defaultCompactMaxChars
	}
	return &ChatService{
		quota:    q,
		users:    u,
		sessions: s,
		llm:      llm,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Chat runs one orchestration cycle: admission, merge, completion, compaction
// and persistence. The session is written only when the primary completion
// succeeded.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return ChatOutput{}, newError(ErrorUnauthorized, "missing_identity", nil)
	}
	incoming, err := ParseContext(in.Context)
	if err != nil {
		return ChatOutput{}, newError(ErrorInvalidInput, "invalid_context", err)
	}
	if strings.TrimSpace(in.Prompt) == "" && len(incoming) == 0 {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_prompt", nil)
	}

	if err := s.admit(ctx, userID); err != nil {
		return ChatOutput{}, err
	}

	log := logging.FromContext(ctx)

	var existing *domain.Session
	if sessionID := strings.TrimSpace(in.SessionID); sessionID != "" {
		stored, found, err := s.sessions.FindSession(ctx, sessionID)
		if err != nil {
			return ChatOutput{}, newError(ErrorInternal, "session_read_error", err)
		}
		if found {
			existing = &stored
		}
	}

	session := domain.MergeSession(existing, domain.Session{
		SessionID:     in.SessionID,
		PartitionKey:  in.PartitionKey,
		Turns:         incoming,
		PendingPrompt: in.Prompt,
	}, s.now(), newUUID)
	session.AppendTurn(domain.RoleUser, session.PendingPrompt)

	reply, err := s.llm.Generate(ctx, session.Turns)
	if err != nil {
		category := upstreamCategory(err)
		attrs := []any{"sessionId", session.SessionID, "category", category, "err", err}
		if status, ok := upstreamStatusCode(err); ok {
			attrs = append(attrs, "upstreamStatus", status)
		}
		log.Error("completion failed", attrs...)
		return ChatOutput{}, newError(ErrorUpstream, category, err)
	}
	session.AppendTurn(domain.RoleAssistant, reply)

	compacted := false
	if s.needsCompaction(session.Turns) {
		compacted = s.compact(ctx, &session)
	}

	if err := s.sessions.SaveSession(ctx, session); err != nil {
		log.Error("session write failed; generated reply is lost",
			"sessionId", session.SessionID, "replyLength", len(reply), "err", err)
		return ChatOutput{}, newError(ErrorInternal, "store_write_error", err)
	}

	return ChatOutput{
		Reply:     reply,
		Session:   session,
		Compacted: compacted,
	}, nil
}

func upstreamCategory(err error) string {
	var c categorizer
	if errors.As(err, &c) {
		return c.ErrorCategory()
	}
	return "Unknown"
}

func upstreamStatusCode(err error) (int, bool) {
	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatusCode() != 0 {
		return sc.HTTPStatusCode(), true
	}
	return 0, false
}

var newUUID = func() string {
	return uuid.NewString()
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-gateway/internal/domain"
	"chat-gateway/internal/integrations/openai"
	"chat-gateway/internal/logging"
	"chat-gateway/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// Chatter runs one chat orchestration cycle.
type Chatter interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type Options struct {
	// AllowedOrigin is sent as Access-Control-Allow-Origin. Empty means "*".
	AllowedOrigin string
	// StrictStatusCodes reports quota and completion failures with 4xx/5xx
	// statuses instead of 200 with code -1.
	StrictStatusCodes bool
	// Model and APIVersion are echoed by the ?version= diagnostic.
	Model      string
	APIVersion string
	Logger     *slog.Logger
}

type Handler struct {
	svc  Chatter
	opts Options
}

type chatRequest struct {
	PK        string          `json:"pk,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Context   json.RawMessage `json:"context,omitempty"`
	Promo     string          `json:"promo"`
}

// envelope is the response body shared with existing clients: code 0 on
// success, -1 on failure.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data"`
}

func NewHandler(svc Chatter, opts Options) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: chat service must not be nil")
	}
	if strings.TrimSpace(opts.AllowedOrigin) == "" {
		opts.AllowedOrigin = "*"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{svc: svc, opts: opts}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.opts.Logger.With("correlationId", correlationID)
	ctx = logging.NewContext(ctx, log)

	switch {
	case req.HTTPMethod == http.MethodOptions:
		return h.respond(correlationID, http.StatusNoContent, "", ""), nil
	case req.QueryStringParameters["version"] != "":
		name := req.QueryStringParameters["version"]
		body := fmt.Sprintf("Hello, %s. Model: %s, apiversion: %s.", name, h.opts.Model, h.opts.APIVersion)
		return h.respond(correlationID, http.StatusOK, "text/plain; charset=utf-8", body), nil
	case req.HTTPMethod != http.MethodPost:
		return h.fail(correlationID, http.StatusMethodNotAllowed, usecase.ErrorInvalidInput, "method not allowed", nil), nil
	}

	userID, err := resolveIdentity(req)
	if err != nil {
		log.Warn("identity not resolved", "err", err)
		return h.fail(correlationID, http.StatusUnauthorized, usecase.ErrorUnauthorized, "caller identity could not be resolved", nil), nil
	}
	log = log.With("user", userID)
	ctx = logging.NewContext(ctx, log)

	var body chatRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return h.fail(correlationID, http.StatusBadRequest, usecase.ErrorInvalidInput, "Input is not valid", nil), nil
	}

	out, err := h.svc.Chat(ctx, usecase.ChatInput{
		UserID:       userID,
		SessionID:    body.SessionID,
		PartitionKey: body.PK,
		Context:      body.Context,
		Prompt:       body.Promo,
	})
	if err != nil {
		status, code, msg := h.mapError(err, userID)
		if status >= http.StatusInternalServerError {
			log.Error("chat failed", "err", err)
		} else {
			log.Info("chat rejected", "code", code, "err", err)
		}
		return h.fail(correlationID, status, code, msg, body), nil
	}

	log.Info("chat completed", "sessionId", out.Session.SessionID, "turns", len(out.Session.Turns), "compacted", out.Compacted)
	return h.writeJSON(correlationID, http.StatusOK, envelope{
		Code:    0,
		Message: out.Reply,
		Data:    sessionView(out.Session),
	}), nil
}

// sessionView keeps "context" an array even for an empty history.
func sessionView(s domain.Session) domain.Session {
	if s.Turns == nil {
		s.Turns = []domain.Turn{}
	}
	return s
}

func (h *Handler) mapError(err error, userID string) (int, usecase.ErrorCode, string) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, usecase.ErrorInternal, "internal error"
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, ucErr.Code, "invalid input: " + ucErr.Reason
	case usecase.ErrorUnauthorized:
		return http.StatusUnauthorized, ucErr.Code, "caller identity could not be resolved"
	case usecase.ErrorQuotaExceeded:
		msg := fmt.Sprintf("API quota for user %s is exceeded, please contact admin.", userID)
		if h.opts.StrictStatusCodes {
			return http.StatusTooManyRequests, ucErr.Code, msg
		}
		return http.StatusOK, ucErr.Code, msg
	case usecase.ErrorUpstream:
		msg := "completion service error: " + ucErr.Reason
		if !h.opts.StrictStatusCodes {
			return http.StatusOK, ucErr.Code, msg
		}
		switch openai.Category(ucErr.Reason) {
		case openai.CategoryRateLimited:
			return http.StatusTooManyRequests, ucErr.Code, msg
		case openai.CategoryTimeout:
			return http.StatusGatewayTimeout, ucErr.Code, msg
		default:
			return http.StatusBadGateway, ucErr.Code, msg
		}
	default:
		return http.StatusInternalServerError, usecase.ErrorInternal, "internal error"
	}
}

func (h *Handler) fail(correlationID string, status int, code usecase.ErrorCode, msg string, data any) events.APIGatewayProxyResponse {
	return h.writeJSON(correlationID, status, envelope{
		Code:    -1,
		Message: msg,
		Error:   string(code),
		Data:    data,
	})
}

func (h *Handler) writeJSON(correlationID string, status int, v envelope) events.APIGatewayProxyResponse {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "err", err)
		return h.respond(correlationID, http.StatusInternalServerError, "application/json",
			`{"code":-1,"message":"internal error","error":"INTERNAL_ERROR","data":null}`)
	}
	return h.respond(correlationID, status, "application/json", string(b))
}

func (h *Handler) respond(correlationID string, status int, contentType, body string) events.APIGatewayProxyResponse {
	headers := map[string]string{
		correlationHeader:              correlationID,
		"Access-Control-Allow-Origin":  h.opts.AllowedOrigin,
		"Access-Control-Allow-Methods": "POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, Authorization, X-MS-CLIENT-PRINCIPAL, X-Correlation-Id",
	}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       body,
	}
}

// headerValue looks up a header case-insensitively.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

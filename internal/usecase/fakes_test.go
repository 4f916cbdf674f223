package usecase

import (
	"context"
	"errors"
	"sync"

	"chat-gateway/internal/domain"
)

// fakeLedger emulates an atomic counter store in memory.
type fakeLedger struct {
	mu          sync.Mutex
	remaining   map[string]int
	checkErr    error
	initErr     error
	forceState  []domain.QuotaState
	checkCalls  int
	initCalls   int
	initApplied int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{remaining: map[string]int{}}
}

func (f *fakeLedger) CheckAndConsume(_ context.Context, userID string) (domain.QuotaState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls++
	if f.checkErr != nil {
		return 0, f.checkErr
	}
	if len(f.forceState) > 0 {
		st := f.forceState[0]
		f.forceState = f.forceState[1:]
		return st, nil
	}
	left, ok := f.remaining[userID]
	if !ok {
		return domain.QuotaNotExist, nil
	}
	if left-1 < 0 {
		return domain.QuotaExceeded, nil
	}
	f.remaining[userID] = left - 1
	return domain.QuotaOK, nil
}

func (f *fakeLedger) Initialize(_ context.Context, userID string, allowance int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if f.initErr != nil {
		return f.initErr
	}
	if _, ok := f.remaining[userID]; ok {
		return domain.ErrQuotaAlreadyInitialized
	}
	f.remaining[userID] = allowance
	f.initApplied++
	return nil
}

func (f *fakeLedger) left(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining[userID]
}

type fakeUsers struct {
	mu      sync.Mutex
	users   map[string]domain.User
	quota   int
	err     error
	created int
}

func newFakeUsers(quota int) *fakeUsers {
	return &fakeUsers{users: map[string]domain.User{}, quota: quota}
}

func (f *fakeUsers) GetOrCreate(_ context.Context, userID string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.User{}, f.err
	}
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	u := domain.User{Email: userID, DailyQuota: f.quota}
	f.users[userID] = u
	f.created++
	return u, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	stored   map[string]domain.Session
	findErr  error
	saveErr  error
	saved    []domain.Session
	findArgs []string
}

func newFakeSessions(seed ...domain.Session) *fakeSessions {
	f := &fakeSessions{stored: map[string]domain.Session{}}
	for _, s := range seed {
		f.stored[s.SessionID] = s.Clone()
	}
	return f
}

func (f *fakeSessions) FindSession(_ context.Context, sessionID string) (domain.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findArgs = append(f.findArgs, sessionID)
	if f.findErr != nil {
		return domain.Session{}, false, f.findErr
	}
	s, ok := f.stored[sessionID]
	return s.Clone(), ok, nil
}

func (f *fakeSessions) SaveSession(_ context.Context, s domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, s.Clone())
	f.stored[s.SessionID] = s.Clone()
	return nil
}

type llmResponse struct {
	reply string
	err   error
}

// scriptedLLM replays responses in order, repeating the last one, and records
// a copy of every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []llmResponse
	requests  [][]domain.Turn
}

func replies(rs ...string) *scriptedLLM {
	l := &scriptedLLM{}
	for _, r := range rs {
		l.responses = append(l.responses, llmResponse{reply: r})
	}
	return l
}

func (l *scriptedLLM) Generate(_ context.Context, turns []domain.Turn) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, append([]domain.Turn(nil), turns...))
	if len(l.responses) == 0 {
		return "", errors.New("no llm response configured")
	}
	idx := len(l.requests) - 1
	if idx >= len(l.responses) {
		idx = len(l.responses) - 1
	}
	return l.responses[idx].reply, l.responses[idx].err
}

func (l *scriptedLLM) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

type categorizedErr struct{ category string }

func (e *categorizedErr) Error() string         { return "upstream failed: " + e.category }
func (e *categorizedErr) ErrorCategory() string { return e.category }

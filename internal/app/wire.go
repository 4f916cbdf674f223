// Package app assembles the chat service and its backends from a Config. It is
// shared by the Lambda entrypoint and the chatctl CLI.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"chat-gateway/internal/cache"
	"chat-gateway/internal/config"
	"chat-gateway/internal/domain"
	"chat-gateway/internal/integrations/openai"
	"chat-gateway/internal/integrations/paramstore"
	"chat-gateway/internal/repository"
	"chat-gateway/internal/repository/sqlite"
	"chat-gateway/internal/usecase"
)

// SessionBrowser is a session store that can also list a date bucket.
type SessionBrowser interface {
	usecase.SessionStore
	ListSessions(ctx context.Context, partitionKey string, limit int) ([]domain.Session, error)
}

// QuotaInspector is a quota ledger that can report the live allowance.
type QuotaInspector interface {
	usecase.QuotaLedger
	Remaining(ctx context.Context, userID string) (int, time.Time, bool, error)
}

type sessionAndUserStore interface {
	SessionBrowser
	usecase.UserDirectory
}

// App holds the wired service plus the stores operators inspect directly.
type App struct {
	Config   config.Config
	Chat     *usecase.ChatService
	Sessions SessionBrowser
	Users    usecase.UserDirectory
	Quota    QuotaInspector
	Model    string

	closers []func() error
}

// modelParameterSuffix names an optional SSM parameter overriding the model.
const modelParameterSuffix = "/config/openai_model"

var loadAWSConfig = func(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

// Build wires every dependency named by cfg. Close releases connections.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg}

	var (
		awsCfg    aws.Config
		awsLoaded bool
	)
	awsConfig := func() (aws.Config, error) {
		if awsLoaded {
			return awsCfg, nil
		}
		c, err := loadAWSConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("app: load AWS config: %w", err)
		}
		awsCfg, awsLoaded = c, true
		return awsCfg, nil
	}

	var (
		dynamo *repository.Client
		lite   *sqlite.Store
	)
	if cfg.StoreBackend == config.BackendDynamoDB || cfg.QuotaBackend == config.BackendDynamoDB {
		ac, err := awsConfig()
		if err != nil {
			return nil, err
		}
		dynamo, err = repository.New(awsdynamodb.NewFromConfig(ac), cfg.SessionTable,
			repository.WithDefaultDailyQuota(cfg.DefaultDailyQuota))
		if err != nil {
			return nil, fmt.Errorf("app: create dynamodb repository: %w", err)
		}
	}
	if cfg.StoreBackend == config.BackendSQLite || cfg.QuotaBackend == config.BackendSQLite {
		s, err := sqlite.Open(cfg.SQLitePath, sqlite.WithDefaultDailyQuota(cfg.DefaultDailyQuota))
		if err != nil {
			return nil, fmt.Errorf("app: open sqlite store: %w", err)
		}
		lite = s
		a.closers = append(a.closers, s.Close)
	}

	var store sessionAndUserStore = dynamo
	if cfg.StoreBackend == config.BackendSQLite {
		store = lite
	}
	a.Sessions = store
	a.Users = store

	switch cfg.QuotaBackend {
	case config.BackendDynamoDB:
		a.Quota = dynamo
	case config.BackendSQLite:
		a.Quota = lite
	case config.BackendRedis:
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb := redis.NewClient(opts)
		a.closers = append(a.closers, rdb.Close)
		ledger, err := cache.NewLedger(rdb)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app: create redis ledger: %w", err)
		}
		a.Quota = ledger
	}

	llm, err := buildCompletionClient(ctx, cfg, awsConfig)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Model = llm.Model()

	a.Chat, err = usecase.NewChatService(a.Quota, a.Users, a.Sessions, llm, usecase.ChatConfig{
		CompactMaxTurns: cfg.CompactMaxTurns,
		CompactMaxChars: cfg.CompactMaxChars,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: create chat service: %w", err)
	}
	return a, nil
}

func buildCompletionClient(ctx context.Context, cfg config.Config, awsConfig func() (aws.Config, error)) (*openai.Client, error) {
	model := cfg.OpenAIModel
	opts := []openai.Option{
		openai.WithHTTPClient(&http.Client{Timeout: cfg.OpenAITimeout}),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	if cfg.OpenAIAPIType == config.APITypeAzure {
		opts = append(opts, openai.WithAzure(cfg.OpenAIAPIVersion))
	}

	if cfg.OpenAIAPIKey != "" {
		opts = append(opts, openai.WithAPIKey(cfg.OpenAIAPIKey))
	} else {
		ac, err := awsConfig()
		if err != nil {
			return nil, err
		}
		params, err := paramstore.New(awsssm.NewFromConfig(ac))
		if err != nil {
			return nil, fmt.Errorf("app: create SSM client: %w", err)
		}
		opts = append(opts, openai.WithParamStore(params, cfg.ParamPrefix))
		model = resolveModel(ctx, params, cfg.ParamPrefix, model)
	}

	c, err := openai.NewClient(model, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: create completion client: %w", err)
	}
	return c, nil
}

type parameterBatch interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

// resolveModel prefers a model stored under the parameter prefix. Lookup
// failures keep the configured model.
func resolveModel(ctx context.Context, params parameterBatch, prefix, fallback string) string {
	name := prefix + modelParameterSuffix
	values, err := params.GetParameters(ctx, name)
	if err != nil {
		slog.Warn("model parameter lookup failed; using configured model", "name", name, "err", err)
		return fallback
	}
	if m, ok := values[name]; ok && m != "" {
		return m
	}
	return fallback
}

// Close releases every connection opened by Build.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

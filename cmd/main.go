package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"chat-gateway/handler"
	"chat-gateway/internal/app"
	"chat-gateway/internal/config"
	"chat-gateway/internal/logging"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(nil)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	// ---- Clients and service ----
	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to wire chat service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(a.Chat, handler.Options{
		AllowedOrigin:     cfg.CORSAllowedOrigin,
		StrictStatusCodes: cfg.StrictStatusCodes,
		Model:             a.Model,
		APIVersion:        cfg.OpenAIAPIVersion,
		Logger:            logger,
	})
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	slog.Info("chat gateway ready", "store", cfg.StoreBackend, "quota", cfg.QuotaBackend, "model", a.Model)
	lambda.Start(h.Handle)
}

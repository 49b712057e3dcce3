package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/comigor/guest-assistant/internal/booking"
	"github.com/comigor/guest-assistant/internal/concierge"
	"github.com/comigor/guest-assistant/internal/config"
	"github.com/comigor/guest-assistant/internal/llm"
	"github.com/comigor/guest-assistant/internal/logger"
)

func main() {
	fs := pflag.NewFlagSet("concierge", pflag.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	// Load configuration
	cfg, err := config.Load(fs)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	bookings, err := booking.Load(cfg.Concierge.BookingsPath)
	if err != nil {
		logger.L.Error("failed to load bookings", "error", err)
		os.Exit(1)
	}
	guides, err := concierge.LoadGuides(cfg.Concierge.GuidesDir)
	if err != nil {
		logger.L.Error("failed to load guest guides", "error", err)
		os.Exit(1)
	}

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		logger.L.Error("failed to initialize LLM client", "error", err)
		os.Exit(1)
	}

	if err := guides.Embed(context.Background(), llmClient, cfg.LLM.EmbeddingModel); err != nil {
		logger.L.Warn("guide embeddings unavailable; using keyword search", "error", err)
	}

	tools := concierge.NewRegistry(concierge.NewUserInfoTool(bookings), concierge.NewSearchInfoTool(guides))
	agent := concierge.NewAgent(llmClient, cfg.LLM, tools)
	srv := concierge.NewServer(agent, bookings, cfg.Server)

	addr := cfg.Server.Addr()
	logger.L.Info("starting server", "address", addr, "bookings", bookings.Len(), "passages", guides.Len())
	if err := srv.Router().Run(addr); err != nil {
		logger.L.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

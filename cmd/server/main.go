package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/ai-game-oneday/ai-game-oneday-server/internal/api"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/comfy"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/config"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/db"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/enhance"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/history"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/rembg"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/workflow"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using process environment")
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	workflows, err := loadWorkflows(cfg)
	if err != nil {
		slog.Error("workflow error", "err", err)
		os.Exit(1)
	}
	if err := workflows.Validate(); err != nil {
		slog.Warn("workflow template shape mismatch", "err", err)
	}

	var engineOpts []comfy.Option
	if len(cfg.Workflow.SaveNodes) > 0 {
		engineOpts = append(engineOpts, comfy.WithSaveNodes(cfg.Workflow.SaveNodes...))
	}
	engine := comfy.NewClient(cfg.Engine.Address, engineOpts...)
	slog.Info("engine client ready", "address", cfg.Engine.Address, "client_id", engine.ClientID())

	enhancer, err := loadEnhancer(cfg)
	if err != nil {
		slog.Error("enhancer error", "err", err)
		os.Exit(1)
	}

	timeout := time.Duration(cfg.Engine.TimeoutSeconds) * time.Second
	srv := api.NewServer(cfg.Auth.APISecretKey, timeout, workflows, engine, enhancer)
	srv.SetHistory(loadHistory(cfg))
	if cfg.Rembg.URL != "" {
		srv.SetRembg(rembg.New(cfg.Rembg.URL))
		slog.Info("background removal enabled", "url", cfg.Rembg.URL)
	}

	stopMonitor := startHealthMonitor(engine, cfg.Engine.HealthInterval)
	defer stopMonitor()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("starting image generation server", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func loadWorkflows(cfg *config.Config) (*workflow.Manager, error) {
	var opts []workflow.Option
	if cfg.Workflow.PromptNode != 0 {
		opts = append(opts, workflow.WithNodeIDs(workflow.NodeIDs{
			Prompt: cfg.Workflow.PromptNode,
			Width:  cfg.Workflow.WidthNode,
			Height: cfg.Workflow.HeightNode,
			Switch: cfg.Workflow.SwitchNode,
		}))
	}
	if len(cfg.Workflow.RequiredNodes) > 0 {
		opts = append(opts, workflow.WithRequiredNodes(cfg.Workflow.RequiredNodes...))
	}
	return workflow.Load(cfg.Workflow.Path, opts...)
}

func loadEnhancer(cfg *config.Config) (enhance.Enhancer, error) {
	enhancerPrompt, err := os.ReadFile(cfg.Gemini.EnhancerPromptPath)
	if err != nil {
		return nil, fmt.Errorf("reading enhancer prompt: %w", err)
	}
	reactionPrompt, err := os.ReadFile(cfg.Gemini.ReactionPromptPath)
	if err != nil {
		return nil, fmt.Errorf("reading reaction prompt: %w", err)
	}
	return enhance.NewGemini(
		cfg.Gemini.APIKey,
		string(enhancerPrompt),
		string(reactionPrompt),
		enhance.WithModel(cfg.Gemini.Model),
		enhance.WithMaxTokens(cfg.Gemini.MaxTokens),
	), nil
}

// loadHistory wires the generation-history repository: in-memory always,
// write-through PostgreSQL when DATABASE_URL is set. A database that is
// down at startup degrades to memory-only rather than blocking boot.
func loadHistory(cfg *config.Config) history.Repository {
	mem := history.NewMemoryRepository()
	if cfg.Database.URL == "" {
		return mem
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Warn("database unavailable, history is in-memory only", "err", err)
		return mem
	}
	if err := database.Migrate(ctx); err != nil {
		slog.Warn("database migration failed, history is in-memory only", "err", err)
		database.Close()
		return mem
	}
	slog.Info("generation history persisted to database")
	return history.NewPersistentRepository(mem, database)
}

// startHealthMonitor probes the engine queue on a fixed schedule and logs
// depth so operators can spot a stuck or unreachable engine.
func startHealthMonitor(engine *comfy.Client, interval string) func() {
	c := cron.New()
	_, err := c.AddFunc("@every "+interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		info, err := engine.GetQueueInfo(ctx)
		if err != nil {
			slog.Warn("engine health check failed", "err", err)
			return
		}
		slog.Info("engine queue", "running", info.Running, "pending", info.Pending, "total", info.Total)
	})
	if err != nil {
		slog.Warn("health monitor disabled", "interval", interval, "err", err)
		return func() {}
	}
	c.Start()
	return func() { c.Stop() }
}

package main

import (
	"context"
	stdlog "log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/talecraft/turnengine/internal/config"
	"github.com/talecraft/turnengine/internal/handlers"
	"github.com/talecraft/turnengine/internal/logger"
	"github.com/talecraft/turnengine/internal/middleware"
	"github.com/talecraft/turnengine/internal/services"
	"github.com/talecraft/turnengine/internal/storage"
	"github.com/talecraft/turnengine/internal/turn"
	"github.com/talecraft/turnengine/pkg/action"
	"github.com/talecraft/turnengine/pkg/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Turn Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"model_provider", cfg.ModelProvider,
		"model_name", cfg.ModelName)

	var model services.ModelService
	switch strings.ToLower(cfg.ModelProvider) {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Error("Anthropic API key is required when using anthropic provider")
			os.Exit(1)
		}
		model = services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, log)
		log.Info("Using Anthropic model provider")
	case "ollama":
		model = services.NewOllamaService(cfg.OllamaURL, cfg.ModelName, log)
		log.Info("Using Ollama model provider", "url", cfg.OllamaURL)
	default:
		log.Error("Invalid model provider specified", "provider", cfg.ModelProvider, "supported", []string{"anthropic", "ollama"})
		os.Exit(1)
	}

	store := storage.NewRedisStorage(cfg.RedisURL, cfg.DataDir, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := store.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}

	// Initialize the model on startup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := model.InitModel(ctx, cfg.ModelName); err != nil {
		log.Error("Failed to initialize model", "error", err, "model", cfg.ModelName)
		os.Exit(1)
	}

	registry, err := buildRegistry(ctx, cfg, store, log)
	if err != nil {
		log.Error("Failed to build action registry", "error", err)
		os.Exit(1)
	}
	for _, warning := range registry.HealthWarnings() {
		log.Warn("Registry conflict", "warning", warning)
	}

	orchestrator := turn.New(store, model, registry, turn.Options{
		MaxTokens:           cfg.TurnMaxTokens,
		NPCCap:              cfg.TurnMaxNPCs,
		InferTimeout:        cfg.InferTimeout,
		AllowUnknownActions: cfg.AllowUnknownActions,
		Locale:              cfg.Locale,
		Logger:              log,
	})

	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(store, registry, log))
	mux.Handle("/v1/turn", handlers.NewTurnHandler(orchestrator, log))

	gameStateHandler := handlers.NewGameStateHandler(store, log)
	mux.Handle("/v1/gamestate", gameStateHandler)
	mux.Handle("/v1/gamestate/", gameStateHandler)

	contentHandler := handlers.NewContentHandler(store, registry, log)
	mux.Handle("/v1/content/", contentHandler)

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}

// buildRegistry constructs the process-wide action table: core actions,
// the built-in relationships module, then every module pack on disk.
func buildRegistry(ctx context.Context, cfg *config.Config, store storage.Storage, log *slog.Logger) (*action.Registry, error) {
	registry := action.NewRegistry(cfg.ActionStrictRegister, log)

	if err := action.RegisterCore(registry); err != nil {
		return nil, err
	}
	if err := action.RegisterRelationshipsModule(registry, relationshipCaps(ctx, store)); err != nil {
		return nil, err
	}

	moduleIDs, err := store.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range moduleIDs {
		if id == "relationships" {
			continue // registered above with typed caps
		}
		mod, err := store.GetModule(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := storage.RegisterModulePack(registry, mod); err != nil {
			return nil, err
		}
		log.Info("Module pack registered", "module_id", id, "actions", len(mod.Actions))
	}

	return registry, nil
}

// relationshipCaps reads cap overrides from the relationships module
// pack when present, falling back to the built-in defaults.
func relationshipCaps(ctx context.Context, store storage.Storage) state.RelationshipCaps {
	caps := state.DefaultRelationshipCaps()

	mod, err := store.GetModule(ctx, "relationships")
	if err != nil {
		return caps
	}
	if v, ok := numParam(mod.Defaults, "soft_cap"); ok {
		caps.SoftCap = v
	}
	if v, ok := numParam(mod.Defaults, "hard_cap"); ok {
		caps.HardCap = v
	}
	if v, ok := numParam(mod.Defaults, "compression_ratio"); ok {
		caps.CompressionRatio = v
	}
	if v, ok := numParam(mod.Defaults, "min_trust_to_romance"); ok {
		caps.MinTrustToRomance = v
	}
	return caps
}

func numParam(params map[string]interface{}, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

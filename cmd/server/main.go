package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smartchef/smartchef/internal/agent"
	"github.com/smartchef/smartchef/internal/ai"
	"github.com/smartchef/smartchef/internal/chat"
	"github.com/smartchef/smartchef/internal/config"
	"github.com/smartchef/smartchef/internal/db"
	"github.com/smartchef/smartchef/internal/httpapi"
	"github.com/smartchef/smartchef/internal/imagegen"
	"github.com/smartchef/smartchef/internal/openagents"
	"github.com/smartchef/smartchef/internal/store/rabbitmq"
	"github.com/smartchef/smartchef/internal/store/redisstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb := db.Connect(cfg.DBDSN)

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}

	oa := openagents.NewClient(cfg.OpenAgentsURL)

	var cache agent.RecipeCache
	rds := redisstore.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rds.Ping(ctx); err != nil {
		slog.Warn("redis unreachable, recipe cache disabled", "addr", cfg.RedisAddr, "error", err)
	} else {
		cache = rds
		defer rds.Close()
	}

	chef := agent.New(provider, oa, imagegen.NewAugmenter(newImageGenerator(cfg)), cache)
	chef.ResultTimeout = cfg.RecipeTimeout

	chatSvc := chat.NewService(chat.NewRepo(gdb), chef, cfg.ChatContextWindowSize)

	var rabbit *rabbitmq.Publisher
	if p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		slog.Warn("rabbitmq unreachable, async jobs disabled", "error", err)
	} else {
		rabbit = p
		defer rabbit.Close()
	}

	router := httpapi.NewRouter(gdb, cfg, chatSvc, rabbit, oa)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr, "ai_provider", cfg.AIProvider, "image_provider", cfg.ImageProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newProvider(ctx context.Context, cfg config.Config) (ai.Provider, error) {
	reg := ai.NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})
	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.OpenAIModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIAPIKey, model, cfg.OpenAIBaseURL)
	})
	return reg.Get(ctx, cfg.AIProvider, "")
}

func newImageGenerator(cfg config.Config) imagegen.Generator {
	if cfg.ImageProvider == "leonardo" {
		return imagegen.NewLeonardoGenerator(cfg.LeonardoAPIKey)
	}
	return imagegen.NewGeminiGenerator(cfg.GeminiAPIKey, cfg.GeminiModel)
}

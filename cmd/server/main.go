// Command server starts the interview coach HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai/openai"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/sessionstore"
	googlestt "github.com/fairyhunter13/ai-interview-coach/internal/adapter/speech/google"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/speech/speechmatics"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/speech/tts"
	tikaext "github.com/fairyhunter13/ai-interview-coach/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/ai-interview-coach/internal/app"
	"github.com/fairyhunter13/ai-interview-coach/internal/config"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-interview-coach/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(observability.SetupLogger(cfg))
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Infra: Postgres
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	if cfg.DataRetentionDays > 0 {
		cleanup := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
		go cleanup.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started", slog.Int("retention_days", cfg.DataRetentionDays), slog.Duration("interval", cfg.CleanupInterval))
	}

	// Infra: Redis holds live sessions and the shared LLM token bucket.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	producer, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, cfg.CompletedTopic)
	if err != nil {
		return fmt.Errorf("redpanda producer: %w", err)
	}
	defer func() { _ = producer.Close() }()

	// LLM stack: provider -> retrying gateway -> optional memo.
	provider, closeProvider, err := buildProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeProvider()
	counter := tokencount.NewCounter()
	gwOpts := []ai.GatewayOption{ai.WithTokenCounter(counter, cfg.LLMModel)}
	if cfg.LLMRateLimitPerMin > 0 {
		limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
			ratelimiter.LLMBucket: ratelimiter.NewBucketConfigFromPerMinute(cfg.LLMRateLimitPerMin),
		})
		gwOpts = append(gwOpts, ai.WithLimiter(limiter, ratelimiter.LLMBucket))
	}
	var gateway domain.LLMGateway = ai.NewGateway(provider, cfg.RetryPolicy(), gwOpts...)
	if cfg.LLMMemoSize > 0 {
		gateway = ai.NewMemoGateway(gateway, cfg.LLMMemoSize)
	}
	var schemas *ai.SchemaChecker
	if cfg.LLMSchemaChecks {
		if schemas, err = ai.NewSchemaChecker(usecase.Schemas); err != nil {
			return err
		}
	}

	transcriber, closeTranscriber, err := buildTranscriber(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTranscriber()
	var synth domain.Synthesizer
	if cfg.TTSBaseURL != "" {
		synth = tts.New(tts.Config{BaseURL: cfg.TTSBaseURL, APIKey: cfg.TTSAPIKey, Model: cfg.TTSModel, Format: cfg.TTSFormat})
	}

	script, err := usecase.LoadScript()
	if err != nil {
		return err
	}
	prompts := usecase.Prompts{Counter: counter, Model: cfg.LLMModel, Budget: cfg.PromptTokenBudget}
	interviews := usecase.NewInterviewService(
		sessionstore.NewRedisStore(rdb, cfg.SessionTTL),
		postgres.NewRecordRepo(pool),
		producer,
		usecase.NewAnalyzeService(gateway, prompts, script, schemas),
		usecase.NewResumeService(tikaext.New(cfg.TikaURL), gateway, prompts, schemas),
		transcriber,
		synth,
		script,
		usecase.InterviewSettings{
			MaxQuestions:    cfg.MaxQuestions,
			AnalysisTimeout: cfg.AnalysisTimeout,
			DefaultVoice:    cfg.DefaultVoice,
			InterviewerName: cfg.InterviewerName,
		},
	)

	srv := httpserver.NewServer(interviews, cfg.MaxUploadBytes(), app.BuildReadinessChecks(cfg, pool, rdb)...)
	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.BuildRouter(cfg, srv),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("llm_provider", provider.Name()))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	return srvHTTP.Shutdown(shutdownCtx)
}

// buildProvider selects the LLM backend. A missing OpenAI-compatible key is only logged;
// calls then fail with a configuration error that the API reports.
func buildProvider(ctx context.Context, cfg config.Config) (domain.LLMProvider, func(), error) {
	if err := cfg.CheckLLMCredentials(); err != nil {
		slog.Warn("llm credentials missing", slog.Any("error", err))
	}
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	case config.ProviderStub:
		return stub.New(), func() {}, nil
	default:
		return openai.New(cfg), func() {}, nil
	}
}

func buildTranscriber(ctx context.Context, cfg config.Config) (domain.Transcriber, func(), error) {
	switch cfg.STTProvider {
	case config.STTGoogle:
		a, err := googlestt.New(ctx, cfg.GoogleSTTLanguage)
		if err != nil {
			return nil, nil, err
		}
		return a, closer(a), nil
	case config.STTSpeechmatics:
		return speechmatics.New(speechmatics.Config{
			APIKey:       cfg.SpeechmaticsAPIKey,
			BaseURL:      cfg.SpeechmaticsBaseURL,
			Language:     cfg.STTLanguage,
			PollInterval: cfg.SpeechmaticsPoll,
			Timeout:      cfg.STTTimeout,
		}), func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("close failed", slog.Any("error", err))
		}
	}
}

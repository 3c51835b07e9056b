package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cove-labs/concierge/internal/config"
	logpkg "github.com/cove-labs/concierge/internal/logger"
	"github.com/cove-labs/concierge/internal/metrics"
	"github.com/cove-labs/concierge/internal/repository/catalog"
	chiTransport "github.com/cove-labs/concierge/internal/transport/chi"
	"github.com/cove-labs/concierge/internal/transport/cohere"
	openaiProv "github.com/cove-labs/concierge/internal/transport/openai"
	"github.com/cove-labs/concierge/internal/usecase/answer"
	askuc "github.com/cove-labs/concierge/internal/usecase/ask"
	"github.com/cove-labs/concierge/internal/usecase/extract"
	healthuc "github.com/cove-labs/concierge/internal/usecase/health"
	recsuc "github.com/cove-labs/concierge/internal/usecase/recs"
	rerankuc "github.com/cove-labs/concierge/internal/usecase/rerank"
	"github.com/cove-labs/concierge/internal/usecase/retrieve"
	"github.com/cove-labs/concierge/internal/usecase/vocab"
	"github.com/cove-labs/concierge/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting concierge API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := catalog.NewStore(catalog.Config{
		Addrs:     cfg.Database.Addrs,
		Password:  cfg.Database.Password,
		KeyPrefix: cfg.Database.KeyPrefix,
	})
	if err != nil {
		logger.Fatal("Failed to create catalog store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Catalog store not ready", zap.Error(err))
	}
	logger.Info("Connected to catalog store")

	metrics.RegisterProviderMetrics()

	embedder := openaiProv.NewEmbedder(&openaiProv.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	generator := openaiProv.NewGenerator(&openaiProv.GeneratorConfig{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		Logger:      logger,
	})
	reranker := cohere.New(&cohere.Config{
		APIKey:  cfg.Rerank.APIKey,
		BaseURL: cfg.Rerank.BaseURL,
		Model:   cfg.Rerank.Model,
		Timeout: time.Duration(cfg.Rerank.TimeoutSec) * time.Second,
		Logger:  logger,
	})

	vocabCache := vocab.New(store, time.Duration(cfg.Pipeline.VocabTTLSec)*time.Second, logger)
	extractor := extract.New(cfg.Pipeline.FuzzyCutoff)

	retrieveSvc := retrieve.NewService(store, embedder, retrieve.Options{
		Weights: retrieve.Weights{
			Dense:   cfg.Pipeline.DenseWeight,
			Lexical: cfg.Pipeline.LexicalWeight,
			Attr:    cfg.Pipeline.AttrWeight,
		},
		MMRLambda:   cfg.Pipeline.MMRLambdaText,
		KeywordOnly: cfg.Pipeline.KeywordOnly,
	})
	rerankSvc := rerankuc.NewService(reranker, embedder, rerankuc.Options{
		Disabled:  cfg.Rerank.Disabled || cfg.Rerank.APIKey == "",
		MMRLambda: cfg.Pipeline.MMRLambdaVec,
	})

	askSvc := askuc.NewService(
		vocabCache,
		extractor,
		retrieveSvc,
		rerankSvc,
		answer.NewDrafter(generator),
		answer.NewVerifier(),
		store,
		askuc.Options{
			HardTimeout:           time.Duration(cfg.Generation.HardTimeoutSec) * time.Second,
			BypassOnFail:          cfg.Generation.BypassOnFail,
			LowStockThreshold:     cfg.Pipeline.LowStockThreshold,
			SurfaceStockHints:     cfg.Pipeline.SurfaceStockHints,
			DisableLookupFallback: cfg.Pipeline.DisableLookupFallback,
		},
	)
	recsSvc := recsuc.NewService(retrieveSvc, store)
	healthSvc := healthuc.New(store)

	server := chiTransport.NewServer(askSvc, recsSvc, healthSvc, chiTransport.FlagsFromConfig(&cfg), logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Handle("/metrics", promhttp.Handler())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.WithContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

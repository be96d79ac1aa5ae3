package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/verity"
	"github.com/xraph/verity/api"
	"github.com/xraph/verity/archive"
	audithook "github.com/xraph/verity/audit_hook"
	"github.com/xraph/verity/config"
	"github.com/xraph/verity/id"
	"github.com/xraph/verity/metadata"
	"github.com/xraph/verity/observability"
	"github.com/xraph/verity/stream"
)

// finalizeBatch bounds one sweep so a backlog drains over several ticks.
const finalizeBatch = 100

func runServe(args []string, stderr io.Writer) int {
	path, err := configFlag("serve", args, stderr)
	if err != nil {
		return 2
	}
	cfg, err := config.Load(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "verityd: %v\n", err)
		return 1
	}
	logger := slog.New(cfg.Log.Handler(stderr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("verityd exited", "error", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	eng, err := buildEngine(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		if err := eng.Stop(); err != nil {
			logger.Warn("engine stop", "error", err)
		}
	}()

	limiter := api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	srv := api.New(eng, api.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		api.WithRateLimiter(limiter),
		api.WithLogger(logger),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", srv.Router())

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	go sweepLimiter(ctx, limiter)
	if cfg.Server.FinalizeInterval > 0 {
		go finalizeLoop(ctx, eng, cfg.Server.FinalizeInterval, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("verityd listening", "addr", cfg.Server.Addr, "store", cfg.Store.Driver)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildEngine opens the store and wires every configured collaborator.
func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*verity.Engine, error) {
	p, err := cfg.Params.Build()
	if err != nil {
		return nil, err
	}
	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	opts := []verity.Option{
		verity.WithParams(p),
		verity.WithLogger(logger),
		verity.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		verity.WithPlugin(audithook.New(auditLog(logger), audithook.WithLogger(logger))),
	}

	if cfg.Redis.Addr != "" {
		opts = append(opts, verity.WithMetadataStore(
			metadata.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, metadata.WithPrefix(cfg.Redis.Prefix)),
		))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		w, err := stream.NewKafkaWriter(stream.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		opts = append(opts, verity.WithPlugin(stream.New(w, stream.WithLogger(logger))))
	}

	if cfg.Archive.Bucket != "" {
		aopts := []archive.Option{archive.WithPrefix(cfg.Archive.Prefix), archive.WithLogger(logger)}
		if cfg.Archive.Invalidated {
			aopts = append(aopts, archive.WithInvalidated())
		}
		a, err := archive.NewS3(ctx, cfg.Archive.Bucket, aopts...)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		opts = append(opts, verity.WithPlugin(a))
	}

	return verity.New(s, opts...), nil
}

// auditLog records audit events as structured log lines.
func auditLog(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(ctx context.Context, ev *audithook.AuditEvent) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "audit",
			slog.String("action", ev.Action),
			slog.String("resource", ev.Resource),
			slog.String("resource_id", ev.ResourceID),
			slog.String("actor", ev.Actor),
			slog.String("outcome", ev.Outcome),
			slog.String("severity", ev.Severity),
		)
		return nil
	})
}

// finalizeLoop finalizes results whose challenge window has elapsed.
func finalizeLoop(ctx context.Context, eng *verity.Engine, every time.Duration, logger *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := finalizeDue(ctx, eng, now)
			if err != nil {
				logger.Warn("finalize sweep", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("finalize sweep", "finalized", n)
			}
		}
	}
}

func finalizeDue(ctx context.Context, eng *verity.Engine, now time.Time) (int, error) {
	pending, err := eng.ListPendingResults(ctx, now, finalizeBatch)
	if err != nil || len(pending) == 0 {
		return 0, err
	}
	ids := make([]id.EventID, 0, len(pending))
	for _, r := range pending {
		ids = append(ids, r.EventID)
	}
	return eng.BatchFinalizeResults(ctx, ids)
}

func sweepLimiter(ctx context.Context, rl *api.RateLimiter) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.Sweep()
		}
	}
}

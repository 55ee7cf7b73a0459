// Command evalqueue serves the evaluation queue over HTTP.
//
// Configuration comes from the environment, optionally loaded from a .env
// file in the working directory; flags override it. Submissions are
// scored by POSTing them to the evaluator service at EVALQUEUE_EVALUATOR_URL.
//
// Usage:
//
//	EVALQUEUE_EVALUATOR_URL=http://localhost:9000/evaluate go run ./cmd/evalqueue
//
// Then in another terminal:
//
//	# Submit a project
//	curl -X POST http://localhost:8080/v1/jobs \
//	  -H "X-User-ID: u_42" -H "Content-Type: application/json" \
//	  -d '{"project_id":"p_1","code":"print(42)","language":"python","priority":"high"}'
//
//	# Follow your jobs
//	curl -N -H "X-User-ID: u_42" http://localhost:8080/v1/events
//
//	# Queue statistics
//	curl http://localhost:8080/v1/stats
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/aliendabz/evalqueue/api"
	"github.com/aliendabz/evalqueue/engine"
	"github.com/aliendabz/evalqueue/evaluator"
)

func main() {
	_ = godotenv.Load(".env")

	settings, err := loadSettings()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	flag.StringVar(&settings.Addr, "addr", settings.Addr, "HTTP listen address")
	flag.StringVar(&settings.EvaluatorURL, "evaluator-url", settings.EvaluatorURL, "evaluator service URL")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: settings.LogLevel}))
	slog.SetDefault(logger)

	if err := run(settings, logger); err != nil {
		logger.Error("evalqueue exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(settings Settings, logger *slog.Logger) error {
	if settings.EvaluatorURL == "" {
		return errors.New("EVALQUEUE_EVALUATOR_URL is required")
	}

	ev := evaluator.NewHTTP(settings.EvaluatorURL, evaluator.WithLogger(logger))
	eng, err := engine.New(ev,
		engine.WithConfig(settings.Queue),
		engine.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	a := api.New(eng, api.WithLogger(logger))
	srv := &http.Server{
		Addr:              settings.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", settings.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Queue.ShutdownTimeout)
		defer cancel()

		// Close streams first so Shutdown does not wait on them.
		a.Close()
		srvErr := srv.Shutdown(shutdownCtx)
		engErr := eng.Stop(shutdownCtx)
		return errors.Join(srvErr, engErr)
	})
	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okian/pokeget/internal/adapters/http/api"
	"github.com/okian/pokeget/internal/adapters/journal"
	"github.com/okian/pokeget/internal/adapters/source"
	service "github.com/okian/pokeget/internal/app"
	"github.com/okian/pokeget/internal/config"
	"github.com/okian/pokeget/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// Exit status for anything that stops the poller before the loop runs.
const exitStartup = 1

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stderr))
}

// execute runs the command line and returns the process exit status.
func execute(ctx context.Context, args []string, stderr io.Writer) int {
	code := 0
	cmd := newRootCmd(&code, run)
	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "pokeget:", err)
		if code == 0 {
			code = exitStartup
		}
	}
	return code
}

// run wires the poller from cfg and blocks until a breaker trips or a
// signal arrives.
func run(cmd *cobra.Command, f *flags) (int, error) {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env -> flags)
	cfg, err := config.Load(ctx, f.config)
	if err != nil {
		return exitStartup, err
	}
	f.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return exitStartup, err
	}

	if err := logger.Init(logger.WithOutputPath(cfg.LogFile), logger.WithFormat(cfg.LogFormat)); err != nil {
		return exitStartup, fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		_ = logger.Sync()
		_ = logger.Close()
	}()

	log := logger.Get().With(logger.String("run_id", uuid.NewString()))

	// Apply configured log level (fallback to warn on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("warn")
		log.Warn(ctx, "invalid loglevel; falling back to warn", logger.String("loglevel", cfg.LogLevel), logger.Error(err))
	}

	src := source.New(cfg.BaseURL(), source.WithTimeout(cfg.FetchTimeout))
	j := journal.New(cfg.Pokedex)
	svc := service.New(src, j,
		service.WithLogger(log),
		service.WithDelay(cfg.PollDelay()),
		service.WithEncounterLogging(cfg.InfoEnabled()),
	)

	log.Info(ctx, "starting poller",
		logger.String("url", src.URL()),
		logger.String("pokedex", cfg.Pokedex),
		logger.Any("delay", cfg.PollDelay()),
	)

	if err := svc.Seed(ctx); err != nil {
		log.Error(ctx, "seeding failed", logger.Error(err))
		return exitStartup, err
	}

	if cfg.MetricsAddr != "" {
		srv := api.NewServer(svc).NewHTTPServer(ctx, cfg.MetricsAddr)
		go func() {
			log.Info(ctx, "starting observability server", logger.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "observability server failed", logger.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(ctx, "observability server shutdown failed", logger.Error(err))
			}
		}()
	}

	err = svc.Run(ctx)
	if exit, ok := service.IsExit(err); ok {
		return exit.Code, nil
	}
	if errors.Is(err, context.Canceled) {
		log.Info(ctx, "poller stopped")
		return 0, nil
	}
	return exitStartup, err
}

// Package app is the supportbot command line: it loads config, wires the
// components and runs the HTTP service or one-off commands.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"supportbot/internal/config"
	"supportbot/internal/digest"
	"supportbot/internal/domain"
	"supportbot/internal/httpapi"
	"supportbot/internal/nudge"
)

const shutdownTimeout = 20 * time.Second

// Main runs the command line and exits non-zero on failure.
func Main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}

func NewRootCommand() *cobra.Command {
	var (
		cfg    config.Config
		logger *zap.Logger
	)
	root := &cobra.Command{
		Use:          "supportbot",
		Short:        "AI customer support service with escalation to human agents",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = NewLogger(cfg.LogLevel)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	cfgFn := func() (config.Config, *zap.Logger) { return cfg, logger }
	root.AddCommand(serveCommand(cfgFn), chatCommand(cfgFn), seedCommand(cfgFn))
	return root
}

type setup func() (config.Config, *zap.Logger)

func serveCommand(load setup) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with its background workers and Slack schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := load()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	a, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.SeedKnowledge(ctx); err != nil {
		return fmt.Errorf("seed knowledge base: %w", err)
	}

	a.Intents.Start(context.Background())

	var scheduled []<-chan struct{}
	if cfg.DigestSchedule != "" && a.Slack != nil {
		sched, err := digest.NewScheduler(cfg.DigestSchedule, cfg.Location, digest.SlackJob(a.Stats, a.Slack, cfg.DigestChannel), logger)
		if err != nil {
			return fmt.Errorf("digest schedule: %w", err)
		}
		scheduled = append(scheduled, sched.Start(ctx))
	}
	if cfg.NudgeSchedule != "" && a.Slack != nil {
		after := time.Duration(cfg.NudgeAfterMinutes) * time.Minute
		sched, err := digest.NewScheduler(cfg.NudgeSchedule, cfg.Location, nudge.Job(a.Store, a.Slack, after, nil, logger), logger)
		if err != nil {
			return fmt.Errorf("nudge schedule: %w", err)
		}
		scheduled = append(scheduled, sched.Named("stale ticket nudge").Start(ctx))
	}

	srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewRouter(httpapi.Deps{
		Chat:       a.Chat,
		Knowledge:  a.Knowledge,
		Stats:      a.Stats,
		Usage:      a.Gateway,
		CORSOrigin: cfg.CORSOrigin,
		Logger:     logger,
	}))
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("model", a.Models.Current()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := a.Intents.Close(shutdownCtx); err != nil {
		logger.Warn("intent queue did not drain", zap.Error(err))
	}
	a.Chat.Wait()
	for _, done := range scheduled {
		<-done
	}
	return nil
}

func chatCommand(load setup) *cobra.Command {
	var req domain.ChatRequest
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Run one message through the pipeline and print the response as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := load()
			a, err := Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			req.Message = strings.Join(args, " ")
			resp, err := a.ProcessOnce(cmd.Context(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&req.ConversationID, "conversation", "", "continue an existing conversation")
	cmd.Flags().StringVar(&req.CustomerID, "customer", "", "customer id from the customer directory")
	cmd.Flags().StringVar(&req.CustomerName, "name", "", "customer display name")
	cmd.Flags().StringVar(&req.Model, "model", "", "model override for this message")
	return cmd
}

// ProcessOnce runs a single message and returns after its background work,
// intent extraction included, has finished. The intent queue is closed
// afterwards, so it is meant for one-shot commands.
func (a *App) ProcessOnce(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	a.Intents.Start(context.Background())
	resp, err := a.Chat.Process(ctx, req)
	a.Chat.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if cerr := a.Intents.Close(drainCtx); cerr != nil {
		a.Logger.Warn("intent queue did not drain", zap.Error(cerr))
	}
	return resp, err
}

func seedCommand(load setup) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load knowledge base articles from the seed file into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := load()
			a, err := Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.SeedKnowledge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d new articles (%d total)\n", created, a.Knowledge.Base().Len())
			return nil
		},
	}
}

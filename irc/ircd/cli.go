package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/presbrey/ircq/echoprom"
	"github.com/presbrey/ircq/irc"
	"github.com/presbrey/ircq/irc/admind"
	"github.com/presbrey/ircq/irc/config"
	"github.com/presbrey/ircq/store"
	"github.com/presbrey/ircq/wait"
)

type rootOptions struct {
	ConfigPath string
	Debug      bool

	level *slog.LevelVar
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ircd",
		Short:         "Queue-fed IRC kernel",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("IRCD_CONFIG"), "config file or URL (yaml, toml or json)")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newInjectCommand(opts))
	cmd.AddCommand(newPasswdCommand())
	return cmd
}

func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	o.level = new(slog.LevelVar)
	o.applyLevel(cfg)
	logger := cfg.NewLoggerWithLevel(os.Stderr, o.level)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// applyLevel sets the log level from cfg; --debug always wins.
func (o *rootOptions) applyLevel(cfg *config.Config) {
	if o.Debug {
		o.level.Set(slog.LevelDebug)
		return
	}
	o.level.Set(cfg.LogLevel())
}

// reloadOnHangup re-reads the configuration source on every signal from hup
// and hands the result to apply. Only settings that can change without a
// restart are applied; a failed reload keeps the running configuration.
func reloadOnHangup(ctx context.Context, cfg *config.Config, hup <-chan os.Signal, apply func(*config.Config), logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := cfg.Reload(""); err != nil {
				logger.Error("config reload failed", "error", err)
				continue
			}
			apply(cfg)
			logger.Info("config reloaded", "source", cfg.Source, "log_level", cfg.Log.Level)
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Redis, error) {
	s := store.NewRedis(store.RedisOptions{
		Addr:     cfg.Store.Addr,
		Password: cfg.Store.Password,
		DB:       cfg.Store.DB,
	})

	logger.Info("waiting for store", "addr", cfg.Store.Addr)
	opts := wait.DefaultOptions().
		WithStrategy(wait.NewExponentialBackoffStrategy(100*time.Millisecond, 2, 5*time.Second, true))
	if err := wait.ForPing(ctx, s, opts); err != nil {
		s.Close()
		return nil, fmt.Errorf("store %s: %w", cfg.Store.Addr, err)
	}
	return s, nil
}

func newRunCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Consume the inbound queue until shutdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			metrics := echoprom.New()
			k, err := irc.New(ctx, s, irc.Options{
				ServerName:     cfg.Server.Name,
				Network:        cfg.Server.Network,
				PasswordHash:   cfg.Server.PasswordHash,
				Queue:          cfg.Kernel.Queue,
				OutboundPrefix: cfg.Kernel.OutboundPrefix,
				PingTimeout:    cfg.Kernel.PingTimeout.Duration,
				PopTimeout:     cfg.Kernel.PopTimeout.Duration,
				Logger:         logger,
				Metrics:        irc.NewMetrics(metrics.Registry),
			})
			if err != nil {
				return err
			}

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			if cfg.Admin.Enabled {
				srv := admind.New(s, k.Repository(), admind.Options{
					Queue:   cfg.Kernel.Queue,
					Metrics: metrics,
					Logger:  logger,
				})
				addr := cfg.AdminAddress()
				go func() {
					if err := srv.Start(addr); err != nil {
						logger.Error("admin server failed", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
			}

			// cfg belongs to the reloader from here on
			go reloadOnHangup(ctx, cfg, hup, root.applyLevel, logger)

			err = k.Run(ctx)
			if errors.Is(err, context.Canceled) {
				logger.Info("signal received, stopped")
				return nil
			}
			return err
		},
	}
}

func newInjectCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inject <kind> [origin] [data...]",
		Short: "Push one event onto the inbound queue",
		Example: `  ircd inject connect fe:1 127.0.0.1
  ircd inject message fe:1 NICK alice
  ircd inject reset fe restart
  ircd inject shutdown`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}

			ev := irc.Event{Kind: args[0]}
			if len(args) > 1 {
				ev.Origin = args[1]
			}
			if len(args) > 2 {
				ev.Data = strings.Join(args[2:], " ")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			s, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.RPush(ctx, cfg.Kernel.Queue, ev.String()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %q on %s\n", ev.String(), cfg.Kernel.Queue)
			return nil
		},
	}
}

func newPasswdCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd <password>",
		Short: "Print a bcrypt hash for server.password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

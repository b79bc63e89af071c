package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/adapter/kakaopresenter"
	"github.com/park285/Cheese-TicTacToe-bot/internal/app"
	"github.com/park285/Cheese-TicTacToe-bot/internal/config"
	"github.com/park285/Cheese-TicTacToe-bot/internal/irisfast"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/park285/Cheese-TicTacToe-bot/internal/telegram"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Long:  "Connects to the configured transport (TRANSPORT=iris or telegram) and serves games until SIGINT/SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log websocket replies instead of sending them")
	return cmd
}

func runServe(ctx context.Context, cfg *config.AppConfig, dryRun bool) error {
	logger := obslog.L()
	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := deps.Close(cctx); err != nil {
			logger.Warn("shutdown_error", zap.Error(err))
		}
	}()
	deps.Start()

	switch cfg.Transport {
	case config.TransportTelegram:
		return serveTelegram(ctx, cfg, deps)
	default:
		return serveIris(ctx, cfg, deps, dryRun)
	}
}

func irisHeaders(cfg *config.AppConfig) irisfast.HeaderProvider {
	return func() map[string]string {
		h := map[string]string{}
		if cfg.XUserID != "" {
			h["X-User-Id"] = cfg.XUserID
		}
		if cfg.XUserEmail != "" {
			h["X-User-Email"] = cfg.XUserEmail
		}
		if cfg.XSessionID != "" {
			h["X-Session-Id"] = cfg.XSessionID
		}
		return h
	}
}

func serveIris(ctx context.Context, cfg *config.AppConfig, deps *app.Deps, dryRun bool) error {
	logger := obslog.L()
	headers := irisHeaders(cfg)
	client := irisfast.NewClient(cfg.IrisBaseURL, irisfast.WithHeaderProvider(headers))

	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	ws.SetHeaderProvider(headers)

	out := kakaopresenter.NewPresenter(irisfast.NewEgress(cfg.IrisEgress, dryRun, client, ws))
	router := deps.Router(out, cfg.BotPrefix, cfg.KakaoSeeMore)
	kakaopresenter.Attach(ctx, ws, router)

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := ws.Connect(cctx)
	cancel()
	if err != nil {
		return fmt.Errorf("ws connect: %w", err)
	}
	logger.Info("serve_started", zap.String("transport", cfg.Transport), zap.String("egress", cfg.IrisEgress))

	<-ctx.Done()
	logger.Info("serve_stopping")
	return ws.Close(context.Background())
}

func serveTelegram(ctx context.Context, cfg *config.AppConfig, deps *app.Deps) error {
	logger := obslog.L()
	b, err := telegram.NewBot(cfg.TelegramToken)
	if err != nil {
		return err
	}
	router := deps.Router(telegram.NewTransport(b), cfg.BotPrefix, false)
	telegram.Register(ctx, b, router)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Start()
	}()
	logger.Info("serve_started", zap.String("transport", cfg.Transport), zap.String("bot", b.Me.Username))

	<-ctx.Done()
	logger.Info("serve_stopping")
	b.Stop()
	<-done
	return nil
}

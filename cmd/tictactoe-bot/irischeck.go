package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/config"
	"github.com/park285/Cheese-TicTacToe-bot/internal/irisfast"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIrisCheckCmd() *cobra.Command {
	var watch time.Duration

	cmd := &cobra.Command{
		Use:   "iris-check",
		Short: "Probe the iris HTTP and websocket endpoints",
		Long:  "Fetches /config from IRIS_BASE_URL, then connects to IRIS_WS_URL and prints incoming messages for a while.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStorage()
			if err != nil {
				return err
			}
			if cfg.IrisBaseURL == "" {
				return fmt.Errorf("IRIS_BASE_URL is required")
			}
			return runIrisCheck(cmd.Context(), cmd.OutOrStdout(), cfg, watch)
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 10*time.Second, "how long to print websocket messages")
	return cmd
}

func runIrisCheck(ctx context.Context, out io.Writer, cfg *config.AppConfig, watch time.Duration) error {
	headers := irisHeaders(cfg)
	client := irisfast.NewClient(cfg.IrisBaseURL,
		irisfast.WithHeaderProvider(headers),
		irisfast.WithTimeout(8*time.Second),
	)

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	ic, err := client.GetConfig(hctx)
	cancel()
	if err != nil {
		fmt.Fprintf(out, "/config error: %v\n", err)
	} else {
		fmt.Fprintf(out, "/config ok: port=%d polling=%d rate=%d endpoint=%s\n", ic.Port, ic.PollingSpeed, ic.MessageRate, ic.WebserverEndpoint)
	}

	if cfg.IrisWSURL == "" {
		fmt.Fprintln(out, "IRIS_WS_URL not set; skipping websocket check")
		return nil
	}

	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		obslog.L().Info("iris_check_ws_state", zap.String("state", string(state)))
	})
	ws.OnMessage(func(msg *irisfast.Message) {
		fmt.Fprintf(out, "ws msg room=%s from=%s text=%q\n", msg.Room, msg.SenderName(), msg.Msg)
	})

	cctx, ccancel := context.WithTimeout(ctx, 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		return fmt.Errorf("ws connect: %w", err)
	}
	defer func() { _ = ws.Close(context.Background()) }()

	t := time.NewTimer(watch)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	return nil
}

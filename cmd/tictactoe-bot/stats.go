package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/app"
	"github.com/park285/Cheese-TicTacToe-bot/internal/config"
	"github.com/park285/Cheese-TicTacToe-bot/internal/stats"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the postgres stats tables",
		Long:  "Creates ttt_stats and ttt_history in DATABASE_URL. Safe to run multiple times.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStorage()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			cfg.SinkBackend = config.BackendPostgres
			_, closeSink, err := openSink(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeSink()
			fmt.Fprintln(cmd.OutOrStdout(), "migrated")
			return nil
		},
	}
}

func newTopCmd() *cobra.Command {
	var (
		today bool
		n     int
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Print the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStorage()
			if err != nil {
				return err
			}
			sink, closeSink, err := openSink(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeSink()

			var since time.Time
			if today {
				since = stats.StartOfDay(time.Now())
			}
			recs, err := sink.QueryTop(cmd.Context(), n, since)
			if err != nil {
				return err
			}
			return printTop(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().BoolVar(&today, "today", false, "only players active since local midnight")
	cmd.Flags().IntVarP(&n, "limit", "n", 10, "number of rows")
	return cmd
}

func printTop(out io.Writer, recs []stats.Record) error {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No games played yet.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPLAYER\tWINS\tLOSSES\tDRAWS\tLAST ACTIVE")
	for i, r := range recs {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\n", i+1, r.Name, r.Wins, r.Losses, r.Draws, r.LastActive.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func newHistoryCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history <chat>",
		Short: "Print the recent games of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStorage()
			if err != nil {
				return err
			}
			sink, closeSink, err := openSink(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeSink()

			entries, err := sink.GetHistory(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No history yet.")
				return nil
			}
			for i := len(entries) - 1; i >= 0; i-- {
				fmt.Fprintf(out, "%s  %s\n", entries[i].At.Local().Format("2006-01-02 15:04"), entries[i].Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of entries")
	return cmd
}

// openSink opens the configured sink together with whatever it needs.
func openSink(ctx context.Context, cfg *config.AppConfig) (stats.Sink, func(), error) {
	var rdb *redis.Client
	if cfg.SinkBackend == config.BackendRedis {
		var err error
		if rdb, err = app.OpenRedis(ctx, cfg.RedisURL); err != nil {
			return nil, nil, err
		}
	}
	sink, err := app.OpenSink(ctx, cfg, rdb)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, nil, err
	}
	return sink, func() {
		if c, ok := sink.(io.Closer); ok {
			_ = c.Close()
		}
		if rdb != nil {
			_ = rdb.Close()
		}
	}, nil
}

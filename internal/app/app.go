// Package app assembles the game core from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/bot"
	"github.com/park285/Cheese-TicTacToe-bot/internal/config"
	"github.com/park285/Cheese-TicTacToe-bot/internal/engine"
	"github.com/park285/Cheese-TicTacToe-bot/internal/janitor"
	"github.com/park285/Cheese-TicTacToe-bot/internal/marks"
	"github.com/park285/Cheese-TicTacToe-bot/internal/msgcat"
	"github.com/park285/Cheese-TicTacToe-bot/internal/render"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"github.com/park285/Cheese-TicTacToe-bot/internal/stats"
	"github.com/park285/Cheese-TicTacToe-bot/internal/watchdog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps is everything below the transport.
type Deps struct {
	Config   *config.AppConfig
	Store    session.Store
	Sink     stats.Sink
	Recorder *stats.Recorder
	Watchdog *watchdog.Supervisor
	Engine   *engine.Engine
	Marks    *marks.Registry
	Catalog  *msgcat.Catalog
	Renderer render.BoardRenderer
	Janitor  *janitor.Janitor

	welcome  []byte
	redis    *redis.Client
	ownRedis bool
	pg       *stats.PostgresSink
}

type Option func(*options)

type options struct {
	clock watchdog.Clock
	redis *redis.Client
}

// WithClock drives the watchdog and engine from c.
func WithClock(c watchdog.Clock) Option { return func(o *options) { o.clock = c } }

// WithRedis reuses an existing client instead of dialing REDIS_URL.
func WithRedis(rdb *redis.Client) Option { return func(o *options) { o.redis = rdb } }

// Build wires the configured backends. Failures close whatever was opened.
func Build(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, opts ...Option) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	d := &Deps{Config: cfg}
	fail := func(err error) (*Deps, error) {
		_ = d.Close(context.Background())
		return nil, err
	}

	var err error
	if cfg.SessionBackend == config.BackendRedis || cfg.SinkBackend == config.BackendRedis {
		if o.redis != nil {
			d.redis = o.redis
		} else {
			if d.redis, err = OpenRedis(ctx, cfg.RedisURL); err != nil {
				return fail(err)
			}
			d.ownRedis = true
		}
	}

	switch cfg.SessionBackend {
	case config.BackendRedis:
		d.Store = session.NewRedisStore(d.redis)
	default:
		d.Store = session.NewMemoryStore()
	}

	if d.Sink, err = OpenSink(ctx, cfg, d.redis); err != nil {
		return fail(err)
	}
	if pg, ok := d.Sink.(*stats.PostgresSink); ok {
		d.pg = pg
		if d.Janitor, err = janitor.New(pg, cfg.HistoryPruneCron, cfg.HistoryLimit); err != nil {
			return fail(err)
		}
	}

	if d.Catalog, err = msgcat.New(cfg.MessagesDir); err != nil {
		return fail(fmt.Errorf("load messages: %w", err))
	}
	if cfg.WelcomeImage != "" {
		if d.welcome, err = os.ReadFile(cfg.WelcomeImage); err != nil {
			return fail(fmt.Errorf("read welcome image: %w", err))
		}
	}
	if cfg.BoardImages {
		d.Renderer = render.NewPNGRenderer()
	}

	d.Marks = marks.NewRegistry(cfg.DefaultMarks, cfg.MarkOverrides)
	d.Recorder = stats.NewRecorder(d.Sink)

	var dogOpts []watchdog.Option
	engOpts := []engine.Option{engine.WithBotDelay(cfg.BotMoveDelay)}
	if o.clock != nil {
		dogOpts = append(dogOpts, watchdog.WithClock(o.clock))
		engOpts = append(engOpts, engine.WithClock(o.clock))
	}
	d.Watchdog = watchdog.New(d.Store, cfg.TurnTimeout, dogOpts...)
	d.Engine = engine.New(d.Store, d.Watchdog, d.Recorder, engOpts...)

	logger.Info("app_built",
		zap.String("transport", cfg.Transport),
		zap.String("session_backend", cfg.SessionBackend),
		zap.String("sink_backend", cfg.SinkBackend),
		zap.Duration("turn_timeout", cfg.TurnTimeout),
		zap.Bool("board_images", d.Renderer != nil),
	)
	return d, nil
}

// OpenRedis dials url and pings it.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(ropts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// OpenSink opens the configured stats backend. rdb is required for the redis
// sink. A postgres sink is migrated before it is returned and must be closed
// by the caller.
func OpenSink(ctx context.Context, cfg *config.AppConfig, rdb *redis.Client) (stats.Sink, error) {
	switch cfg.SinkBackend {
	case config.BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis sink needs a client")
		}
		return stats.NewRedisSink(rdb, cfg.HistoryLimit), nil
	case config.BackendPostgres:
		pg, err := stats.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return pg, nil
	default:
		return stats.NewMemorySink(cfg.HistoryLimit), nil
	}
}

// Router builds the command router for a transport and routes watchdog
// timeouts to it.
func (d *Deps) Router(out bot.Replier, prefix string, seeMore bool) *bot.Router {
	var opts []bot.Option
	if d.Renderer != nil {
		opts = append(opts, bot.WithRenderer(d.Renderer))
	}
	r := bot.NewRouter(d.Engine, d.Sink, d.Marks, d.Catalog, out, bot.Config{
		Prefix:          prefix,
		AllowedRooms:    d.Config.AllowedRooms,
		LeaderboardSize: d.Config.LeaderboardSize,
		WelcomeImage:    d.welcome,
		SeeMore:         seeMore,
	}, opts...)
	d.Engine.OnTimeout(r.NotifyTimeout)
	return r
}

// Start launches background jobs.
func (d *Deps) Start() {
	if d.Janitor != nil {
		d.Janitor.Start()
	}
}

// Close stops timers, drains pending stats and closes connections.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	if d.Janitor != nil {
		d.Janitor.Stop(ctx)
	}
	if d.Engine != nil {
		d.Engine.Shutdown()
	}
	if d.Recorder != nil {
		if err := d.Recorder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain stats: %w", err))
		}
	}
	if d.pg != nil {
		if err := d.pg.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.redis != nil && d.ownRedis {
		if err := d.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	TransportIris     = "iris"
	TransportTelegram = "telegram"

	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type AppConfig struct {
	Transport string

	IrisBaseURL string
	IrisWSURL   string
	IrisEgress  string

	BotPrefix string

	XUserID    string
	XUserEmail string
	XSessionID string

	TelegramToken string

	AllowedRooms []string

	SessionBackend string
	RedisURL       string
	SinkBackend    string
	DatabaseURL    string

	TurnTimeout  time.Duration
	BotMoveDelay time.Duration

	DefaultMarks  [2]string
	MarkOverrides map[string]string

	HistoryLimit     int
	LeaderboardSize  int
	HistoryPruneCron string

	MessagesDir  string
	WelcomeImage string
	BoardImages  bool
	KakaoSeeMore bool
}

// LoadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func envList(key string) []string {
	var out []string
	for _, p := range strings.Split(env(key), ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envInt(key string, def int) (int, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

// Load reads configuration from the environment.
func Load() (*AppConfig, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateTransport(); err != nil {
		return nil, err
	}
	if err := cfg.validateStorage(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStorage is Load without the transport checks, for offline tools.
func LoadStorage() (*AppConfig, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateStorage(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse() (*AppConfig, error) {
	cfg := &AppConfig{
		Transport:        strings.ToLower(env("TRANSPORT")),
		IrisBaseURL:      env("IRIS_BASE_URL"),
		IrisWSURL:        env("IRIS_WS_URL"),
		IrisEgress:       strings.ToLower(env("IRIS_EGRESS")),
		BotPrefix:        env("BOT_PREFIX"),
		XUserID:          env("X_USER_ID"),
		XUserEmail:       env("X_USER_EMAIL"),
		XSessionID:       env("X_SESSION_ID"),
		TelegramToken:    env("TELEGRAM_TOKEN"),
		AllowedRooms:     envList("ALLOWED_ROOMS"),
		SessionBackend:   strings.ToLower(env("SESSION_BACKEND")),
		RedisURL:         env("REDIS_URL"),
		SinkBackend:      strings.ToLower(env("SINK_BACKEND")),
		DatabaseURL:      env("DATABASE_URL"),
		DefaultMarks:     [2]string{"❌", "⭕"},
		HistoryPruneCron: env("HISTORY_PRUNE_CRON"),
		MessagesDir:      env("MESSAGES_DIR"),
		WelcomeImage:     env("WELCOME_IMAGE"),
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportIris
	}
	if cfg.IrisEgress == "" {
		cfg.IrisEgress = "http"
	}
	if cfg.HistoryPruneCron == "" {
		cfg.HistoryPruneCron = "@hourly"
	}

	var err error
	var secs, delayMS int
	if secs, err = envInt("TURN_TIMEOUT", 60); err != nil {
		return nil, err
	}
	if secs == 0 {
		return nil, errors.New("TURN_TIMEOUT must be positive")
	}
	cfg.TurnTimeout = time.Duration(secs) * time.Second
	if delayMS, err = envInt("BOT_MOVE_DELAY_MS", 700); err != nil {
		return nil, err
	}
	cfg.BotMoveDelay = time.Duration(delayMS) * time.Millisecond
	if cfg.HistoryLimit, err = envInt("HISTORY_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.LeaderboardSize, err = envInt("LEADERBOARD_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.BoardImages, err = envBool("BOARD_IMAGES", true); err != nil {
		return nil, err
	}
	if cfg.KakaoSeeMore, err = envBool("KAKAO_SEE_MORE", true); err != nil {
		return nil, err
	}

	if marks := envList("DEFAULT_MARKS"); len(marks) > 0 {
		if len(marks) != 2 || marks[0] == marks[1] {
			return nil, errors.New("DEFAULT_MARKS must be two distinct marks")
		}
		cfg.DefaultMarks = [2]string{marks[0], marks[1]}
	}
	if pairs := envList("MARK_OVERRIDES"); len(pairs) > 0 {
		cfg.MarkOverrides = make(map[string]string, len(pairs))
		for _, p := range pairs {
			id, mark, ok := strings.Cut(p, "=")
			id, mark = strings.TrimSpace(id), strings.TrimSpace(mark)
			if !ok || id == "" || mark == "" {
				return nil, fmt.Errorf("MARK_OVERRIDES entry %q must look like userID=mark", p)
			}
			cfg.MarkOverrides[id] = mark
		}
	}

	return cfg, nil
}

func (c *AppConfig) validateTransport() error {
	switch c.Transport {
	case TransportIris:
		if c.IrisBaseURL == "" {
			return errors.New("IRIS_BASE_URL is required")
		}
		if c.IrisWSURL == "" {
			return errors.New("IRIS_WS_URL is required")
		}
		if c.BotPrefix == "" {
			return errors.New("BOT_PREFIX is required")
		}
		switch c.IrisEgress {
		case "http", "ws", "auto":
		default:
			return fmt.Errorf("IRIS_EGRESS %q is not one of http, ws, auto", c.IrisEgress)
		}
	case TransportTelegram:
		if c.TelegramToken == "" {
			return errors.New("TELEGRAM_TOKEN is required")
		}
		if c.BotPrefix == "" {
			c.BotPrefix = "/"
		}
	default:
		return fmt.Errorf("TRANSPORT %q is not one of iris, telegram", c.Transport)
	}
	return nil
}

func (c *AppConfig) validateStorage() error {
	switch c.SessionBackend {
	case "":
		c.SessionBackend = BackendMemory
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("SESSION_BACKEND %q is not one of memory, redis", c.SessionBackend)
	}
	switch c.SinkBackend {
	case "":
		c.SinkBackend = BackendMemory
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("SINK_BACKEND %q is not one of memory, redis, postgres", c.SinkBackend)
	}
	if (c.SessionBackend == BackendRedis || c.SinkBackend == BackendRedis) && c.RedisURL == "" {
		return errors.New("REDIS_URL is required for the redis backend")
	}
	if c.SinkBackend == BackendPostgres && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for the postgres sink")
	}
	return nil
}

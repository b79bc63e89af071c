package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/park285/Cheese-TicTacToe-bot/internal/stats"
	"github.com/redis/go-redis/v9"
)

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Setenv("LOG_LEVEL", "error")
	for _, k := range []string{"TRANSPORT", "SESSION_BACKEND", "SINK_BACKEND", "REDIS_URL", "DATABASE_URL", "TURN_TIMEOUT"} {
		t.Setenv(k, "")
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	envFile := "--env-file=" + filepath.Join(t.TempDir(), "none.env")
	cmd.SetArgs(append([]string{envFile}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	quietEnv(t)
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "tictactoe-bot dev") {
		t.Errorf("expected version output, got: %s", out)
	}
}

func TestRootHelpListsSubcommands(t *testing.T) {
	quietEnv(t)
	out, err := run(t, "--help")
	if err != nil {
		t.Fatalf("root --help failed: %v", err)
	}
	for _, sub := range []string{"serve", "migrate", "top", "history", "iris-check"} {
		if !strings.Contains(out, sub) {
			t.Errorf("root help should list %q", sub)
		}
	}
}

func TestTopEmptyMemorySink(t *testing.T) {
	quietEnv(t)
	out, err := run(t, "top")
	if err != nil {
		t.Fatalf("top failed: %v", err)
	}
	if strings.TrimSpace(out) != "No games played yet." {
		t.Errorf("unexpected output: %q", out)
	}
}

func seedRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	sink := stats.NewRedisSink(rdb, 50)
	ctx := context.Background()
	at := time.Now()
	ann := stats.Player{ID: "1", Name: "Ann"}
	bob := stats.Player{ID: "2", Name: "Bob"}
	for _, step := range []struct {
		p stats.Player
		k stats.Kind
	}{{ann, stats.KindWin}, {bob, stats.KindLoss}, {ann, stats.KindWin}, {bob, stats.KindLoss}} {
		if err := sink.IncrementStat(ctx, step.p, step.k, at); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	for _, text := range []string{"Ann defeated Bob", "Game ended in draw"} {
		if err := sink.AppendHistory(ctx, "room", stats.HistoryEntry{Text: text, At: at}); err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}
	return mr
}

func TestTopAndHistoryFromRedis(t *testing.T) {
	quietEnv(t)
	mr := seedRedis(t)
	t.Setenv("SINK_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())

	out, err := run(t, "top", "-n", "5")
	if err != nil {
		t.Fatalf("top failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got: %q", out)
	}
	if !strings.HasPrefix(lines[1], "1") || !strings.Contains(lines[1], "Ann") {
		t.Errorf("Ann should lead: %q", lines[1])
	}

	out, err = run(t, "history", "room")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	lines = strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], "Game ended in draw") {
		t.Errorf("expected newest first, got: %q", out)
	}
}

func TestHistoryNeedsChat(t *testing.T) {
	quietEnv(t)
	if _, err := run(t, "history"); err == nil {
		t.Fatal("expected an error without a chat argument")
	}
}

func TestServeRejectsMissingConfig(t *testing.T) {
	quietEnv(t)
	t.Setenv("IRIS_BASE_URL", "")
	if _, err := run(t, "serve"); err == nil {
		t.Fatal("serve should fail without IRIS_BASE_URL")
	}
}

func TestMigrateNeedsDatabase(t *testing.T) {
	quietEnv(t)
	if _, err := run(t, "migrate"); err == nil {
		t.Fatal("migrate should fail without DATABASE_URL")
	}
}

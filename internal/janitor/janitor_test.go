package janitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	keeps []int
	n     int64
	err   error
}

func (f *fakePruner) PruneHistory(_ context.Context, keep int) (int64, error) {
	f.keeps = append(f.keeps, keep)
	return f.n, f.err
}

func TestRunOncePassesKeep(t *testing.T) {
	p := &fakePruner{n: 3}
	j, err := New(p, "", 50)
	require.NoError(t, err)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []int{50}, p.keeps)
}

func TestRunOnceDisabled(t *testing.T) {
	p := &fakePruner{n: 3}
	j, err := New(p, "@daily", 0)
	require.NoError(t, err)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, p.keeps)
}

func TestRunOnceError(t *testing.T) {
	j, err := New(&fakePruner{err: errors.New("down")}, "", 10)
	require.NoError(t, err)
	_, err = j.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestSchedules(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)

	j, err := New(&fakePruner{}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), j.Next(now))

	j, err = New(&fakePruner{}, "30 4 * * *", 10)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC), j.Next(now))

	_, err = New(&fakePruner{}, "not a cron expr", 10)
	assert.Error(t, err)
	_, err = New(nil, "", 10)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	j, err := New(&fakePruner{}, "@every 1h", 10)
	require.NoError(t, err)
	j.Start()
	j.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
	j.Stop(ctx)
}

package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expiry struct {
	key  string
	idle string
}

func setup(t *testing.T) (*Supervisor, *session.MemoryStore, *ManualClock, *[]expiry) {
	t.Helper()
	clock := NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := session.NewMemoryStore()
	sup := New(store, 60*time.Second, WithClock(clock))
	var got []expiry
	sup.OnExpire(func(_ context.Context, ended *session.Session, idle session.Identity) {
		got = append(got, expiry{key: ended.Key, idle: idle.ID})
	})
	t.Cleanup(sup.Stop)
	return sup, store, clock, &got
}

func startGame(t *testing.T, store session.Store, clock Clock, key string) *session.Session {
	t.Helper()
	s := session.NewRecruiting(key, key, clock.Now())
	s.Players = []session.Identity{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}
	s.Active = true
	s.GameID = "g-" + key
	s.Seq = 1
	cur, _, err := store.Create(context.Background(), s)
	require.NoError(t, err)
	return cur
}

func move(t *testing.T, store session.Store, clock Clock, key string) *session.Session {
	t.Helper()
	snap, err := store.Mutate(context.Background(), key, func(s *session.Session) (session.Commit, error) {
		s.Turn = 1 - s.Turn
		s.Seq++
		s.LastMoveAt = clock.Now()
		return session.Save, nil
	})
	require.NoError(t, err)
	return snap
}

func TestExpiresAfterWindow(t *testing.T) {
	sup, store, clock, got := setup(t)
	sup.Arm(startGame(t, store, clock, "c1"))

	clock.Advance(59 * time.Second)
	assert.Empty(t, *got)
	assert.True(t, sup.Armed("c1"))

	clock.Advance(time.Second)
	require.Len(t, *got, 1)
	assert.Equal(t, expiry{key: "c1", idle: "a"}, (*got)[0])
	assert.False(t, sup.Armed("c1"))

	s, err := store.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestMoveAtFiftyNineSecondsRestartsWindow(t *testing.T) {
	sup, store, clock, got := setup(t)
	sup.Arm(startGame(t, store, clock, "c1"))

	clock.Advance(59 * time.Second)
	sup.Arm(move(t, store, clock, "c1"))

	clock.Advance(2 * time.Second)
	assert.Empty(t, *got, "old timer must not end the game")

	clock.Advance(57 * time.Second)
	assert.Empty(t, *got)

	clock.Advance(time.Second)
	require.Len(t, *got, 1)
	assert.Equal(t, "b", (*got)[0].idle)
}

func TestStaleTimerLeavesProgressedGame(t *testing.T) {
	sup, store, clock, got := setup(t)
	sup.Arm(startGame(t, store, clock, "c1"))

	clock.Advance(30 * time.Second)
	move(t, store, clock, "c1") // progressed without re-arm

	clock.Advance(30 * time.Second)
	assert.Empty(t, *got)
	s, err := store.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestCancelPreventsExpiry(t *testing.T) {
	sup, store, clock, got := setup(t)
	sup.Arm(startGame(t, store, clock, "c1"))
	sup.Cancel("c1")
	assert.Equal(t, 0, clock.Pending())

	clock.Advance(2 * time.Minute)
	assert.Empty(t, *got)
}

func TestFireAfterSessionRemovedIsNoop(t *testing.T) {
	sup, store, clock, got := setup(t)
	sup.Arm(startGame(t, store, clock, "c1"))
	_, err := store.Remove(context.Background(), "c1")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	assert.Empty(t, *got)
	assert.False(t, sup.Armed("c1"))
}

func TestIndependentKeys(t *testing.T) {
	sup, store, clock, got := setup(t)
	sup.Arm(startGame(t, store, clock, "c1"))
	clock.Advance(30 * time.Second)
	sup.Arm(startGame(t, store, clock, "c2"))

	clock.Advance(30 * time.Second)
	require.Len(t, *got, 1)
	assert.Equal(t, "c1", (*got)[0].key)

	clock.Advance(30 * time.Second)
	require.Len(t, *got, 2)
	assert.Equal(t, "c2", (*got)[1].key)
}

func TestArmIgnoresInactiveSessions(t *testing.T) {
	sup, _, clock, _ := setup(t)
	sup.Arm(session.NewRecruiting("c1", "c1", clock.Now()))
	assert.False(t, sup.Armed("c1"))
}

func TestLateArmOfOlderSnapshotIsIgnored(t *testing.T) {
	sup, store, clock, got := setup(t)
	sup.Arm(startGame(t, store, clock, "c1"))

	clock.Advance(10 * time.Second)
	older := move(t, store, clock, "c1")
	clock.Advance(10 * time.Second)
	sup.Arm(move(t, store, clock, "c1"))
	sup.Arm(older)
	assert.True(t, sup.Armed("c1"))

	clock.Advance(60 * time.Second)
	require.Len(t, *got, 1)
	assert.Equal(t, "a", (*got)[0].idle)
}

func TestStaleTimerRearmsForStoredState(t *testing.T) {
	sup, store, clock, got := setup(t)
	sup.Arm(startGame(t, store, clock, "c1"))

	clock.Advance(30 * time.Second)
	move(t, store, clock, "c1")

	clock.Advance(30 * time.Second)
	assert.Empty(t, *got)
	assert.True(t, sup.Armed("c1"), "stale timer hands over to the stored state")

	clock.Advance(30 * time.Second)
	require.Len(t, *got, 1)
	assert.Equal(t, "b", (*got)[0].idle)
}

func TestClockStepBackKeepsSupervising(t *testing.T) {
	sup, store, clock, got := setup(t)
	s := startGame(t, store, clock, "c1")
	_, err := store.Mutate(context.Background(), "c1", func(cur *session.Session) (session.Commit, error) {
		cur.LastMoveAt = clock.Now().Add(30 * time.Second)
		return session.Save, nil
	})
	require.NoError(t, err)
	sup.Arm(s)

	clock.Advance(60 * time.Second)
	assert.Empty(t, *got)
	assert.True(t, sup.Armed("c1"))

	clock.Advance(30 * time.Second)
	require.Len(t, *got, 1)
}

func TestArmSkipsBotTurn(t *testing.T) {
	sup, _, clock, _ := setup(t)
	s := session.NewRecruiting("c1", "c1", clock.Now())
	s.Players = []session.Identity{{ID: "a"}, session.Bot}
	s.Active = true
	s.Turn = 1
	sup.Arm(s)
	assert.False(t, sup.Armed("c1"))
}

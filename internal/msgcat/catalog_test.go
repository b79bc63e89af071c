package msgcat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	got, err := c.Render("game.timeout", map[string]any{"Name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "Ann took too long! Game ended.", got)

	got, err = c.Render("join.ready", map[string]any{"Prefix": "/"})
	require.NoError(t, err)
	assert.Equal(t, "2 players joined! Use /new to start the game.", got)

	assert.Contains(t, c.Keys(), "leaderboard.row")
}

func TestMissingDataIsError(t *testing.T) {
	c := MustDefault()
	_, err := c.Render("game.timeout", map[string]any{})
	assert.Error(t, err)
	_, err = c.Render("no.such.key", nil)
	assert.Error(t, err)
	assert.Equal(t, "no.such.key", c.Text("no.such.key", nil))
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("game:\n  none: \"Nothing here.\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))

	c, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, "Nothing here.", c.Text("game.none", nil))
	assert.Equal(t, "Board reset.", c.Text("game.reset", nil))
}

func TestDuplicateOverrideKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("game:\n  none: a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("game:\n  none: b\n"), 0o644))
	_, err := New(dir)
	assert.Error(t, err)
}

func TestNonStringLeafRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("game:\n  none: 3\n"), 0o644))
	_, err := New(dir)
	assert.Error(t, err)
}

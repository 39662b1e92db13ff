package pathstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/bookreader/internal/entities"
)

func TestConfiguredPath_FirstRun(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	path, ok := store.ConfiguredPath()
	assert.False(t, ok)
	assert.Empty(t, path)
}

func TestSetConfiguredPath_RejectsInvalid(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	err = store.SetConfiguredPath("")
	assert.ErrorIs(t, err, entities.ErrInvalidPath)

	err = store.SetConfiguredPath("relative/books")
	assert.ErrorIs(t, err, entities.ErrInvalidPath)

	_, ok := store.ConfiguredPath()
	assert.False(t, ok, "invalid path must not be recorded")
}

func TestSetConfiguredPath_SurvivesReopen(t *testing.T) {
	configDir := t.TempDir()
	root := filepath.Join(t.TempDir(), "library")

	store, err := New(configDir)
	require.NoError(t, err)
	require.NoError(t, store.SetConfiguredPath(root))

	// A fresh store over the same directory simulates a process restart.
	reopened, err := New(configDir)
	require.NoError(t, err)

	path, ok := reopened.ConfiguredPath()
	require.True(t, ok)
	assert.Equal(t, root, path)
}

func TestClearConfiguredPath(t *testing.T) {
	configDir := t.TempDir()

	store, err := New(configDir)
	require.NoError(t, err)
	require.NoError(t, store.SetConfiguredPath(filepath.Join(t.TempDir(), "library")))
	require.NoError(t, store.ClearConfiguredPath())

	_, ok := store.ConfiguredPath()
	assert.False(t, ok)

	reopened, err := New(configDir)
	require.NoError(t, err)
	_, ok = reopened.ConfiguredPath()
	assert.False(t, ok, "clear must survive restart")
}

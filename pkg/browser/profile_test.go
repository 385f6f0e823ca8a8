package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedProfileCopiesPreferences(t *testing.T) {
	src := filepath.Join(t.TempDir(), "Preferences")
	require.NoError(t, os.WriteFile(src, []byte(`{"homepage":"https://example.com"}`), 0600))

	dir, err := seedProfile(src)
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	copied, err := os.ReadFile(filepath.Join(dir, "Default", "Preferences"))
	require.NoError(t, err)
	assert.Equal(t, `{"homepage":"https://example.com"}`, string(copied))

	// The source must remain untouched.
	orig, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, `{"homepage":"https://example.com"}`, string(orig))
}

func TestSeedProfileMissingSourceIsNotFatal(t *testing.T) {
	dir, err := seedProfile(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	_, statErr := os.Stat(filepath.Join(dir, "Default", "Preferences"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSeedProfileEmptySource(t *testing.T) {
	dir, err := seedProfile("")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSeedProfileDirsAreDistinct(t *testing.T) {
	a, err := seedProfile("")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(a) })

	b, err := seedProfile("")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(b) })

	assert.NotEqual(t, a, b)
}

func TestSessionCloseNilIsSafe(t *testing.T) {
	var s *session
	s.Close(nil)
}

func TestSessionCloseRemovesProfileDir(t *testing.T) {
	dir, err := seedProfile("")
	require.NoError(t, err)

	s := &session{mode: ModeLaunched, profileDir: dir}
	s.Close(nil)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

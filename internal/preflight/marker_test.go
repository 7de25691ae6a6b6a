package preflight

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeedsCheck_NoMarker(t *testing.T) {
	// Given: a directory without marker file
	tmpDir := t.TempDir()

	// Then: a check is needed
	assert.True(t, NeedsCheck(tmpDir, "1.0.0"))
}

func TestNeedsCheck_WithMarker(t *testing.T) {
	// Given: a fresh marker for this build
	tmpDir := t.TempDir()
	require.NoError(t, MarkPassed(tmpDir, "1.0.0"))

	// Then: no check is needed
	assert.False(t, NeedsCheck(tmpDir, "1.0.0"))
}

func TestNeedsCheck_OtherBuild(t *testing.T) {
	// Given: a marker written by an older build
	tmpDir := t.TempDir()
	require.NoError(t, MarkPassed(tmpDir, "0.9.0"))

	// Then: the new build re-checks
	assert.True(t, NeedsCheck(tmpDir, "1.0.0"))
}

func TestNeedsCheck_ExpiredMarker(t *testing.T) {
	// Given: a marker older than MarkerMaxAge
	tmpDir := t.TempDir()
	old := time.Now().Add(-MarkerMaxAge - time.Hour).UTC().Format(time.RFC3339)
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, MarkerFile), []byte(old+"\n1.0.0\n"), 0o644))

	// Then
	assert.True(t, NeedsCheck(tmpDir, "1.0.0"))
}

func TestNeedsCheck_GarbageMarker(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, MarkerFile), []byte("yesterday"), 0o644))

	assert.True(t, NeedsCheck(tmpDir, "1.0.0"))
	assert.Equal(t, time.Duration(0), MarkerAge(tmpDir))
}

func TestMarkPassed_CreatesDataDir(t *testing.T) {
	// Given: a non-existent data directory
	dataDir := filepath.Join(t.TempDir(), "subdir", ".amanindex")

	// When: marking as passed
	err := MarkPassed(dataDir, "dev")

	// Then: directory and marker file are created
	require.NoError(t, err)
	assert.DirExists(t, dataDir)
	assert.FileExists(t, filepath.Join(dataDir, MarkerFile))
}

func TestClearMarker_RemovesFile(t *testing.T) {
	// Given: a directory with marker file
	tmpDir := t.TempDir()
	require.NoError(t, MarkPassed(tmpDir, "dev"))

	// When: clearing marker
	err := ClearMarker(tmpDir)

	// Then: marker file is removed
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(tmpDir, MarkerFile))
	assert.NoError(t, ClearMarker(tmpDir))
}

func TestMarkerAge(t *testing.T) {
	tmpDir := t.TempDir()
	assert.Equal(t, time.Duration(0), MarkerAge(tmpDir))

	require.NoError(t, MarkPassed(tmpDir, "dev"))

	assert.Less(t, MarkerAge(tmpDir), 2*time.Second)
}

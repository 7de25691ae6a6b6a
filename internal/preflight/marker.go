package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
)

// MarkerFile records a passing check in the data directory.
const MarkerFile = ".preflight-passed"

// MarkerMaxAge is how long a passing check is trusted.
const MarkerMaxAge = 7 * 24 * time.Hour

// NeedsCheck reports whether the checks should run before serving: there is
// no marker, it is older than MarkerMaxAge, or it was written by another
// build.
func NeedsCheck(dataDir, build string) bool {
	passedAt, markerBuild, ok := readMarker(dataDir)
	if !ok {
		return true
	}
	return markerBuild != build || time.Since(passedAt) > MarkerMaxAge
}

// MarkPassed records that the checks passed for build.
func MarkPassed(dataDir, build string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	content := time.Now().UTC().Format(time.RFC3339) + "\n" + build + "\n"
	return renameio.WriteFile(filepath.Join(dataDir, MarkerFile), []byte(content), 0o644)
}

// ClearMarker removes the marker, forcing a re-check on the next run.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago the checks passed, or zero without a marker.
func MarkerAge(dataDir string) time.Duration {
	passedAt, _, ok := readMarker(dataDir)
	if !ok {
		return 0
	}
	return time.Since(passedAt)
}

func readMarker(dataDir string) (time.Time, string, bool) {
	content, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return time.Time{}, "", false
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[0]))
	if err != nil {
		return time.Time{}, "", false
	}
	build := ""
	if len(lines) > 1 {
		build = strings.TrimSpace(lines[1])
	}
	return t, build, true
}

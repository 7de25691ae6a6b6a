//go:build !linux

package crawler

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultRoots returns the filesystem root, or every present drive letter
// on Windows.
func DefaultRoots() []string {
	if runtime.GOOS != "windows" {
		return []string{string(filepath.Separator)}
	}
	var roots []string
	for c := 'A'; c <= 'Z'; c++ {
		root := string(c) + `:\`
		if _, err := os.Stat(root); err == nil {
			roots = append(roots, root)
		}
	}
	return roots
}

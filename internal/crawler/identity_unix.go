//go:build unix

package crawler

import (
	"io/fs"
	"syscall"
)

type dirID struct {
	dev uint64
	ino uint64
}

// visitedSet records directory identities so a directory reachable by two
// routes (bind mounts, mount loops) is walked once.
type visitedSet map[dirID]struct{}

func newVisitedSet() visitedSet { return make(visitedSet) }

// enter marks d visited and reports whether it was new. Entries without
// a readable identity are always entered.
func (v visitedSet) enter(d fs.DirEntry) bool {
	info, err := d.Info()
	if err != nil {
		return true
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return true
	}
	id := dirID{dev: uint64(st.Dev), ino: uint64(st.Ino)}
	if _, seen := v[id]; seen {
		return false
	}
	v[id] = struct{}{}
	return true
}

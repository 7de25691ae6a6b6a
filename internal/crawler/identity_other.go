//go:build !unix

package crawler

import "io/fs"

// visitedSet is a no-op where directory identities are unavailable; the
// depth bound is the only cycle guard there.
type visitedSet struct{}

func newVisitedSet() visitedSet { return visitedSet{} }

func (visitedSet) enter(fs.DirEntry) bool { return true }

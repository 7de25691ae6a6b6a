// Package preflight checks that the host can keep a file index: the data
// directory is writable and has room, the descriptor and inotify limits
// allow the crawler and watcher to run, the roots are readable and the
// embedding provider answers.
//
//	checker := preflight.New(preflight.WithProvider(provider))
//	results := checker.RunAll(ctx, preflight.Target{DataDir: dir, Roots: roots})
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight

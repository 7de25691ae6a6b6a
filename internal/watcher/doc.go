// Package watcher turns filesystem notifications under the indexed roots
// into debounced change batches.
//
// It only wakes the scheduler early; the periodic refresh cycle remains the
// source of truth, so dropped or coalesced events never lose changes.
//
//	n, err := watcher.New(opts)
//	if err != nil {
//	    return err
//	}
//	defer n.Stop()
//
//	err = n.Start(ctx, roots, func(batch []watcher.FileEvent) {
//	    scheduler.Trigger()
//	})
package watcher

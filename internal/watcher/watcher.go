package watcher

import (
	"time"

	"github.com/Aman-CERP/amanindex/internal/crawler"
)

// Operation is the kind of change observed for a path.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change.
type FileEvent struct {
	// Path is absolute.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Notifier.
type Options struct {
	// Crawl supplies the extension, exclusion and depth rules; events for
	// paths the crawler would never visit are dropped.
	Crawl crawler.Options

	// DebounceWindow is the quiet period before a batch is emitted.
	// Default: 2s
	DebounceWindow time.Duration

	// MaxWatches caps the number of watched directories. Directories past
	// the cap are left to the periodic refresh. Default: 8192
	MaxWatches int
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 2 * time.Second,
		MaxWatches:     8192,
	}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = def.DebounceWindow
	}
	if o.MaxWatches <= 0 {
		o.MaxWatches = def.MaxWatches
	}
	return o
}

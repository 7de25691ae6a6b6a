// Package index keeps the persisted vector index in step with the
// filesystem. The Coordinator decides at startup whether the persisted
// index can be reused or must be rebuilt; the Reconciler prunes files
// that disappeared; the Pipeline embeds changed files in batches and
// commits their metadata only once their vectors are stored.
package index

import (
	"fmt"
	"time"
)

// State is the Coordinator lifecycle state.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateReusable      State = "REUSABLE"
	StateMissing       State = "MISSING"
	StateCorrupt       State = "CORRUPT"
	StateRebuilding    State = "REBUILDING"
	StateReady         State = "READY"
	StateUpdating      State = "UPDATING"
	StateFailed        State = "FAILED"
)

// Mode selects the batch size profile of a pipeline run.
type Mode int

const (
	// ModeFull is used after a wipe and takes large batches.
	ModeFull Mode = iota
	// ModeIncremental is used by refresh cycles and takes smaller batches.
	ModeIncremental
)

func (m Mode) String() string {
	if m == ModeIncremental {
		return "incremental"
	}
	return "full"
}

// Verdict is the outcome of validating the persisted index pair.
type Verdict struct {
	State         State
	MetadataCount int
	VectorCount   int
	Reason        string
}

// Outcome names what a build, refresh or rebuild did.
type Outcome string

const (
	OutcomeReused  Outcome = "reused"
	OutcomeRebuilt Outcome = "rebuilt"
	OutcomeUpdated Outcome = "updated"
	OutcomeLocked  Outcome = "locked"
	OutcomePartial Outcome = "partial"

	// OutcomeRebuilding is returned to a force rebuild that arrives while
	// another rebuild is running. Nothing is wiped twice.
	OutcomeRebuilding Outcome = "rebuilding"
)

// RunResult summarizes one pipeline run.
type RunResult struct {
	Processed     int
	Failed        int
	Skipped       int // paths that vanished before they could be embedded
	Batches       int
	FailedBatches int
	Duration      time.Duration
}

// Result is returned by BuildOrRefresh, Refresh and ForceRebuild.
type Result struct {
	Outcome       Outcome
	Verdict       Verdict
	Processed     int
	Failed        int
	Removed       int
	Batches       int
	FailedBatches int
	ScanDuration  time.Duration
	EmbedDuration time.Duration
	Duration      time.Duration
}

// Message renders the result for people.
func (r *Result) Message() string {
	switch r.Outcome {
	case OutcomeReused:
		return fmt.Sprintf("reusing existing index (%d files)", r.Verdict.MetadataCount)
	case OutcomeLocked:
		return "locked: cannot proceed, close other consumers and retry"
	case OutcomePartial:
		return fmt.Sprintf("completed with %d of %d batches failed", r.FailedBatches, r.Batches)
	case OutcomeRebuilt:
		return fmt.Sprintf("rebuilt index with %d files", r.Processed)
	case OutcomeUpdated:
		return fmt.Sprintf("updated %d files, removed %d", r.Processed, r.Removed)
	case OutcomeRebuilding:
		return "rebuild already in progress"
	default:
		return string(r.Outcome)
	}
}

// absorb copies a pipeline run into the result and settles the outcome.
func (r *Result) absorb(run RunResult, success Outcome) {
	r.Processed = run.Processed
	r.Failed = run.Failed
	r.Batches = run.Batches
	r.FailedBatches = run.FailedBatches
	r.EmbedDuration = run.Duration
	r.Outcome = success
	if run.FailedBatches > 0 {
		r.Outcome = OutcomePartial
	}
}

// SearchResult is one ranked path.
type SearchResult struct {
	Path  string  `json:"path"`
	Score float32 `json:"score"`
}

// Stats describes the index for the owning application.
type Stats struct {
	TotalFiles     int       `json:"total_files"`
	LastUpdate     time.Time `json:"last_update"`
	StoreValid     bool      `json:"store_valid"`
	VectorCount    int       `json:"vector_count"`
	State          State     `json:"state"`
	IndexExists    bool      `json:"index_exists"`
	MetadataExists bool      `json:"metadata_exists"`

	// Orphans are graph nodes left behind by replaced or deleted entries
	// until the next compaction. Only known while the index is open.
	Orphans int         `json:"orphans"`
	Roots   []RootStats `json:"roots,omitempty"`
}

// RootStats counts indexed files under one configured root.
type RootStats struct {
	Root  string `json:"root"`
	Files int    `json:"files"`
}

package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SearchEvent is one served search.
type SearchEvent struct {
	Query       string
	ResultCount int
	Latency     time.Duration
}

// SearchSnapshot is an immutable view of SearchStats.
type SearchSnapshot struct {
	TotalQueries      int64         `json:"total_queries"`
	ZeroResultCount   int64         `json:"zero_result_count"`
	ZeroResultQueries []string      `json:"zero_result_queries"`
	TopTerms          []TermCount   `json:"top_terms"`
	AvgLatency        time.Duration `json:"avg_latency"`
	Since             time.Time     `json:"since"`
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// SearchStats tracks recent search activity in memory.
// Thread-safe for concurrent access.
type SearchStats struct {
	mu           sync.Mutex
	terms        *lru.Cache[string, int64]
	zeroResults  *CircularBuffer[string]
	total        int64
	zeroCount    int64
	totalLatency time.Duration
	since        time.Time
}

// NewSearchStats tracks up to termCapacity distinct terms and the last
// zeroCapacity zero-result queries.
func NewSearchStats(termCapacity, zeroCapacity int) *SearchStats {
	if termCapacity <= 0 {
		termCapacity = 100
	}
	terms, _ := lru.New[string, int64](termCapacity)
	return &SearchStats{
		terms:       terms,
		zeroResults: NewCircularBuffer[string](zeroCapacity),
		since:       time.Now(),
	}
}

// Record adds one search.
func (s *SearchStats) Record(e SearchEvent) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.totalLatency += e.Latency
	if e.ResultCount == 0 {
		s.zeroCount++
		s.zeroResults.Add(e.Query)
	}
	for _, term := range ExtractTerms(e.Query) {
		n, _ := s.terms.Get(term)
		s.terms.Add(term, n+1)
	}
}

// Snapshot returns the current aggregates; TopTerms holds at most limit entries.
func (s *SearchStats) Snapshot(limit int) SearchSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SearchSnapshot{
		TotalQueries:      s.total,
		ZeroResultCount:   s.zeroCount,
		ZeroResultQueries: s.zeroResults.Items(),
		Since:             s.since,
	}
	if s.total > 0 {
		snap.AvgLatency = s.totalLatency / time.Duration(s.total)
	}

	for _, term := range s.terms.Keys() {
		n, _ := s.terms.Peek(term)
		snap.TopTerms = append(snap.TopTerms, TermCount{Term: term, Count: n})
	}
	sort.Slice(snap.TopTerms, func(i, j int) bool {
		if snap.TopTerms[i].Count != snap.TopTerms[j].Count {
			return snap.TopTerms[i].Count > snap.TopTerms[j].Count
		}
		return snap.TopTerms[i].Term < snap.TopTerms[j].Term
	})
	if limit > 0 && len(snap.TopTerms) > limit {
		snap.TopTerms = snap.TopTerms[:limit]
	}
	return snap
}

// ExtractTerms lowercases query and returns its words of length three or more.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

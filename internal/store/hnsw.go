package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/google/renameio"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

// Files inside an index directory.
const (
	GraphFileName = "index.hnsw"
	MetaFileName  = "index.hnsw.meta"
	LockFileName  = ".lock"
)

// entry is the bookkeeping for one live document.
type entry struct {
	Key  uint64
	Meta map[string]string
}

// indexMeta is the gob-encoded companion of the graph file.
type indexMeta struct {
	Entries map[string]entry
	NextKey uint64
	Config  Config
}

// HNSWIndex is a VectorIndex backed by coder/hnsw, persisted in a
// directory it holds an exclusive lock on while open.
//
// Replaced and deleted documents are orphaned in the graph rather than
// removed from it; orphans are skipped at search time and dropped when the
// graph is compacted.
type HNSWIndex struct {
	dir  string
	lock *DirLock

	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	config  Config
	entries map[string]entry
	keyMap  map[uint64]string
	nextKey uint64
	dirty   bool
	closed  bool
}

// OpenHNSWIndex opens the index in dir, creating it if absent. It fails
// with an IndexLockedError when another owner holds the directory, and
// with a CorruptIndexError when persisted files cannot be read or were
// built with different dimensions.
func OpenHNSWIndex(dir string, cfg Config) (*HNSWIndex, error) {
	cfg = withDefaults(cfg)

	lock, err := AcquireDirLock(dir)
	if err != nil {
		return nil, err
	}

	idx := &HNSWIndex{
		dir:     dir,
		lock:    lock,
		config:  cfg,
		graph:   newGraph(cfg),
		entries: make(map[string]entry),
		keyMap:  make(map[uint64]string),
	}

	if Exists(dir) {
		if err := idx.load(cfg.Dimensions); err != nil {
			_ = lock.Release()
			return nil, err
		}
	}
	return idx, nil
}

// ResetHNSWIndex wipes dir and returns an empty index over it. The lock is
// taken before anything is deleted and kept by the returned index, so no
// other owner can slip in between the wipe and the recreate. A lock still
// held after grace yields IndexLockedError and leaves dir untouched.
func ResetHNSWIndex(dir string, cfg Config, grace time.Duration) (*HNSWIndex, error) {
	cfg = withDefaults(cfg)

	lock, err := acquireDirLockWithin(dir, grace)
	if err != nil {
		return nil, err
	}
	if err := removeIndexFiles(dir); err != nil {
		_ = lock.Release()
		return nil, err
	}

	return &HNSWIndex{
		dir:     dir,
		lock:    lock,
		config:  cfg,
		graph:   newGraph(cfg),
		entries: make(map[string]entry),
		keyMap:  make(map[uint64]string),
		dirty:   true,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return cfg
}

func newGraph(cfg Config) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	if cfg.Metric == "l2" {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Exists reports whether dir holds a persisted index.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, MetaFileName))
	return err == nil
}

// ReadCount returns the number of live entries recorded in dir without
// opening the graph or taking the lock.
func ReadCount(dir string) (int, error) {
	meta, err := readMeta(filepath.Join(dir, MetaFileName))
	if err != nil {
		return 0, err
	}
	return len(meta.Entries), nil
}

// Dir returns the index directory.
func (s *HNSWIndex) Dir() string { return s.dir }

// Upsert inserts or replaces documents by ID.
func (s *HNSWIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	if s.config.Dimensions == 0 {
		s.config.Dimensions = len(docs[0].Vector)
	}
	for _, d := range docs {
		if len(d.Vector) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(d.Vector)}
		}
	}

	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if old, ok := s.entries[d.ID]; ok {
			delete(s.keyMap, old.Key)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(d.Vector))
		copy(vec, d.Vector)
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}
		s.graph.Add(hnsw.MakeNode(key, vec))

		meta := make(map[string]string, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			meta[k] = v
		}
		if _, ok := meta[MetaPath]; !ok {
			meta[MetaPath] = d.ID
		}
		s.entries[d.ID] = entry{Key: key, Meta: meta}
		s.keyMap[key] = d.ID
	}
	s.dirty = true
	return nil
}

// SimilaritySearch returns up to k live entries nearest to query.
func (s *HNSWIndex) SimilaritySearch(ctx context.Context, query []float32, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}
	if k <= 0 || len(s.entries) == 0 {
		return []Result{}, nil
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(q)
	}

	// Over-fetch when orphans could crowd live entries out of the top k.
	fetch := k
	if orphans := s.graph.Len() - len(s.entries); orphans > 0 {
		fetch = min(s.graph.Len(), k+orphans, k*4)
	}

	nodes := s.graph.Search(q, fetch)
	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		dist := s.graph.Distance(q, node.Value)
		results = append(results, Result{
			ID:       id,
			Metadata: s.entries[id].Meta,
			Distance: dist,
			Score:    distanceToScore(dist, s.config.Metric),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteWhere removes entries whose metadata field equals value.
func (s *HNSWIndex) DeleteWhere(ctx context.Context, field, value string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errClosed
	}

	var ids []string
	if field == MetaPath {
		// IDs are paths unless a caller set a different path explicitly.
		if e, ok := s.entries[value]; ok && e.Meta[MetaPath] == value {
			ids = append(ids, value)
		}
	}
	if len(ids) == 0 {
		for id, e := range s.entries {
			if e.Meta[field] == value {
				ids = append(ids, id)
			}
		}
	}

	for _, id := range ids {
		delete(s.keyMap, s.entries[id].Key)
		delete(s.entries, id)
	}
	if len(ids) > 0 {
		s.dirty = true
	}
	return len(ids), nil
}

// Count returns the number of live entries.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats describes graph occupancy.
type Stats struct {
	Live       int
	GraphNodes int
	Orphans    int
}

// Stats returns live, total and orphaned node counts.
func (s *HNSWIndex) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}
	}
	n := s.graph.Len()
	return Stats{Live: len(s.entries), GraphNodes: n, Orphans: n - len(s.entries)}
}

// Flush writes the graph then its metadata, each via temp file and rename.
// It compacts first when orphans exceed Config.CompactRatio.
func (s *HNSWIndex) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	if !s.dirty && Exists(s.dir) {
		return nil
	}

	if s.shouldCompact() {
		s.compact()
	}

	graphPath := filepath.Join(s.dir, GraphFileName)
	if s.graph.Len() > 0 {
		if err := writeAtomic(graphPath, s.graph.Export); err != nil {
			return fmt.Errorf("failed to save graph: %w", err)
		}
	} else if err := os.Remove(graphPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove empty graph: %w", err)
	}

	meta := indexMeta{Entries: s.entries, NextKey: s.nextKey, Config: s.config}
	if err := writeAtomic(filepath.Join(s.dir, MetaFileName), func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(meta)
	}); err != nil {
		return fmt.Errorf("failed to save index metadata: %w", err)
	}

	s.dirty = false
	return nil
}

func (s *HNSWIndex) shouldCompact() bool {
	n := s.graph.Len()
	if s.config.CompactRatio <= 0 || n == 0 {
		return false
	}
	return float64(n-len(s.entries))/float64(n) > s.config.CompactRatio
}

// compact rebuilds the graph from live nodes only.
func (s *HNSWIndex) compact() {
	before := s.graph.Len()
	g := newGraph(s.config)
	keyMap := make(map[uint64]string, len(s.entries))
	for id, e := range s.entries {
		vec, ok := s.graph.Lookup(e.Key)
		if !ok {
			continue
		}
		g.Add(hnsw.MakeNode(e.Key, vec))
		keyMap[e.Key] = id
	}
	s.graph = g
	s.keyMap = keyMap
	slog.Info("index_compacted",
		slog.Int("nodes_before", before),
		slog.Int("nodes_after", g.Len()))
}

// writeAtomic writes path through a renameio pending file.
func writeAtomic(path string, write func(io.Writer) error) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer func() { _ = t.Cleanup() }()

	w := bufio.NewWriter(t)
	if err := write(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}

// Close flushes pending writes and releases the directory lock.
func (s *HNSWIndex) Close() error {
	flushErr := s.Flush()
	if errors.Is(flushErr, errClosed) {
		return nil
	}
	if flushErr != nil {
		slog.Warn("index_flush_on_close_failed", slog.String("error", flushErr.Error()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	if err := s.lock.Release(); err != nil {
		return err
	}
	return flushErr
}

var errClosed = errors.New("index is closed")

func (s *HNSWIndex) load(wantDims int) error {
	meta, err := readMeta(filepath.Join(s.dir, MetaFileName))
	if err != nil {
		return amerrors.CorruptIndexError("index metadata unreadable", err)
	}
	if wantDims > 0 && meta.Config.Dimensions > 0 && meta.Config.Dimensions != wantDims {
		return amerrors.CorruptIndexError("index was built with different dimensions",
			ErrDimensionMismatch{Expected: wantDims, Got: meta.Config.Dimensions})
	}

	graphPath := filepath.Join(s.dir, GraphFileName)
	f, err := os.Open(graphPath)
	switch {
	case os.IsNotExist(err) && len(meta.Entries) == 0:
		// An empty index persists no graph.
	case err != nil:
		return amerrors.CorruptIndexError("index graph missing", err)
	default:
		defer f.Close()
		// Import needs an io.ByteReader.
		if err := s.graph.Import(bufio.NewReader(f)); err != nil {
			return amerrors.CorruptIndexError("index graph unreadable", err)
		}
	}

	s.entries = meta.Entries
	if s.entries == nil {
		s.entries = make(map[string]entry)
	}
	s.nextKey = meta.NextKey
	if meta.Config.Dimensions > 0 {
		s.config.Dimensions = meta.Config.Dimensions
	}
	s.keyMap = make(map[uint64]string, len(s.entries))
	for id, e := range s.entries {
		s.keyMap[e.Key] = id
	}
	return nil
}

func readMeta(path string) (*indexMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var meta indexMeta
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode index metadata: %w", err)
	}
	return &meta, nil
}

var _ VectorIndex = (*HNSWIndex)(nil)

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps cosine distance [0,2] or L2 distance [0,inf) onto
// a similarity in [0,1].
func distanceToScore(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}

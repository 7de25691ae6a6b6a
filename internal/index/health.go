package index

// HealthPolicy judges whether a persisted vector index is consistent with
// the metadata table it was saved with.
type HealthPolicy interface {
	IsHealthy(metadataCount, vectorCount int) bool
}

// Default RatioPolicy values.
const (
	DefaultMinRatio            = 0.5
	DefaultEmptyIndexTolerance = 100
)

// RatioPolicy treats an index as corrupt when it holds fewer than MinRatio
// vectors per metadata record, or is empty while the table has more than
// EmptyIndexTolerance records. The ratio is a heuristic; a lost tail of
// upserts looks the same as a partial write.
type RatioPolicy struct {
	MinRatio            float64
	EmptyIndexTolerance int
}

// DefaultHealthPolicy returns RatioPolicy{0.5, 100}.
func DefaultHealthPolicy() RatioPolicy {
	return RatioPolicy{MinRatio: DefaultMinRatio, EmptyIndexTolerance: DefaultEmptyIndexTolerance}
}

// IsHealthy implements HealthPolicy.
func (p RatioPolicy) IsHealthy(metadataCount, vectorCount int) bool {
	if vectorCount == 0 && metadataCount > p.EmptyIndexTolerance {
		return false
	}
	return float64(vectorCount) >= p.MinRatio*float64(metadataCount)
}

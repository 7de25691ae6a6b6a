package config

import "time"

// PipelineSettings is a PipelineConfig with every profile default filled in.
type PipelineSettings struct {
	BatchSize            int
	IncrementalBatchSize int
	Workers              int
	InterBatchDelay      time.Duration
	MaxRetries           int
	RetryDelay           time.Duration
	FlushEvery           int
}

// profileDefaults mirror the two provider classes: a local model that can
// take thousands of paths per call, and a metered remote API.
var profileDefaults = map[string]PipelineSettings{
	ProfileLocal: {
		BatchSize:            2000,
		IncrementalBatchSize: 500,
		Workers:              4,
		InterBatchDelay:      100 * time.Millisecond,
	},
	ProfileRemote: {
		BatchSize:            100,
		IncrementalBatchSize: 50,
		Workers:              1,
		InterBatchDelay:      time.Second,
	},
}

// Settings resolves p against its profile.
func (p PipelineConfig) Settings() PipelineSettings {
	s, ok := profileDefaults[p.Profile]
	if !ok {
		s = profileDefaults[ProfileLocal]
	}

	if p.BatchSize > 0 {
		s.BatchSize = p.BatchSize
	}
	if p.IncrementalBatchSize > 0 {
		s.IncrementalBatchSize = p.IncrementalBatchSize
	}
	if p.Workers > 0 {
		s.Workers = p.Workers
	}
	s.InterBatchDelay = ParseDuration(p.InterBatchDelay, s.InterBatchDelay)
	s.MaxRetries = p.MaxRetries
	s.RetryDelay = ParseDuration(p.RetryDelay, time.Second)
	s.FlushEvery = p.FlushEvery
	if s.FlushEvery <= 0 {
		s.FlushEvery = 5
	}
	return s
}

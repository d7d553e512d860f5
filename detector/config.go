package detector

// Config is the detection configuration consumed by Initialize. Zero values
// fall back to the stated defaults; Metrics has no default and is required.
type Config struct {
	WindowSize      int      // default 100
	StdDevThreshold float64  // default 3.0
	MinSamples      int      // default 10
	Metrics         []string // required, non-empty

	UseIQR        bool
	IQRMultiplier float64 // default 1.5

	UseMAD       bool
	MADThreshold float64 // default 3.0

	// PreferredBatchSize caps the chunk size used by DetectBatch.
	PreferredBatchSize int // default 50
}

func (c *Config) applyDefaults() {
	if c.WindowSize == 0 {
		c.WindowSize = 100
	}
	if c.StdDevThreshold == 0 {
		c.StdDevThreshold = 3.0
	}
	if c.MinSamples == 0 {
		c.MinSamples = 10
	}
	if c.IQRMultiplier == 0 {
		c.IQRMultiplier = 1.5
	}
	if c.MADThreshold == 0 {
		c.MADThreshold = 3.0
	}
	if c.PreferredBatchSize == 0 {
		c.PreferredBatchSize = 50
	}
}

func (c *Config) validate() error {
	if c.WindowSize <= 0 {
		return &ConfigError{Field: "window_size", Reason: "must be positive"}
	}
	if c.StdDevThreshold <= 0 {
		return &ConfigError{Field: "std_dev_threshold", Reason: "must be positive"}
	}
	if c.MinSamples < 2 {
		return &ConfigError{Field: "min_samples", Reason: "must be at least 2"}
	}
	if c.MinSamples > c.WindowSize {
		return &ConfigError{Field: "min_samples", Reason: "must not exceed window_size"}
	}
	if len(c.Metrics) == 0 {
		return &ConfigError{Field: "metrics", Reason: "must name at least one metric"}
	}
	if c.IQRMultiplier <= 0 {
		return &ConfigError{Field: "iqr_multiplier", Reason: "must be positive"}
	}
	if c.MADThreshold <= 0 {
		return &ConfigError{Field: "mad_threshold", Reason: "must be positive"}
	}
	if c.PreferredBatchSize <= 0 {
		return &ConfigError{Field: "preferred_batch_size", Reason: "must be positive"}
	}
	return nil
}

package models

import (
	"errors"
	"time"
)

// Sample is one timestamped set of metric-name -> value pairs submitted
// for detection. Source identifies the producer and keys worker dispatch;
// it may be empty for single-producer setups.
type Sample struct {
	Timestamp float64            `json:"timestamp"`
	Source    string             `json:"source,omitempty"`
	Values    map[string]float64 `json:"values"`
}

func (s *Sample) Validate() error {
	if s.Timestamp <= 0 {
		return errors.New("timestamp must be positive unix seconds")
	}

	if len(s.Values) == 0 {
		return errors.New("values is required and must be non-empty")
	}

	return nil
}

func (s *Sample) Time() time.Time {
	return time.Unix(0, int64(s.Timestamp*float64(time.Second)))
}

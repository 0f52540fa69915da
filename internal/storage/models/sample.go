package models

import "time"

// Sample represents one parsed probe output line for a device
type Sample struct {
	ID        int64     `json:"id"`
	Address   string    `json:"address"`
	LatencyMs *float64  `json:"latency_ms,omitempty"` // NULL when the line carried no timing
	Status    Status    `json:"status"`
	ProbedAt  time.Time `json:"probed_at"`
}

// Success reports whether the sample carried a latency value.
func (s *Sample) Success() bool {
	return s.LatencyMs != nil
}

// HistorySummary aggregates the samples of one device
type HistorySummary struct {
	Address   string
	Total     int
	Succeeded int
	MinMs     *float64
	AvgMs     *float64
	MaxMs     *float64
	First     *time.Time
	Last      *time.Time
}

// LossPercent returns the share of samples without a latency value.
func (h *HistorySummary) LossPercent() float64 {
	if h.Total == 0 {
		return 0
	}
	return float64(h.Total-h.Succeeded) / float64(h.Total) * 100
}

// Package latency turns raw probe output into latency values and status bands.
package latency

import (
	"regexp"
	"strconv"

	"pingmon/internal/storage/models"
)

// timePattern matches "time=45ms", "time<1ms" and "time=0.045 ms" in any case.
var timePattern = regexp.MustCompile(`(?i)\btime[=<]\s*(\d+(?:\.\d+)?)\s*ms\b`)

// Parse extracts the round-trip time in milliseconds from one line of probe output.
// The second return value is false when the line carries no recognizable timing token.
func Parse(line string) (float64, bool) {
	m := timePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	ms, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// ParsePtr is Parse with the result as a nullable value.
func ParsePtr(line string) *float64 {
	ms, ok := Parse(line)
	if !ok {
		return nil
	}
	return &ms
}

// Band thresholds in milliseconds. Each band includes its lower bound.
const (
	NormalThresholdMs   = 50.0
	SlowThresholdMs     = 100.0
	VerySlowThresholdMs = 200.0
)

// Classify maps an optional latency to its status band. No value means DOWN.
func Classify(ms *float64) models.Status {
	if ms == nil {
		return models.StatusDown
	}
	switch v := *ms; {
	case v < NormalThresholdMs:
		return models.StatusFast
	case v < SlowThresholdMs:
		return models.StatusNormal
	case v < VerySlowThresholdMs:
		return models.StatusSlow
	default:
		return models.StatusVerySlow
	}
}

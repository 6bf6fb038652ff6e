package monitor

import "time"

// RequestMetrics is one recorded request against a serving endpoint.
type RequestMetrics struct {
	Operation   string        `json:"operation"`
	Duration    time.Duration `json:"duration"`
	Sources     int           `json:"sources"`
	Success     bool          `json:"success"`
	EvidenceGap bool          `json:"evidence_gap"`
	Error       string        `json:"error,omitempty"`
}

// OperationStats summarizes all requests seen for one operation.
type OperationStats struct {
	Requests     int           `json:"requests"`
	Failures     int           `json:"failures"`
	EvidenceGaps int           `json:"evidence_gaps"`
	TotalSources int           `json:"total_sources"`
	AvgDuration  time.Duration `json:"avg_duration"`
}

// ServiceMetrics is the aggregate view exposed by the stats endpoint.
type ServiceMetrics struct {
	Operations map[string]OperationStats `json:"operations"`
	StartTime  time.Time                 `json:"start_time"`
	Uptime     time.Duration             `json:"uptime"`
}

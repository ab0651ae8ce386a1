package store

import "time"

// CheckRecord is one persisted check.
type CheckRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Operation string    `json:"operation"` // "check", "classify", "ensure" or "redact"
	Sanitized string    `json:"sanitized"`
	SizeBytes int       `json:"size_bytes"`
	Safe      bool      `json:"safe"`
	Label     string    `json:"label"`
	Severity  string    `json:"severity"`
	Triggers  []string  `json:"triggers,omitempty"`
	Redacted  int       `json:"redacted,omitempty"`
}

// QueryFilter specifies filters for querying check records.
type QueryFilter struct {
	Source    string
	Operation string
	Severity  string
	Label     string
	Trigger   string
	Since     *time.Time
	Limit     int
	Offset    int
}

// Stats holds aggregate statistics over recorded checks.
type Stats struct {
	TotalChecks     int            `json:"total_checks"`
	RestrictedCount int            `json:"restricted_count"`
	AllowedCount    int            `json:"allowed_count"`
	RedactedCount   int            `json:"redacted_count"`
	TotalBytes      int64          `json:"total_bytes"`
	SeverityCounts  map[string]int `json:"severity_counts"`
	TriggerCounts   map[string]int `json:"trigger_counts"`
	SourceCounts    map[string]int `json:"source_counts"`
}

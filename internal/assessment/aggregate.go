// Package assessment reduces raw assessment history into display-ready
// aggregates for one identity.
package assessment

import "github.com/asthmacare/companion/internal/domain"

// Comparison is the two-point latest-vs-previous severity series.
type Comparison struct {
	Previous int `json:"previous"`
	Latest   int `json:"latest"`
}

// Bucket is one histogram bar, carrying the canonical label and color
// for its severity level.
type Bucket struct {
	Severity domain.Severity `json:"severity"`
	Label    string          `json:"label"`
	Color    string          `json:"color"`
	Count    int             `json:"count"`
}

// Summary is the aggregated view of one identity's history.
type Summary struct {
	// Records are the valid records in server-provided order.
	Records []domain.HistoryRecord `json:"records"`
	// Histogram counts records per severity level; out-of-range
	// severities are excluded, not given a fifth bucket.
	Histogram [domain.NumSeverityLevels]int `json:"histogram"`
	// Comparison is present only when two or more valid records exist.
	Comparison *Comparison `json:"comparison,omitempty"`
}

// Empty reports the "no assessments yet" condition. It is a state, not
// an error.
func (s Summary) Empty() bool {
	return len(s.Records) == 0
}

// Buckets returns the histogram joined with the severity table, ready
// for chart rendering.
func (s Summary) Buckets() []Bucket {
	buckets := make([]Bucket, domain.NumSeverityLevels)
	for i := range buckets {
		sev := domain.Severity(i)
		buckets[i] = Bucket{
			Severity: sev,
			Label:    sev.Label(),
			Color:    sev.Color(),
			Count:    s.Histogram[i],
		}
	}
	return buckets
}

// Aggregate filters records to the given identity, drops incomplete
// entries silently, and derives the histogram and the latest-vs-previous
// comparison. It is a pure function: same inputs, same outputs, no
// network access and no hidden state.
func Aggregate(records []domain.HistoryRecord, identity string) Summary {
	var summary Summary

	for _, rec := range records {
		if rec.Username != identity || !rec.Complete() {
			continue
		}
		summary.Records = append(summary.Records, rec)

		if sev := domain.Severity(*rec.Severity); sev.Valid() {
			summary.Histogram[sev]++
		}
	}

	// "Latest" is positional: the server's order is preserved rather
	// than re-sorted by timestamp.
	if n := len(summary.Records); n >= 2 {
		summary.Comparison = &Comparison{
			Previous: *summary.Records[n-2].Severity,
			Latest:   *summary.Records[n-1].Severity,
		}
	}

	return summary
}

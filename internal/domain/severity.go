// Package domain contains core domain types for the AsthmaCare companion.
package domain

// Severity is the ordinal 0-3 classification of an asthma assessment.
type Severity int

const (
	SeverityControlled Severity = 0
	SeverityMild       Severity = 1
	SeverityModerate   Severity = 2
	SeveritySevere     Severity = 3
)

// NumSeverityLevels is the number of valid severity buckets.
const NumSeverityLevels = 4

// severityTable is the single source of truth for labels and display colors.
// Both the aggregator and any presentation layer consume it.
var severityTable = [NumSeverityLevels]struct {
	label string
	color string
}{
	{"Controlled", "#4caf50"},
	{"Mild", "#ffeb3b"},
	{"Moderate", "#ff9800"},
	{"Severe", "#f44336"},
}

// Valid reports whether s falls inside the four defined levels.
func (s Severity) Valid() bool {
	return s >= SeverityControlled && s <= SeveritySevere
}

// Label returns the human-readable name for the level, or "Unknown"
// for out-of-range values.
func (s Severity) Label() string {
	if !s.Valid() {
		return "Unknown"
	}
	return severityTable[s].label
}

// Color returns the display color associated with the level.
func (s Severity) Color() string {
	if !s.Valid() {
		return "#9e9e9e"
	}
	return severityTable[s].color
}

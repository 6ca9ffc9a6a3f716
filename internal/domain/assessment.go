package domain

import "encoding/json"

// SymptomReport is one filled-in symptom checklist, consumed exactly once
// on submission.
type SymptomReport struct {
	Tiredness           bool   `json:"tiredness"`
	DryCough            bool   `json:"dry_cough"`
	DifficultyBreathing bool   `json:"difficulty_breathing"`
	SoreThroat          bool   `json:"sore_throat"`
	NasalCongestion     bool   `json:"nasal_congestion"`
	RunnyNose           bool   `json:"runny_nose"`
	Age                 string `json:"age"`
	Gender              string `json:"gender"`
}

// Resource is one helpful link attached to an assessment result.
type Resource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// AssessmentResult is the prediction service's response to a submitted
// symptom report.
type AssessmentResult struct {
	Severity       Severity   `json:"severity"`
	Recommendation string     `json:"recommendation"`
	Resources      []Resource `json:"resources"`
}

// HistoryRecord is one archived assessment as returned by the results
// endpoint. Optional fields stay nil when the server omits them so the
// aggregator can drop incomplete records instead of miscounting them.
type HistoryRecord struct {
	Username       string      `json:"username"`
	Symptoms       []int       `json:"symptoms"`
	Age            json.Number `json:"age"`
	Gender         string      `json:"gender"`
	Severity       *int        `json:"severity"`
	Recommendation string      `json:"recommendation"`
	Timestamp      *string     `json:"timestamp"`
}

// Complete reports whether the record carries everything the dashboard
// needs: an array-shaped symptom list plus defined severity and timestamp.
func (r HistoryRecord) Complete() bool {
	return r.Symptoms != nil && r.Severity != nil && r.Timestamp != nil
}

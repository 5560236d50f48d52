package domain

import "time"

// UrgencyFactors are the situational inputs to the urgency classifier.
// Zero values mean "not applicable".
type UrgencyFactors struct {
	BlockingCount int
	DaysWaiting   int
	SprintRisk    bool
	DueDate       *time.Time
	IsFollowUp    bool
	IsOrgSignal   bool
}

// RawSignal is an adapter's normalized output, before classification and persistence.
type RawSignal struct {
	Type       ItemType
	Source     Source
	ExternalID string
	SourceURL  string
	Text       string
	Timestamp  time.Time
	Metadata   map[string]any
	Factors    UrgencyFactors

	// Urgency, when set, bypasses the classifier (calendar summaries, search hits).
	Urgency Urgency
}

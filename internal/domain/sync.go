package domain

import "time"

// GenerateStats holds statistics about a generation run.
type GenerateStats struct {
	Providers      int           `json:"providers"`
	ProviderErrors int           `json:"provider_errors"`
	Fetched        int           `json:"fetched"`
	Created        int           `json:"created"`
	Existing       int           `json:"existing"`
	Errors         int           `json:"errors"`
	Published      int           `json:"published"`
	Partial        bool          `json:"partial"`
	Duration       time.Duration `json:"duration"`
}

// GenerationState tracks the last generation run per user.
type GenerationState struct {
	ID              int64      `db:"id"`
	UserID          string     `db:"user_id"`
	LastGeneratedAt *time.Time `db:"last_generated_at"`
	LastItemCount   int        `db:"last_item_count"`
	TotalCreated    int64      `db:"total_created"`
}

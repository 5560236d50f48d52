package domain

import "time"

// ItemType distinguishes regular work items from the daily calendar summary.
type ItemType string

const (
	ItemTypeItem     ItemType = "item"
	ItemTypeCalendar ItemType = "calendar"
)

// Source names the origin of a brief item.
type Source string

const (
	SourceSlack    Source = "slack"
	SourceGitHub   Source = "github"
	SourceJira     Source = "jira"
	SourceCalendar Source = "calendar"
	SourceGeneric  Source = "generic"
)

// Urgency is one of the five classification tiers.
type Urgency string

const (
	UrgencyUrgent    Urgency = "urgent"
	UrgencyAttention Urgency = "attention"
	UrgencyFollowUp  Urgency = "followup"
	UrgencyOrg       Urgency = "org"
	UrgencyFYI       Urgency = "fyi"
)

// Rank orders tiers for display: lower is more urgent.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyUrgent:
		return 1
	case UrgencyAttention:
		return 2
	case UrgencyFollowUp:
		return 3
	case UrgencyOrg:
		return 4
	default:
		return 5
	}
}

// Valid reports whether u is a known tier.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyUrgent, UrgencyAttention, UrgencyFollowUp, UrgencyOrg, UrgencyFYI:
		return true
	}
	return false
}

type BriefItem struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Type        ItemType       `json:"type"`
	Source      Source         `json:"source"`
	Urgency     Urgency        `json:"urgency"`
	Text        string         `json:"text"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ExternalID  *string        `json:"external_id,omitempty"`
	ExternalURL *string        `json:"external_url,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
}

// HasExternalID reports whether the item carries a natural key.
func (i *BriefItem) HasExternalID() bool {
	return i.ExternalID != nil && *i.ExternalID != ""
}

// Brief is the outcome of one generation run.
type Brief struct {
	UserID string        `json:"user_id"`
	Items  []BriefItem   `json:"items"`
	Stats  GenerateStats `json:"stats"`
}

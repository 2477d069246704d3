package campaign

import "time"

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused, StatusCompleted, StatusArchived:
		return true
	default:
		return false
	}
}

// AgentLanguage selects the voice-agent language at the call runtime.
type AgentLanguage int

const (
	LanguageEnglish AgentLanguage = 1
	LanguageItalian AgentLanguage = 2
	LanguageSpanish AgentLanguage = 3
	LanguageFrench  AgentLanguage = 4
)

// Campaign holds the scheduling parameters for one outbound campaign.
type Campaign struct {
	ID       string
	BrokerID string
	Name     string
	Funnel   string
	Country  string
	Status   Status

	ConcurrencyLimit     int
	MaxAttempts          int
	RetryIntervalMinutes int

	// Call window, evaluated in the campaign timezone, inclusive bounds.
	WindowStart string // "HH:MM"
	WindowEnd   string // "HH:MM"
	Timezone    string

	AgentLanguage AgentLanguage

	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RetryInterval returns the configured retry delay.
func (c Campaign) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMinutes) * time.Minute
}

// Script is one version of the campaign's calling script.
type Script struct {
	CampaignID string
	Version    string
	Body       string
}

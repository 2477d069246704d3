package activity

import "time"

// Event is an immutable, append-only campaign activity record.
//
// Invariants:
// - Events are never updated or deleted.
// - campaign_id is required.
// - Activity logging is best-effort; do not block dialing flows on it.

type Event struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	LeadID     string `json:"lead_id,omitempty" db:"lead_id"`

	// Type indicates the business category of the record.
	Type EventType `json:"type" db:"type"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallPlaced     EventType = "call_placed"
	EventTypeCallFailed     EventType = "call_failed"
	EventTypeRetryScheduled EventType = "retry_scheduled"
	EventTypeRetryRequeued  EventType = "retry_requeued"
	EventTypeStatusChange   EventType = "status_change"
	EventTypeTransfer       EventType = "transfer"
	EventTypeCRMDelivery    EventType = "crm_delivery"
	EventTypeCompleted      EventType = "campaign_completed"
)

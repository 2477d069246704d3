package event

import "time"

// Type is the closed set of webhook event types the call runtime sends.
// Adding a case here is a compile-time decision; unknown strings on the
// wire are accepted and ignored for forward compatibility.
type Type string

const (
	TypeCallStarted       Type = "call_started"
	TypeHumanDetected     Type = "human_detected"
	TypeVoicemailDetected Type = "voicemail_detected"
	TypeNoAnswer          Type = "no_answer"
	TypeAIClassification  Type = "ai_classification"
	TypeTransferStarted   Type = "transfer_started"
	TypeTransferCompleted Type = "transfer_completed"
	TypeCallEnded         Type = "call_ended"
)

func (t Type) Known() bool {
	switch t {
	case TypeCallStarted, TypeHumanDetected, TypeVoicemailDetected, TypeNoAnswer,
		TypeAIClassification, TypeTransferStarted, TypeTransferCompleted, TypeCallEnded:
		return true
	default:
		return false
	}
}

// Webhook is the inbound call-outcome payload. Event is the only
// required field; lead resolution uses LeadID first, then Phone.
type Webhook struct {
	Event  string `json:"event"`
	CallID string `json:"call_id,omitempty"`
	LeadID string `json:"lead_id,omitempty"`
	Phone  string `json:"phone,omitempty"`

	Classification string  `json:"classification,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	Transcript     string  `json:"transcript,omitempty"`
	Summary        string  `json:"summary,omitempty"`

	Outcome         string `json:"outcome,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`

	AppointmentDate  string `json:"appointment_date,omitempty"`
	AppointmentNotes string `json:"appointment_notes,omitempty"`
}

// CallLog is the immutable record of one received event.
type CallLog struct {
	ID             string
	LeadID         string
	CampaignID     string
	ExternalCallID string
	EventType      string
	Payload        string

	Classification string
	Confidence     float64
	Transcript     string
	Summary        string

	CreatedAt time.Time
}

// metricFor maps event types to the coarse stat counters. Not every
// event feeds a counter.
func metricFor(t Type) (string, bool) {
	switch t {
	case TypeCallStarted:
		return "total_calls", true
	case TypeHumanDetected:
		return "human_detected", true
	case TypeVoicemailDetected:
		return "voicemail_detected", true
	case TypeNoAnswer:
		return "no_answer", true
	case TypeAIClassification:
		return "classifications", true
	case TypeTransferStarted:
		return "transfers", true
	case TypeCallEnded:
		return "calls_ended", true
	default:
		return "", false
	}
}

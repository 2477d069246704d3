package lead

import "time"

// Status is the closed set of lead lifecycle states.
//
// Happy path:
//   new -> queued -> called -> human -> curious/activation_requested
//   -> transferred -> closed
// Branches: voicemail, not_interested, failed; archived is a side exit.
// A no_answer outcome leaves the status unchanged (the lead stays called
// and is re-queued by the retry sweep).
type Status string

const (
	StatusNew                 Status = "new"
	StatusQueued              Status = "queued"
	StatusCalled              Status = "called"
	StatusHuman               Status = "human"
	StatusVoicemail           Status = "voicemail"
	StatusNotInterested       Status = "not_interested"
	StatusCurious             Status = "curious"
	StatusActivationRequested Status = "activation_requested"
	StatusTransferred         Status = "transferred"
	StatusClosed              Status = "closed"
	StatusFailed              Status = "failed"
	StatusArchived            Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusQueued, StatusCalled, StatusHuman, StatusVoicemail,
		StatusNotInterested, StatusCurious, StatusActivationRequested,
		StatusTransferred, StatusClosed, StatusFailed, StatusArchived:
		return true
	default:
		return false
	}
}

// transitions is the allowed forward edges of the lifecycle.
// Any status may move to archived.
var transitions = map[Status][]Status{
	StatusNew:                 {StatusQueued},
	StatusQueued:              {StatusCalled},
	StatusCalled:              {StatusHuman, StatusVoicemail, StatusQueued, StatusNotInterested, StatusCurious, StatusActivationRequested, StatusFailed},
	StatusHuman:               {StatusNotInterested, StatusCurious, StatusActivationRequested, StatusTransferred, StatusQueued},
	StatusVoicemail:           {StatusQueued},
	StatusNotInterested:       {StatusQueued},
	StatusCurious:             {StatusQueued, StatusTransferred},
	StatusActivationRequested: {StatusTransferred, StatusCalled},
	StatusTransferred:         {StatusClosed, StatusNotInterested, StatusCalled},
	StatusClosed:              {},
	StatusFailed:              {StatusQueued},
	StatusArchived:            {},
}

// CanTransition reports whether a lead may advance from one status to
// another. Self-transitions are allowed (idempotent webhook redelivery).
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if to == StatusArchived {
		return from != StatusArchived
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BadOutcome reports whether a status counts as a bad outcome for
// pool-release purposes.
func BadOutcome(s Status) bool {
	switch s {
	case StatusNoAnswerOutcome, StatusVoicemail, StatusNotInterested, StatusFailed:
		return true
	default:
		return false
	}
}

// StatusNoAnswerOutcome is not a lead status: no_answer never changes the
// lead's state, but it is recorded as an attempt outcome and participates
// in the pool-release bad-outcome set.
const StatusNoAnswerOutcome Status = "no_answer"

// ScriptVersion is the escalation ladder for contact attempts.
type ScriptVersion string

const (
	ScriptA ScriptVersion = "A"
	ScriptB ScriptVersion = "B"
	ScriptC ScriptVersion = "C"
)

// NextScript advances the escalation deterministically: A->B, B->C,
// anything else stays C. C is terminal and never wraps.
func NextScript(v ScriptVersion) ScriptVersion {
	switch v {
	case ScriptA:
		return ScriptB
	case ScriptB:
		return ScriptC
	default:
		return ScriptC
	}
}

// Lead is a contact target. Pool leads are unowned (CampaignID empty)
// until claimed.
type Lead struct {
	ID         string
	CampaignID string
	PoolLeadID string
	FirstName  string
	LastName   string
	Phone      string // stored normalized (digits only)
	Email      string
	Country    string

	Status            Status
	AttemptCount      int
	NextScriptVersion ScriptVersion
	NextRetryAt       *time.Time
	Archived          bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attempt is an immutable history record of one dialing attempt.
type Attempt struct {
	ID             string
	LeadID         string
	CampaignID     string
	AttemptNumber  int
	ScriptVersion  ScriptVersion
	ExternalCallID string
	StartedAt      time.Time
	EndedAt        *time.Time
	Outcome        string
	DurationSec    int
}

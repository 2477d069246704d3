package transfer

import "time"

// Status is the lifecycle of a live-agent handoff.
type Status string

const (
	// StatusInitiated means no agent was available yet; the transfer
	// waits unassigned until an agent comes online or claims it.
	StatusInitiated Status = "initiated"
	StatusRinging  Status = "ringing"
	StatusAccepted Status = "accepted"
	// StatusRejected is recorded when the assignee declines. The
	// transfer stays claimable while unassigned.
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

type Transfer struct {
	ID         string
	LeadID     string
	CampaignID string
	BrokerID   string
	AgentID    string // empty while unassigned
	Status     Status
	Outcome    string
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AgentStatus tracks an agent's availability for handoffs.
type AgentStatus string

const (
	AgentOffline   AgentStatus = "offline"
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentOnCall    AgentStatus = "on_call"
)

type Agent struct {
	ID           string
	BrokerID     string
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Status       AgentStatus
	LastSeenAt   time.Time
}

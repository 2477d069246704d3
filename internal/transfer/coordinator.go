package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dialer-platform/internal/activity"
	"dialer-platform/internal/lead"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("transfer: not found")
	ErrNotAssignee  = errors.New("transfer: agent is not the assignee")
	ErrBadState     = errors.New("transfer: invalid state for operation")
	ErrAgentMissing = errors.New("transfer: agent not found")
)

// Store is the persistence surface the coordinator needs.
type Store interface {
	GetTransfer(ctx context.Context, id string) (Transfer, error)
	InsertTransfer(ctx context.Context, t Transfer) error
	UpdateTransfer(ctx context.Context, t Transfer) error
	ListPendingForAgent(ctx context.Context, agentID string) ([]Transfer, error)

	GetLead(ctx context.Context, id string) (lead.Lead, error)
	UpdateLeadStatus(ctx context.Context, id string, st lead.Status, now time.Time) error
	CampaignBroker(ctx context.Context, campaignID string) (string, error)

	GetAgent(ctx context.Context, id string) (Agent, error)
	// FindAvailableAgent picks the broker's most recently seen
	// available agent, skipping the excluded IDs.
	FindAvailableAgent(ctx context.Context, brokerID string, exclude []string) (Agent, error)
	SetAgentStatus(ctx context.Context, agentID string, st AgentStatus, now time.Time) error
}

// Coordinator assigns hot leads to human agents and walks a transfer
// through ringing, accept/reject, and completion.
type Coordinator struct {
	store    Store
	activity *activity.Service
	clock    func() time.Time
}

func NewCoordinator(store Store, act *activity.Service) *Coordinator {
	return &Coordinator{store: store, activity: act, clock: time.Now}
}

// Initiate creates a transfer for a lead and rings the best available
// agent of the lead's broker. With nobody available the transfer is
// persisted unassigned so it can be claimed later.
func (c *Coordinator) Initiate(ctx context.Context, leadID, campaignID string) (Transfer, error) {
	brokerID, err := c.store.CampaignBroker(ctx, campaignID)
	if err != nil {
		return Transfer{}, fmt.Errorf("resolve broker: %w", err)
	}

	now := c.clock().UTC()
	t := Transfer{
		ID:         uuid.NewString(),
		LeadID:     leadID,
		CampaignID: campaignID,
		BrokerID:   brokerID,
		Status:     StatusInitiated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	agent, err := c.store.FindAvailableAgent(ctx, brokerID, nil)
	switch {
	case err == nil:
		t.AgentID = agent.ID
		t.Status = StatusRinging
	case errors.Is(err, ErrAgentMissing):
		slog.Info("transfer: no agent available", "lead_id", leadID, "broker_id", brokerID)
	default:
		return Transfer{}, err
	}

	if err := c.store.InsertTransfer(ctx, t); err != nil {
		return Transfer{}, err
	}
	if t.AgentID != "" {
		if err := c.store.SetAgentStatus(ctx, t.AgentID, AgentBusy, now); err != nil {
			return Transfer{}, err
		}
	}

	c.log(ctx, t, "transfer initiated")
	return t, nil
}

// Accept moves a transfer to accepted. A ringing transfer may only be
// accepted by its assignee; an unassigned pending transfer is claimed
// by whichever broker agent accepts first.
func (c *Coordinator) Accept(ctx context.Context, transferID, agentID string) (Transfer, error) {
	t, err := c.store.GetTransfer(ctx, transferID)
	if err != nil {
		return Transfer{}, err
	}
	switch {
	case t.Status == StatusRinging:
		if t.AgentID != agentID {
			return Transfer{}, ErrNotAssignee
		}
	case unassignedPending(t):
		t.AgentID = agentID
	default:
		return Transfer{}, ErrBadState
	}

	now := c.clock().UTC()
	t.Status = StatusAccepted
	t.UpdatedAt = now
	if err := c.store.UpdateTransfer(ctx, t); err != nil {
		return Transfer{}, err
	}
	if err := c.store.SetAgentStatus(ctx, agentID, AgentOnCall, now); err != nil {
		return Transfer{}, err
	}

	c.log(ctx, t, "transfer accepted")
	return t, nil
}

// Reject marks the transfer rejected, releases the assigned agent, and
// rings the next available one, excluding the rejector. The rejected
// state is persisted before any reassignment; with nobody left the
// transfer stays rejected and unassigned until an agent claims it.
func (c *Coordinator) Reject(ctx context.Context, transferID, agentID string) (Transfer, error) {
	t, err := c.store.GetTransfer(ctx, transferID)
	if err != nil {
		return Transfer{}, err
	}
	if t.Status != StatusRinging {
		return Transfer{}, ErrBadState
	}
	if t.AgentID != agentID {
		return Transfer{}, ErrNotAssignee
	}

	now := c.clock().UTC()
	t.AgentID = ""
	t.Status = StatusRejected
	t.UpdatedAt = now
	if err := c.store.UpdateTransfer(ctx, t); err != nil {
		return Transfer{}, err
	}
	if err := c.store.SetAgentStatus(ctx, agentID, AgentAvailable, now); err != nil {
		return Transfer{}, err
	}

	next, err := c.store.FindAvailableAgent(ctx, t.BrokerID, []string{agentID})
	if errors.Is(err, ErrAgentMissing) {
		c.log(ctx, t, "transfer rejected, no agent available")
		return t, nil
	}
	if err != nil {
		return Transfer{}, err
	}

	t.AgentID = next.ID
	t.Status = StatusRinging
	if err := c.store.UpdateTransfer(ctx, t); err != nil {
		return Transfer{}, err
	}
	if err := c.store.SetAgentStatus(ctx, t.AgentID, AgentBusy, now); err != nil {
		return Transfer{}, err
	}

	c.log(ctx, t, "transfer rejected, reassigned")
	return t, nil
}

// Complete closes an accepted transfer and records its outcome on the
// lead: converted closes it, not_interested marks it so, anything else
// puts the lead back to called for a later pass.
func (c *Coordinator) Complete(ctx context.Context, transferID, outcome, notes string) (Transfer, error) {
	t, err := c.store.GetTransfer(ctx, transferID)
	if err != nil {
		return Transfer{}, err
	}
	if t.Status != StatusAccepted {
		return Transfer{}, ErrBadState
	}

	now := c.clock().UTC()
	t.Status = StatusCompleted
	t.Outcome = outcome
	t.Notes = notes
	t.UpdatedAt = now
	if err := c.store.UpdateTransfer(ctx, t); err != nil {
		return Transfer{}, err
	}
	if t.AgentID != "" {
		if err := c.store.SetAgentStatus(ctx, t.AgentID, AgentAvailable, now); err != nil {
			return Transfer{}, err
		}
	}

	target := leadStatusForOutcome(outcome)
	l, err := c.store.GetLead(ctx, t.LeadID)
	if err != nil {
		return Transfer{}, err
	}
	if lead.CanTransition(l.Status, target) {
		if err := c.store.UpdateLeadStatus(ctx, t.LeadID, target, now); err != nil {
			return Transfer{}, err
		}
	} else {
		slog.Warn("transfer: outcome transition rejected", "lead_id", t.LeadID, "from", l.Status, "to", target)
	}

	c.log(ctx, t, "transfer completed: "+outcome)
	return t, nil
}

// Pending lists the transfers currently ringing for an agent plus the
// unassigned ones of the agent's broker.
func (c *Coordinator) Pending(ctx context.Context, agentID string) ([]Transfer, error) {
	return c.store.ListPendingForAgent(ctx, agentID)
}

// unassignedPending reports whether a transfer is waiting for any agent
// of its broker to claim it.
func unassignedPending(t Transfer) bool {
	return t.AgentID == "" && (t.Status == StatusInitiated || t.Status == StatusRejected)
}

// Heartbeat refreshes an agent's presence. An offline agent comes back
// available; busy and on-call states are preserved.
func (c *Coordinator) Heartbeat(ctx context.Context, agentID string) error {
	a, err := c.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	now := c.clock().UTC()
	st := a.Status
	if st == AgentOffline {
		st = AgentAvailable
	}
	return c.store.SetAgentStatus(ctx, agentID, st, now)
}

// SetPresence lets an agent flip between available and offline.
func (c *Coordinator) SetPresence(ctx context.Context, agentID string, st AgentStatus) error {
	if st != AgentAvailable && st != AgentOffline {
		return ErrBadState
	}
	if _, err := c.store.GetAgent(ctx, agentID); err != nil {
		return err
	}
	return c.store.SetAgentStatus(ctx, agentID, st, c.clock().UTC())
}

func leadStatusForOutcome(outcome string) lead.Status {
	switch outcome {
	case "converted":
		return lead.StatusClosed
	case "not_interested":
		return lead.StatusNotInterested
	default:
		return lead.StatusCalled
	}
}

func (c *Coordinator) log(ctx context.Context, t Transfer, msg string) {
	if c.activity == nil {
		return
	}
	if err := c.activity.Append(ctx, activity.Event{
		CampaignID: t.CampaignID,
		LeadID:     t.LeadID,
		Type:       activity.EventTypeTransfer,
		Message:    msg,
	}); err != nil {
		slog.Warn("transfer: activity log failed", "transfer_id", t.ID, "err", err)
	}
}

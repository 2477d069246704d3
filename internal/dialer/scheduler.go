package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dialer-platform/internal/activity"
	"dialer-platform/internal/broker"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/lead"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/phone"

	"github.com/google/uuid"
)

// Scheduler is the top-level dialing loop. One Run is one pass: for each
// active campaign it checks the call window, computes free concurrency
// slots, pulls queued leads FIFO, and places outbound calls. A failure
// on one lead or campaign never aborts the pass.

// ActiveCall is the ephemeral record of an in-flight call per lead.
// At most one row exists per lead at any instant.
type ActiveCall struct {
	ID             string
	LeadID         string
	CampaignID     string
	ExternalCallID string
	StartedAt      time.Time
}

// Store is the persistence surface the scheduler needs. *sql.DB-backed
// in production, stubbed in tests.
type Store interface {
	ListActiveCampaigns(ctx context.Context) ([]campaign.Campaign, error)
	ResolveRoute(ctx context.Context, brokerID, country string) (broker.Route, error)
	CountActiveCalls(ctx context.Context, campaignID string) (int, error)
	SelectQueuedLeads(ctx context.Context, campaignID string, limit int) ([]lead.Lead, error)
	GetScript(ctx context.Context, campaignID, version string) (campaign.Script, error)
	GetDetector(ctx context.Context, campaignID string) (string, error)

	DeleteActiveCallByLead(ctx context.Context, leadID string) error
	InsertActiveCall(ctx context.Context, ac ActiveCall) error
	AppendAttempt(ctx context.Context, a lead.Attempt) error
	MarkLeadCalled(ctx context.Context, leadID string, now time.Time) error

	DeleteStaleActiveCalls(ctx context.Context, olderThan time.Time) (int, error)
	CountWorkableLeads(ctx context.Context, campaignID string) (int, error)
	MarkCampaignCompleted(ctx context.Context, campaignID string, now time.Time) error
}

// Caller places call-initiation requests against the call runtime.
type Caller interface {
	InitiateCall(ctx context.Context, req telephony.CallRequest) (telephony.CallResult, error)
}

type Config struct {
	WebhookURL    string
	WebhookSecret string

	// CallThrottle is the fixed delay between consecutive placements in
	// one pass; skipped after the last lead of a batch.
	CallThrottle time.Duration

	// StaleCallTTL is the janitor's age threshold.
	StaleCallTTL time.Duration
}

type Scheduler struct {
	store    Store
	caller   Caller
	activity *activity.Service
	cfg      Config

	clock func() time.Time
	sleep func(time.Duration)
}

func NewScheduler(store Store, caller Caller, act *activity.Service, cfg Config) *Scheduler {
	if cfg.CallThrottle <= 0 {
		cfg.CallThrottle = 1200 * time.Millisecond
	}
	if cfg.StaleCallTTL <= 0 {
		cfg.StaleCallTTL = 30 * time.Minute
	}
	return &Scheduler{
		store:    store,
		caller:   caller,
		activity: act,
		cfg:      cfg,
		clock:    time.Now,
		sleep:    time.Sleep,
	}
}

// Run executes one scheduler pass over all active campaigns.
// Returns the number of calls placed.
func (s *Scheduler) Run(ctx context.Context) (int, error) {
	campaigns, err := s.store.ListActiveCampaigns(ctx)
	if err != nil {
		return 0, err
	}

	placed := 0
	for _, c := range campaigns {
		n, err := s.runCampaign(ctx, c)
		placed += n
		if err != nil {
			slog.Warn("scheduler: campaign pass failed", "campaign_id", c.ID, "err", err)
		}
	}
	return placed, nil
}

func (s *Scheduler) runCampaign(ctx context.Context, c campaign.Campaign) (int, error) {
	now := s.clock()

	inWindow, err := c.InWindow(now)
	if err != nil {
		return 0, err
	}
	if !inWindow {
		return 0, nil
	}

	route, err := s.store.ResolveRoute(ctx, c.BrokerID, c.Country)
	if err != nil {
		if errors.Is(err, broker.ErrNotFound) {
			slog.Debug("scheduler: no active route", "campaign_id", c.ID, "country", c.Country)
			return 0, nil
		}
		return 0, err
	}

	active, err := s.store.CountActiveCalls(ctx, c.ID)
	if err != nil {
		return 0, err
	}
	slots := c.ConcurrencyLimit - active
	if slots <= 0 {
		return 0, nil
	}

	leads, err := s.store.SelectQueuedLeads(ctx, c.ID, slots)
	if err != nil {
		return 0, err
	}

	placed := 0
	for i, l := range leads {
		if err := s.placeCall(ctx, c, route, l); err != nil {
			slog.Warn("scheduler: call placement failed", "campaign_id", c.ID, "lead_id", l.ID, "err", err)
			if s.activity != nil {
				_ = s.activity.LogCallFailed(ctx, c.ID, l.ID, err.Error())
			}
		} else {
			placed++
		}
		// Provider rate limit; no delay after the final lead.
		if i < len(leads)-1 {
			s.sleep(s.cfg.CallThrottle)
		}
	}
	return placed, nil
}

func (s *Scheduler) placeCall(ctx context.Context, c campaign.Campaign, route broker.Route, l lead.Lead) error {
	version := string(l.NextScriptVersion)
	if version == "" {
		version = "A"
	}
	script, err := s.store.GetScript(ctx, c.ID, version)
	if err != nil {
		return fmt.Errorf("script %s: %w", version, err)
	}
	detector, err := s.store.GetDetector(ctx, c.ID)
	if err != nil {
		return err
	}

	name := displayName(l)
	req := telephony.CallRequest{
		RuleName: route.RuleName,
		Data: telephony.CallData{
			LeadID:        l.ID,
			CampaignID:    c.ID,
			Campaign:      c.Name,
			Phone:         phone.Normalize(l.Phone),
			Name:          name,
			Funnel:        c.Funnel,
			CallerID:      route.CallerID,
			AgentPhone:    route.AgentPhone,
			ScriptVersion: version,
			ScriptBody:    renderTemplate(script.Body, name, c.Name),
			DetectorBody:  renderTemplate(detector, name, c.Name),
			AgentType:     int(c.AgentLanguage),
			WebhookURL:    s.cfg.WebhookURL,
			WebhookSecret: s.cfg.WebhookSecret,
		},
	}

	res, err := s.caller.InitiateCall(ctx, req)
	if err != nil {
		return err
	}

	now := s.clock().UTC()

	// Clear any stale row first so the one-active-call-per-lead
	// invariant holds even after a lost webhook.
	if err := s.store.DeleteActiveCallByLead(ctx, l.ID); err != nil {
		return err
	}
	if err := s.store.InsertActiveCall(ctx, ActiveCall{
		ID:             uuid.NewString(),
		LeadID:         l.ID,
		CampaignID:     c.ID,
		ExternalCallID: res.ExternalCallID,
		StartedAt:      now,
	}); err != nil {
		return err
	}
	if err := s.store.AppendAttempt(ctx, lead.Attempt{
		ID:             uuid.NewString(),
		LeadID:         l.ID,
		CampaignID:     c.ID,
		AttemptNumber:  l.AttemptCount + 1,
		ScriptVersion:  lead.ScriptVersion(version),
		ExternalCallID: res.ExternalCallID,
		StartedAt:      now,
	}); err != nil {
		return err
	}
	if err := s.store.MarkLeadCalled(ctx, l.ID, now); err != nil {
		return err
	}

	if s.activity != nil {
		_ = s.activity.LogCallPlaced(ctx, c.ID, l.ID, res.ExternalCallID)
	}
	return nil
}

// ReapStaleCalls deletes active-call rows older than the TTL: calls whose
// webhook never arrived would otherwise leak concurrency slots forever.
func (s *Scheduler) ReapStaleCalls(ctx context.Context) (int, error) {
	cutoff := s.clock().UTC().Add(-s.cfg.StaleCallTTL)
	n, err := s.store.DeleteStaleActiveCalls(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("janitor: reaped stale active calls", "count", n)
	}
	return n, nil
}

// CompleteExhausted marks active campaigns with nothing left to dial as
// completed, starting the pool-release cooldown clock.
func (s *Scheduler) CompleteExhausted(ctx context.Context) (int, error) {
	campaigns, err := s.store.ListActiveCampaigns(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock().UTC()

	completed := 0
	for _, c := range campaigns {
		workable, err := s.store.CountWorkableLeads(ctx, c.ID)
		if err != nil {
			slog.Warn("scheduler: workable count failed", "campaign_id", c.ID, "err", err)
			continue
		}
		if workable > 0 {
			continue
		}
		active, err := s.store.CountActiveCalls(ctx, c.ID)
		if err != nil || active > 0 {
			continue
		}
		if err := s.store.MarkCampaignCompleted(ctx, c.ID, now); err != nil {
			slog.Warn("scheduler: completion failed", "campaign_id", c.ID, "err", err)
			continue
		}
		completed++
		if s.activity != nil {
			_ = s.activity.Append(ctx, activity.Event{
				CampaignID: c.ID,
				Type:       activity.EventTypeCompleted,
				Message:    "campaign exhausted all leads",
			})
		}
	}
	return completed, nil
}

func displayName(l lead.Lead) string {
	switch {
	case l.FirstName != "" && l.LastName != "":
		return l.FirstName + " " + l.LastName
	case l.FirstName != "":
		return l.FirstName
	default:
		return l.LastName
	}
}

package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dialer-platform/internal/activity"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/lead"

	"github.com/google/uuid"
)

// Scheduler escalates failed contact attempts: each retry advances the
// lead's script version one step (A->B->C, C terminal) and enqueues a
// future re-queue that the sweep turns back into a dialable lead.

var ErrInvalidArgument = errors.New("retry: invalid argument")

// Entry is a scheduled future re-queue of one lead.
type Entry struct {
	ID            string
	LeadID        string
	CampaignID    string
	ScriptVersion lead.ScriptVersion
	Reason        string
	ScheduledAt   time.Time
	Processed     bool
	ProcessedAt   *time.Time
	CreatedAt     time.Time
}

// Store is the persistence surface the scheduler needs.
type Store interface {
	GetLead(ctx context.Context, id string) (lead.Lead, error)
	SetRetrySchedule(ctx context.Context, leadID string, version lead.ScriptVersion, at, now time.Time) error
	InsertEntry(ctx context.Context, e Entry) error

	// SelectDue returns unprocessed due entries of active campaigns,
	// oldest first, at most limit.
	SelectDue(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	GetCampaign(ctx context.Context, id string) (campaign.Campaign, error)
	RequeueLead(ctx context.Context, leadID string, version lead.ScriptVersion, now time.Time) error
	MarkProcessed(ctx context.Context, entryID string, now time.Time) error
}

type Scheduler struct {
	store    Store
	activity *activity.Service
	clock    func() time.Time
}

func NewScheduler(store Store, act *activity.Service) *Scheduler {
	return &Scheduler{store: store, activity: act, clock: time.Now}
}

// Schedule advances the lead's escalation and records the future retry.
// Callers are responsible for the attempt_count < max_attempts check;
// Schedule itself is unconditional.
func (s *Scheduler) Schedule(ctx context.Context, leadID string, delay time.Duration, reason string) (Entry, error) {
	if leadID == "" || delay <= 0 {
		return Entry{}, ErrInvalidArgument
	}

	l, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return Entry{}, err
	}
	if l.CampaignID == "" {
		return Entry{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	next := lead.NextScript(l.NextScriptVersion)
	at := now.Add(delay)

	if err := s.store.SetRetrySchedule(ctx, l.ID, next, at, now); err != nil {
		return Entry{}, err
	}

	e := Entry{
		ID:            uuid.NewString(),
		LeadID:        l.ID,
		CampaignID:    l.CampaignID,
		ScriptVersion: next,
		Reason:        reason,
		ScheduledAt:   at,
		CreatedAt:     now,
	}
	if err := s.store.InsertEntry(ctx, e); err != nil {
		return Entry{}, err
	}

	if s.activity != nil {
		if err := s.activity.LogRetryScheduled(ctx, l.CampaignID, l.ID, string(next), reason); err != nil {
			slog.Warn("activity log failed", "lead_id", l.ID, "err", err)
		}
	}
	return e, nil
}

// Sweep re-queues leads whose retry time has arrived. Entries belonging
// to non-active campaigns are skipped; entries outside the campaign's
// call window are left pending and re-evaluated on the next sweep.
// Returns the number of leads re-queued.
func (s *Scheduler) Sweep(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	now := s.clock().UTC()

	entries, err := s.store.SelectDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	campaigns := map[string]campaign.Campaign{}
	processed := 0
	for _, e := range entries {
		c, ok := campaigns[e.CampaignID]
		if !ok {
			c, err = s.store.GetCampaign(ctx, e.CampaignID)
			if err != nil {
				slog.Warn("retry sweep: campaign lookup failed", "campaign_id", e.CampaignID, "err", err)
				continue
			}
			campaigns[e.CampaignID] = c
		}

		inWindow, err := c.InWindow(now)
		if err != nil {
			slog.Warn("retry sweep: window check failed", "campaign_id", c.ID, "err", err)
			continue
		}
		if !inWindow {
			// Not dropped: the entry stays pending for the next sweep.
			continue
		}

		if err := s.store.RequeueLead(ctx, e.LeadID, e.ScriptVersion, now); err != nil {
			slog.Warn("retry sweep: requeue failed", "lead_id", e.LeadID, "err", err)
			continue
		}
		if err := s.store.MarkProcessed(ctx, e.ID, now); err != nil {
			slog.Warn("retry sweep: mark processed failed", "entry_id", e.ID, "err", err)
			continue
		}
		processed++

		if s.activity != nil {
			_ = s.activity.Append(ctx, activity.Event{
				CampaignID: e.CampaignID,
				LeadID:     e.LeadID,
				Type:       activity.EventTypeRetryRequeued,
				Message:    "lead re-queued for retry",
				Metadata:   `{"script_version":"` + string(e.ScriptVersion) + `"}`,
			})
		}
	}
	return processed, nil
}

package activity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for activity events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs campaign activity for the admin feed.
//
// Callers should treat activity logging as best-effort: log the error
// and carry on, never abort a dialing batch over it.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("activity: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("activity: repository not configured")
	}
	if e.CampaignID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCallPlaced records a successful outbound call placement.
func (s *Service) LogCallPlaced(ctx context.Context, campaignID, leadID, externalCallID string) error {
	return s.Append(ctx, Event{
		CampaignID: campaignID,
		LeadID:     leadID,
		Type:       EventTypeCallPlaced,
		Message:    "outbound call placed",
		Metadata:   `{"external_call_id":"` + externalCallID + `"}`,
	})
}

// LogCallFailed records a telephony API failure for one lead; the
// scheduler batch continues past it.
func (s *Service) LogCallFailed(ctx context.Context, campaignID, leadID, reason string) error {
	return s.Append(ctx, Event{
		CampaignID: campaignID,
		LeadID:     leadID,
		Type:       EventTypeCallFailed,
		Message:    reason,
	})
}

// LogRetryScheduled records an escalation decision.
func (s *Service) LogRetryScheduled(ctx context.Context, campaignID, leadID, version, reason string) error {
	return s.Append(ctx, Event{
		CampaignID: campaignID,
		LeadID:     leadID,
		Type:       EventTypeRetryScheduled,
		Message:    reason,
		Metadata:   `{"script_version":"` + version + `"}`,
	})
}

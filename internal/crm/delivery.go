package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"dialer-platform/internal/activity"
	"dialer-platform/internal/broker"
	"dialer-platform/internal/lead"

	"github.com/google/uuid"
)

// Delivery relays lead outcomes to each broker's CRM with at-least-once
// semantics: every trigger is persisted before the first HTTP attempt,
// and failed rows are re-driven by Sweep until the attempt cap.

const (
	maxAttempts  = 5
	retryBackoff = 5 * time.Minute
	postTimeout  = 10 * time.Second
)

type EventStatus string

const (
	StatusPending EventStatus = "pending"
	StatusSent    EventStatus = "sent"
	StatusFailed  EventStatus = "failed"
)

type Event struct {
	ID           string
	LeadID       string
	BrokerID     string
	EventType    string
	Payload      string // JSON as posted to the CRM
	Status       EventStatus
	AttemptCount int
	LastError    string
	NextRetryAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var ErrNotFound = errors.New("crm: event not found")

// Store is the persistence surface for delivery bookkeeping.
type Store interface {
	GetLead(ctx context.Context, id string) (lead.Lead, error)
	BrokerForCampaign(ctx context.Context, campaignID string) (broker.Broker, error)
	GetBroker(ctx context.Context, id string) (broker.Broker, error)

	InsertEvent(ctx context.Context, e Event) error
	UpdateEvent(ctx context.Context, e Event) error
	SelectRetryable(ctx context.Context, now time.Time, limit int) ([]Event, error)
}

type Service struct {
	store    Store
	activity *activity.Service
	client   *http.Client
	clock    func() time.Time
}

func NewService(store Store, act *activity.Service) *Service {
	return &Service{
		store:    store,
		activity: act,
		client:   &http.Client{Timeout: postTimeout},
		clock:    time.Now,
	}
}

// Trigger records and attempts one CRM delivery for a lead event.
// Brokers without a CRM endpoint are skipped silently. The returned
// error reflects bookkeeping failures only; a failed HTTP attempt is
// absorbed and retried by Sweep.
func (s *Service) Trigger(ctx context.Context, leadID, eventType string, data map[string]any) error {
	l, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}
	b, err := s.store.BrokerForCampaign(ctx, l.CampaignID)
	if err != nil {
		return fmt.Errorf("load broker: %w", err)
	}
	if b.CRMEndpoint == "" {
		return nil
	}

	now := s.clock().UTC()
	payload, err := buildPayload(b.CRMTemplate, eventType, l, data, now)
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	e := Event{
		ID:        uuid.NewString(),
		LeadID:    l.ID,
		BrokerID:  b.ID,
		EventType: eventType,
		Payload:   string(payload),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertEvent(ctx, e); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}

	s.attempt(ctx, &e, b)
	if err := s.store.UpdateEvent(ctx, e); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	s.logDelivery(ctx, l, e)
	return nil
}

// Sweep re-posts failed deliveries that are due. Each row is retried
// independently; one broken endpoint never blocks the rest.
func (s *Service) Sweep(ctx context.Context, limit int) (int, error) {
	now := s.clock().UTC()
	events, err := s.store.SelectRetryable(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range events {
		b, err := s.store.GetBroker(ctx, e.BrokerID)
		if err != nil {
			slog.Warn("crm: sweep broker lookup failed", "event_id", e.ID, "err", err)
			continue
		}

		s.attempt(ctx, &e, b)
		if e.Status == StatusSent {
			sent++
		}
		if err := s.store.UpdateEvent(ctx, e); err != nil {
			slog.Warn("crm: sweep update failed", "event_id", e.ID, "err", err)
		}
	}
	return sent, nil
}

// attempt posts the payload once and stamps the outcome on e.
func (s *Service) attempt(ctx context.Context, e *Event, b broker.Broker) {
	now := s.clock().UTC()
	e.AttemptCount++
	e.UpdatedAt = now

	err := s.post(ctx, b, []byte(e.Payload))
	if err == nil {
		e.Status = StatusSent
		e.LastError = ""
		e.NextRetryAt = time.Time{}
		return
	}

	e.Status = StatusFailed
	e.LastError = err.Error()
	if e.AttemptCount < maxAttempts {
		e.NextRetryAt = now.Add(retryBackoff)
	} else {
		// Exhausted rows stay failed with no retry horizon; they are
		// visible for manual replay but the sweeper skips them.
		e.NextRetryAt = time.Time{}
	}
	slog.Warn("crm: delivery failed", "event_id", e.ID, "attempt", e.AttemptCount, "err", err)
}

func (s *Service) post(ctx context.Context, b broker.Broker, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.CRMEndpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.CRMAPIKey != "" {
		req.Header.Set("X-Api-Key", b.CRMAPIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("crm endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// buildPayload merges the broker's static template under the standard
// envelope. Envelope keys win over template keys on collision.
func buildPayload(template, eventType string, l lead.Lead, data map[string]any, now time.Time) ([]byte, error) {
	out := map[string]any{}
	if template != "" {
		if err := json.Unmarshal([]byte(template), &out); err != nil {
			return nil, fmt.Errorf("broker template: %w", err)
		}
	}

	out["event"] = eventType
	out["timestamp"] = now.Format(time.RFC3339)
	out["lead"] = map[string]any{
		"id":         l.ID,
		"first_name": l.FirstName,
		"last_name":  l.LastName,
		"phone":      l.Phone,
		"email":      l.Email,
	}
	if data == nil {
		data = map[string]any{}
	}
	out["data"] = data

	return json.Marshal(out)
}

func (s *Service) logDelivery(ctx context.Context, l lead.Lead, e Event) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Append(ctx, activity.Event{
		CampaignID: l.CampaignID,
		LeadID:     l.ID,
		Type:       activity.EventTypeCRMDelivery,
		Message:    fmt.Sprintf("crm %s: %s", e.EventType, e.Status),
	}); err != nil {
		slog.Warn("crm: activity log failed", "event_id", e.ID, "err", err)
	}
}

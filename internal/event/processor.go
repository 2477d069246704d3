package event

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"dialer-platform/internal/campaign"
	"dialer-platform/internal/lead"
	"dialer-platform/internal/retry"
	"dialer-platform/internal/transfer"
	"dialer-platform/pkg/phone"

	"github.com/google/uuid"
)

// Processor is the call-event state machine: it consumes one verified
// webhook, records it, and mutates lead/campaign state. Side effects
// (retry scheduling, live-agent transfer, CRM delivery) go through the
// injected collaborators.

var (
	ErrBadSignature = errors.New("event: signature mismatch")
	ErrBadPayload   = errors.New("event: invalid payload")
	ErrLeadNotFound = errors.New("event: lead not resolvable")
)

// Store is the persistence surface the state machine needs.
type Store interface {
	GetLead(ctx context.Context, id string) (lead.Lead, error)
	FindLeadByPhone(ctx context.Context, normalized string) (lead.Lead, error)
	GetCampaign(ctx context.Context, id string) (campaign.Campaign, error)

	UpdateLeadStatus(ctx context.Context, id string, st lead.Status, now time.Time) error
	MarkLeadCalled(ctx context.Context, id string, now time.Time) error
	AppendCallLog(ctx context.Context, cl CallLog) error
	CloseLatestAttempt(ctx context.Context, leadID, outcome string, durationSec int, endedAt time.Time) error
	DeleteActiveCallByLead(ctx context.Context, leadID string) error

	// IncrementStat must be an atomic upsert-increment: concurrent
	// deliveries for the same bucket never lose counts.
	IncrementStat(ctx context.Context, campaignID string, day time.Time, hour int, metric string, delta int) error
}

// RetryScheduler schedules the next contact attempt for a lead.
type RetryScheduler interface {
	Schedule(ctx context.Context, leadID string, delay time.Duration, reason string) (retry.Entry, error)
}

// TransferInitiator hands a hot lead to a human agent.
type TransferInitiator interface {
	Initiate(ctx context.Context, leadID, campaignID string) (transfer.Transfer, error)
}

// CRMDeliverer relays an outcome to the lead's partner CRM.
type CRMDeliverer interface {
	Trigger(ctx context.Context, leadID, eventType string, data map[string]any) error
}

type Processor struct {
	store     Store
	retries   RetryScheduler
	transfers TransferInitiator
	crm       CRMDeliverer
	secret    string
	clock     func() time.Time
}

func NewProcessor(store Store, retries RetryScheduler, transfers TransferInitiator, crm CRMDeliverer, webhookSecret string) *Processor {
	return &Processor{
		store:     store,
		retries:   retries,
		transfers: transfers,
		crm:       crm,
		secret:    webhookSecret,
		clock:     time.Now,
	}
}

// Process verifies and applies one raw webhook delivery.
// On any returned error no lead, call-log, or stats row was mutated
// beyond what the error kind implies: signature and resolution failures
// leave the store untouched.
func (p *Processor) Process(ctx context.Context, rawBody []byte, signature string) error {
	if !VerifySignature(rawBody, signature, p.secret) {
		return ErrBadSignature
	}

	var wh Webhook
	if err := json.Unmarshal(rawBody, &wh); err != nil {
		return ErrBadPayload
	}
	if wh.Event == "" {
		return ErrBadPayload
	}

	l, err := p.resolveLead(ctx, wh)
	if err != nil {
		return err
	}

	c, err := p.store.GetCampaign(ctx, l.CampaignID)
	if err != nil {
		return err
	}

	now := p.clock().UTC()
	t := Type(wh.Event)

	// The raw event is recorded unconditionally, recognized or not.
	if err := p.store.AppendCallLog(ctx, CallLog{
		ID:             uuid.NewString(),
		LeadID:         l.ID,
		CampaignID:     l.CampaignID,
		ExternalCallID: wh.CallID,
		EventType:      wh.Event,
		Payload:        string(rawBody),
		Classification: wh.Classification,
		Confidence:     wh.Confidence,
		Transcript:     wh.Transcript,
		Summary:        wh.Summary,
		CreatedAt:      now,
	}); err != nil {
		return err
	}

	if err := p.dispatch(ctx, t, wh, l, c, now); err != nil {
		return err
	}

	if metric, ok := metricFor(t); ok {
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if err := p.store.IncrementStat(ctx, l.CampaignID, day, now.Hour(), metric, 1); err != nil {
			slog.Warn("event: stat increment failed", "campaign_id", l.CampaignID, "metric", metric, "err", err)
		}
	}
	return nil
}

func (p *Processor) resolveLead(ctx context.Context, wh Webhook) (lead.Lead, error) {
	if wh.LeadID != "" {
		l, err := p.store.GetLead(ctx, wh.LeadID)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, lead.ErrNotFound) {
			return lead.Lead{}, err
		}
	}
	if wh.Phone != "" {
		l, err := p.store.FindLeadByPhone(ctx, phone.Normalize(wh.Phone))
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, lead.ErrNotFound) {
			return lead.Lead{}, err
		}
	}
	return lead.Lead{}, ErrLeadNotFound
}

func (p *Processor) dispatch(ctx context.Context, t Type, wh Webhook, l lead.Lead, c campaign.Campaign, now time.Time) error {
	switch t {
	case TypeCallStarted:
		return p.store.MarkLeadCalled(ctx, l.ID, now)

	case TypeHumanDetected:
		return p.transition(ctx, l, lead.StatusHuman, now)

	case TypeVoicemailDetected:
		if err := p.transition(ctx, l, lead.StatusVoicemail, now); err != nil {
			return err
		}
		p.maybeRetry(ctx, l, c, "voicemail")
		return nil

	case TypeNoAnswer:
		// Status deliberately unchanged.
		p.maybeRetry(ctx, l, c, "no_answer")
		return nil

	case TypeAIClassification:
		return p.applyClassification(ctx, wh, l, now)

	case TypeTransferStarted:
		return p.transition(ctx, l, lead.StatusTransferred, now)

	case TypeTransferCompleted:
		if p.crm != nil {
			if err := p.crm.Trigger(ctx, l.ID, string(t), map[string]any{"outcome": wh.Outcome}); err != nil {
				slog.Warn("event: crm trigger failed", "lead_id", l.ID, "err", err)
			}
		}
		return nil

	case TypeCallEnded:
		if err := p.store.CloseLatestAttempt(ctx, l.ID, wh.Outcome, wh.DurationSeconds, now); err != nil {
			return err
		}
		return p.store.DeleteActiveCallByLead(ctx, l.ID)

	default:
		// Unrecognized events are a no-op for forward compatibility.
		return nil
	}
}

func (p *Processor) applyClassification(ctx context.Context, wh Webhook, l lead.Lead, now time.Time) error {
	var target lead.Status
	switch wh.Classification {
	case "not_interested":
		target = lead.StatusNotInterested
	case "curious":
		target = lead.StatusCurious
	case "activation_requested":
		target = lead.StatusActivationRequested
	}

	if target != "" {
		if err := p.transition(ctx, l, target, now); err != nil {
			return err
		}
	}

	if target == lead.StatusActivationRequested && p.transfers != nil {
		if _, err := p.transfers.Initiate(ctx, l.ID, l.CampaignID); err != nil {
			slog.Warn("event: transfer initiation failed", "lead_id", l.ID, "err", err)
		}
	}

	if p.crm != nil {
		data := map[string]any{
			"classification": wh.Classification,
			"confidence":     wh.Confidence,
			"summary":        wh.Summary,
		}
		if wh.AppointmentDate != "" {
			data["appointment_date"] = wh.AppointmentDate
			data["appointment_notes"] = wh.AppointmentNotes
		}
		if err := p.crm.Trigger(ctx, l.ID, string(TypeAIClassification), data); err != nil {
			slog.Warn("event: crm trigger failed", "lead_id", l.ID, "err", err)
		}
	}
	return nil
}

func (p *Processor) transition(ctx context.Context, l lead.Lead, to lead.Status, now time.Time) error {
	if !lead.CanTransition(l.Status, to) {
		slog.Warn("event: transition rejected", "lead_id", l.ID, "from", l.Status, "to", to)
		return nil
	}
	return p.store.UpdateLeadStatus(ctx, l.ID, to, now)
}

// maybeRetry schedules another attempt only while the campaign's
// max-attempt cutoff has not been reached. Failures are logged, never
// propagated: a broken retry path must not reject the webhook.
func (p *Processor) maybeRetry(ctx context.Context, l lead.Lead, c campaign.Campaign, reason string) {
	if p.retries == nil {
		return
	}
	if l.AttemptCount >= c.MaxAttempts {
		return
	}
	if _, err := p.retries.Schedule(ctx, l.ID, c.RetryInterval(), reason); err != nil {
		slog.Warn("event: retry scheduling failed", "lead_id", l.ID, "err", err)
	}
}

package event

import (
	"context"
	"database/sql"
	"time"

	"dialer-platform/internal/campaign"
	"dialer-platform/internal/lead"
)

// PostgresStore implements Store on the shared *sql.DB.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (lead.Lead, error) {
	return lead.Get(ctx, s.db, id)
}

func (s *PostgresStore) FindLeadByPhone(ctx context.Context, normalized string) (lead.Lead, error) {
	return lead.FindByPhone(ctx, s.db, normalized)
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (campaign.Campaign, error) {
	return campaign.Get(ctx, s.db, id)
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, id string, st lead.Status, now time.Time) error {
	return lead.UpdateStatus(ctx, s.db, id, st, now)
}

func (s *PostgresStore) MarkLeadCalled(ctx context.Context, id string, now time.Time) error {
	return lead.MarkCalled(ctx, s.db, id, now)
}

func (s *PostgresStore) CloseLatestAttempt(ctx context.Context, leadID, outcome string, durationSec int, endedAt time.Time) error {
	return lead.CloseLatestAttempt(ctx, s.db, leadID, outcome, durationSec, endedAt)
}

func (s *PostgresStore) AppendCallLog(ctx context.Context, cl CallLog) error {
	const q = `
INSERT INTO call_logs (
  id, lead_id, campaign_id, external_call_id, event_type, payload,
  classification, confidence, transcript, summary, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := s.db.ExecContext(ctx, q,
		cl.ID,
		cl.LeadID,
		cl.CampaignID,
		cl.ExternalCallID,
		cl.EventType,
		cl.Payload,
		cl.Classification,
		cl.Confidence,
		cl.Transcript,
		cl.Summary,
		cl.CreatedAt,
	)
	return err
}

func (s *PostgresStore) DeleteActiveCallByLead(ctx context.Context, leadID string) error {
	const q = `DELETE FROM active_calls WHERE lead_id = $1`
	_, err := s.db.ExecContext(ctx, q, leadID)
	return err
}

// IncrementStat upserts the counter bucket atomically so concurrent
// webhook deliveries for the same bucket never lose counts.
func (s *PostgresStore) IncrementStat(ctx context.Context, campaignID string, day time.Time, hour int, metric string, delta int) error {
	const q = `
INSERT INTO campaign_stats (campaign_id, day, hour, metric, count)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (campaign_id, day, hour, metric)
DO UPDATE SET count = campaign_stats.count + EXCLUDED.count
`
	_, err := s.db.ExecContext(ctx, q, campaignID, day, hour, metric, delta)
	return err
}

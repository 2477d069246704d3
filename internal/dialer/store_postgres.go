package dialer

import (
	"context"
	"database/sql"
	"time"

	"dialer-platform/internal/broker"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/lead"
)

// PostgresStore implements Store on the shared *sql.DB, delegating to
// the per-domain repositories and owning the active_calls table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListActiveCampaigns(ctx context.Context) ([]campaign.Campaign, error) {
	return campaign.ListActive(ctx, s.db)
}

func (s *PostgresStore) ResolveRoute(ctx context.Context, brokerID, country string) (broker.Route, error) {
	return broker.ResolveRoute(ctx, s.db, brokerID, country)
}

func (s *PostgresStore) SelectQueuedLeads(ctx context.Context, campaignID string, limit int) ([]lead.Lead, error) {
	return lead.SelectQueued(ctx, s.db, campaignID, limit)
}

func (s *PostgresStore) GetScript(ctx context.Context, campaignID, version string) (campaign.Script, error) {
	return campaign.GetScript(ctx, s.db, campaignID, version)
}

func (s *PostgresStore) GetDetector(ctx context.Context, campaignID string) (string, error) {
	return campaign.GetDetector(ctx, s.db, campaignID)
}

func (s *PostgresStore) AppendAttempt(ctx context.Context, a lead.Attempt) error {
	return lead.AppendAttempt(ctx, s.db, a)
}

func (s *PostgresStore) MarkLeadCalled(ctx context.Context, leadID string, now time.Time) error {
	return lead.MarkCalled(ctx, s.db, leadID, now)
}

func (s *PostgresStore) CountWorkableLeads(ctx context.Context, campaignID string) (int, error) {
	return campaign.CountWorkableLeads(ctx, s.db, campaignID)
}

func (s *PostgresStore) MarkCampaignCompleted(ctx context.Context, campaignID string, now time.Time) error {
	return campaign.MarkCompleted(ctx, s.db, campaignID, now)
}

func (s *PostgresStore) CountActiveCalls(ctx context.Context, campaignID string) (int, error) {
	const q = `SELECT COUNT(*) FROM active_calls WHERE campaign_id = $1`
	var n int
	if err := s.db.QueryRowContext(ctx, q, campaignID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) DeleteActiveCallByLead(ctx context.Context, leadID string) error {
	const q = `DELETE FROM active_calls WHERE lead_id = $1`
	_, err := s.db.ExecContext(ctx, q, leadID)
	return err
}

func (s *PostgresStore) InsertActiveCall(ctx context.Context, ac ActiveCall) error {
	const q = `
INSERT INTO active_calls (id, lead_id, campaign_id, external_call_id, started_at)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := s.db.ExecContext(ctx, q, ac.ID, ac.LeadID, ac.CampaignID, ac.ExternalCallID, ac.StartedAt)
	return err
}

func (s *PostgresStore) DeleteStaleActiveCalls(ctx context.Context, olderThan time.Time) (int, error) {
	const q = `DELETE FROM active_calls WHERE started_at < $1`
	res, err := s.db.ExecContext(ctx, q, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

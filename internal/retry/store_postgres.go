package retry

import (
	"context"
	"database/sql"
	"time"

	"dialer-platform/internal/campaign"
	"dialer-platform/internal/lead"
)

// PostgresStore implements Store on the shared *sql.DB. It assumes the
// retry_queue table from db/schema.sql; entries are consumed by
// flipping processed, never deleted.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (lead.Lead, error) {
	return lead.Get(ctx, s.db, id)
}

func (s *PostgresStore) SetRetrySchedule(ctx context.Context, leadID string, version lead.ScriptVersion, at, now time.Time) error {
	return lead.SetRetrySchedule(ctx, s.db, leadID, version, at, now)
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (campaign.Campaign, error) {
	return campaign.Get(ctx, s.db, id)
}

func (s *PostgresStore) RequeueLead(ctx context.Context, leadID string, version lead.ScriptVersion, now time.Time) error {
	return lead.Requeue(ctx, s.db, leadID, version, now)
}

const insertEntryQuery = `
INSERT INTO retry_queue (
  id, lead_id, campaign_id, script_version, reason, scheduled_at,
  processed, processed_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,FALSE,NULL,$7)
`

func (s *PostgresStore) InsertEntry(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, insertEntryQuery,
		e.ID,
		e.LeadID,
		e.CampaignID,
		e.ScriptVersion,
		e.Reason,
		e.ScheduledAt,
		e.CreatedAt,
	)
	return err
}

const selectDueQuery = `
SELECT r.id, r.lead_id, r.campaign_id, r.script_version, r.reason,
       r.scheduled_at, r.processed, r.processed_at, r.created_at
FROM retry_queue r
JOIN campaigns c ON c.id = r.campaign_id
WHERE NOT r.processed
  AND r.scheduled_at <= $1
  AND c.status = 'active'
ORDER BY r.scheduled_at ASC
LIMIT $2
`

func (s *PostgresStore) SelectDue(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectDueQuery, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var processedAt sql.NullTime
		if err := rows.Scan(
			&e.ID,
			&e.LeadID,
			&e.CampaignID,
			&e.ScriptVersion,
			&e.Reason,
			&e.ScheduledAt,
			&e.Processed,
			&processedAt,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		if processedAt.Valid {
			t := processedAt.Time
			e.ProcessedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, id string, now time.Time) error {
	const q = `UPDATE retry_queue SET processed = TRUE, processed_at = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id, now)
	return err
}

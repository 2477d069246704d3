package crm

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dialer-platform/internal/broker"
	"dialer-platform/internal/lead"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (lead.Lead, error) {
	return lead.Get(ctx, s.db, id)
}

func (s *PostgresStore) GetBroker(ctx context.Context, id string) (broker.Broker, error) {
	return broker.Get(ctx, s.db, id)
}

func (s *PostgresStore) BrokerForCampaign(ctx context.Context, campaignID string) (broker.Broker, error) {
	const q = `
SELECT b.id, b.name, b.crm_endpoint, b.crm_api_key, b.crm_template
FROM brokers b
JOIN campaigns c ON c.broker_id = b.id
WHERE c.id = $1`
	var b broker.Broker
	err := s.db.QueryRowContext(ctx, q, campaignID).Scan(
		&b.ID, &b.Name, &b.CRMEndpoint, &b.CRMAPIKey, &b.CRMTemplate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return broker.Broker{}, broker.ErrNotFound
	}
	if err != nil {
		return broker.Broker{}, err
	}
	return b, nil
}

const insertEventQuery = `
INSERT INTO crm_events (id, lead_id, broker_id, event_type, payload, status,
                        attempt_count, last_error, next_retry_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)`

func (s *PostgresStore) InsertEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, insertEventQuery,
		e.ID, e.LeadID, e.BrokerID, e.EventType, e.Payload, e.Status,
		e.AttemptCount, e.LastError, nullTime(e.NextRetryAt), e.CreatedAt, e.UpdatedAt,
	)
	return err
}

const updateEventQuery = `
UPDATE crm_events
SET status = $2, attempt_count = $3, last_error = NULLIF($4, ''),
    next_retry_at = $5, updated_at = $6
WHERE id = $1`

func (s *PostgresStore) UpdateEvent(ctx context.Context, e Event) error {
	res, err := s.db.ExecContext(ctx, updateEventQuery,
		e.ID, e.Status, e.AttemptCount, e.LastError, nullTime(e.NextRetryAt), e.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectRetryableQuery = `
SELECT id, lead_id, broker_id, event_type, payload, status,
       attempt_count, COALESCE(last_error, ''), next_retry_at, created_at, updated_at
FROM crm_events
WHERE status = 'failed'
  AND attempt_count < $1
  AND next_retry_at IS NOT NULL
  AND next_retry_at <= $2
ORDER BY next_retry_at ASC
LIMIT $3`

func (s *PostgresStore) SelectRetryable(ctx context.Context, now time.Time, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, selectRetryableQuery, maxAttempts, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var retryAt sql.NullTime
		if err := rows.Scan(
			&e.ID, &e.LeadID, &e.BrokerID, &e.EventType, &e.Payload, &e.Status,
			&e.AttemptCount, &e.LastError, &retryAt, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if retryAt.Valid {
			e.NextRetryAt = retryAt.Time
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

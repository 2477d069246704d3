package pool

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// NOTE: This repository assumes the pool_leads table from db/schema.sql
// with a UNIQUE constraint on phone_normalized.

func selectAvailableForUpdate(ctx context.Context, tx *sql.Tx, f Filters, limit int) ([]PoolLead, error) {
	// SKIP LOCKED lets two concurrent claims partition the inventory
	// instead of serializing on the same rows.
	const q = `
SELECT id, phone, phone_normalized, phone_e164, first_name, last_name, email, country, source,
       status, COALESCE(claimed_by_campaign_id,''), claimed_at, created_at
FROM pool_leads
WHERE status = 'available'
  AND ($1 = '' OR country = $1)
  AND ($2 = '' OR source = $2)
ORDER BY created_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`
	rows, err := tx.QueryContext(ctx, q, f.Country, f.Source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PoolLead
	for rows.Next() {
		var p PoolLead
		var claimedAt sql.NullTime
		if err := rows.Scan(
			&p.ID,
			&p.Phone,
			&p.PhoneNormalized,
			&p.PhoneE164,
			&p.FirstName,
			&p.LastName,
			&p.Email,
			&p.Country,
			&p.Source,
			&p.Status,
			&p.ClaimedByCampaignID,
			&claimedAt,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		if claimedAt.Valid {
			t := claimedAt.Time
			p.ClaimedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func markClaimed(ctx context.Context, tx *sql.Tx, ids []string, campaignID string, now time.Time) error {
	const q = `
UPDATE pool_leads
SET status = 'claimed', claimed_by_campaign_id = $2, claimed_at = $3
WHERE id = ANY($1)
`
	_, err := tx.ExecContext(ctx, q, pq.Array(ids), campaignID, now)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func release(ctx context.Context, db execer, ids []string) error {
	const q = `
UPDATE pool_leads
SET status = 'available', claimed_by_campaign_id = NULL, claimed_at = NULL
WHERE id = ANY($1) AND status = 'claimed'
`
	_, err := db.ExecContext(ctx, q, pq.Array(ids))
	return err
}

func phoneExists(ctx context.Context, db *sql.DB, normalized string) (bool, error) {
	const q = `SELECT 1 FROM pool_leads WHERE phone_normalized = $1 LIMIT 1`
	var one int
	err := db.QueryRowContext(ctx, q, normalized).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func insert(ctx context.Context, db *sql.DB, p PoolLead) error {
	const q = `
INSERT INTO pool_leads (
  id, phone, phone_normalized, phone_e164, first_name, last_name, email, country, source,
  status, claimed_by_campaign_id, claimed_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULL,NULL,$11)
`
	_, err := db.ExecContext(ctx, q,
		p.ID,
		p.Phone,
		p.PhoneNormalized,
		p.PhoneE164,
		p.FirstName,
		p.LastName,
		p.Email,
		p.Country,
		p.Source,
		p.Status,
		p.CreatedAt,
	)
	return err
}

// selectReleaseCandidates locks claimed rows and gathers the campaign
// and lead facts the eligibility rule evaluates in Go.
func selectReleaseCandidates(ctx context.Context, tx *sql.Tx) ([]ReleaseCandidate, error) {
	const q = `
SELECT p.id, c.status, c.completed_at, l.status,
       EXISTS (
         SELECT 1 FROM lead_attempts la
         WHERE la.lead_id = l.id AND la.outcome = 'no_answer'
       )
FROM pool_leads p
JOIN campaigns c ON c.id = p.claimed_by_campaign_id
JOIN leads l ON l.pool_lead_id = p.id
WHERE p.status = 'claimed'
FOR UPDATE OF p SKIP LOCKED
`
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReleaseCandidate
	for rows.Next() {
		var c ReleaseCandidate
		var completedAt sql.NullTime
		if err := rows.Scan(
			&c.PoolID,
			&c.CampaignStatus,
			&completedAt,
			&c.LeadStatus,
			&c.HadNoAnswerAttempt,
		); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t := completedAt.Time
			c.CampaignCompletedAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

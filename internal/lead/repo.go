package lead

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the leads and lead_attempts tables from
// db/schema.sql. Leads are never hard-deleted, only archived.

var ErrNotFound = errors.New("lead: not found")

const leadColumns = `
id, COALESCE(campaign_id,''), COALESCE(pool_lead_id,''), first_name, last_name,
phone, email, country, status, attempt_count, next_script_version,
next_retry_at, archived, created_at, updated_at
`

func scanLead(row interface{ Scan(...any) error }) (Lead, error) {
	var l Lead
	var nextRetry sql.NullTime
	if err := row.Scan(
		&l.ID,
		&l.CampaignID,
		&l.PoolLeadID,
		&l.FirstName,
		&l.LastName,
		&l.Phone,
		&l.Email,
		&l.Country,
		&l.Status,
		&l.AttemptCount,
		&l.NextScriptVersion,
		&nextRetry,
		&l.Archived,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	if nextRetry.Valid {
		t := nextRetry.Time
		l.NextRetryAt = &t
	}
	return l, nil
}

func Get(ctx context.Context, db *sql.DB, id string) (Lead, error) {
	const q = `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	return scanLead(db.QueryRowContext(ctx, q, id))
}

// FindByPhone resolves a lead by its normalized phone. When several leads
// share the number, the most recently updated one wins (the one most
// likely to be on a live call).
func FindByPhone(ctx context.Context, db *sql.DB, normalizedPhone string) (Lead, error) {
	const q = `SELECT ` + leadColumns + `
FROM leads
WHERE phone = $1 AND NOT archived
ORDER BY updated_at DESC
LIMIT 1`
	return scanLead(db.QueryRowContext(ctx, q, normalizedPhone))
}

// SelectQueued returns up to limit queued leads for one campaign,
// oldest-uploaded-first.
func SelectQueued(ctx context.Context, db *sql.DB, campaignID string, limit int) ([]Lead, error) {
	const q = `SELECT ` + leadColumns + `
FROM leads
WHERE campaign_id = $1 AND status = $2 AND NOT archived
ORDER BY created_at ASC
LIMIT $3`
	rows, err := db.QueryContext(ctx, q, campaignID, StatusQueued, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func Insert(ctx context.Context, db *sql.DB, l Lead) error {
	const q = `
INSERT INTO leads (
  id, campaign_id, pool_lead_id, first_name, last_name, phone, email, country,
  status, attempt_count, next_script_version, next_retry_at, archived,
  created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`
	_, err := db.ExecContext(ctx, q,
		l.ID,
		nullIfEmpty(l.CampaignID),
		nullIfEmpty(l.PoolLeadID),
		l.FirstName,
		l.LastName,
		l.Phone,
		l.Email,
		l.Country,
		l.Status,
		l.AttemptCount,
		l.NextScriptVersion,
		l.NextRetryAt,
		l.Archived,
		l.CreatedAt,
		l.UpdatedAt,
	)
	return err
}

func UpdateStatus(ctx context.Context, db *sql.DB, id string, status Status, now time.Time) error {
	const q = `UPDATE leads SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := db.ExecContext(ctx, q, id, status, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCalled flips the lead to called and bumps the attempt counter in
// one statement.
func MarkCalled(ctx context.Context, db *sql.DB, id string, now time.Time) error {
	const q = `
UPDATE leads
SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
WHERE id = $1`
	res, err := db.ExecContext(ctx, q, id, StatusCalled, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRetrySchedule persists the escalated script version and the next
// retry time computed by the retry scheduler.
func SetRetrySchedule(ctx context.Context, db *sql.DB, id string, version ScriptVersion, at, now time.Time) error {
	const q = `
UPDATE leads
SET next_script_version = $2, next_retry_at = $3, updated_at = $4
WHERE id = $1`
	res, err := db.ExecContext(ctx, q, id, version, at, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Requeue sets the lead back to queued with the scheduled script version
// and clears the retry timestamp. Used by the retry sweep.
func Requeue(ctx context.Context, db *sql.DB, id string, version ScriptVersion, now time.Time) error {
	const q = `
UPDATE leads
SET status = $2, next_script_version = $3, next_retry_at = NULL, updated_at = $4
WHERE id = $1`
	res, err := db.ExecContext(ctx, q, id, StatusQueued, version, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func AppendAttempt(ctx context.Context, db *sql.DB, a Attempt) error {
	const q = `
INSERT INTO lead_attempts (
  id, lead_id, campaign_id, attempt_number, script_version, external_call_id,
  started_at, ended_at, outcome, duration_seconds
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err := db.ExecContext(ctx, q,
		a.ID,
		a.LeadID,
		a.CampaignID,
		a.AttemptNumber,
		a.ScriptVersion,
		a.ExternalCallID,
		a.StartedAt,
		a.EndedAt,
		a.Outcome,
		a.DurationSec,
	)
	return err
}

// CloseLatestAttempt records the call duration and outcome on the most
// recent attempt of the lead.
func CloseLatestAttempt(ctx context.Context, db *sql.DB, leadID, outcome string, durationSec int, endedAt time.Time) error {
	const q = `
UPDATE lead_attempts
SET ended_at = $2, outcome = CASE WHEN $3 <> '' THEN $3 ELSE outcome END, duration_seconds = $4
WHERE id = (
  SELECT id FROM lead_attempts WHERE lead_id = $1 ORDER BY started_at DESC LIMIT 1
)`
	_, err := db.ExecContext(ctx, q, leadID, endedAt, outcome, durationSec)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

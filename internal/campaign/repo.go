package campaign

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("campaign: not found")

const campaignColumns = `
id, broker_id, name, funnel, country, status, concurrency_limit, max_attempts,
retry_interval_minutes, window_start, window_end, timezone, agent_language,
completed_at, created_at, updated_at
`

func scanCampaign(row interface{ Scan(...any) error }) (Campaign, error) {
	var c Campaign
	var completed sql.NullTime
	if err := row.Scan(
		&c.ID,
		&c.BrokerID,
		&c.Name,
		&c.Funnel,
		&c.Country,
		&c.Status,
		&c.ConcurrencyLimit,
		&c.MaxAttempts,
		&c.RetryIntervalMinutes,
		&c.WindowStart,
		&c.WindowEnd,
		&c.Timezone,
		&c.AgentLanguage,
		&completed,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, err
	}
	if completed.Valid {
		t := completed.Time
		c.CompletedAt = &t
	}
	return c, nil
}

func Get(ctx context.Context, db *sql.DB, id string) (Campaign, error) {
	const q = `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	return scanCampaign(db.QueryRowContext(ctx, q, id))
}

// ListActive returns campaigns eligible for a scheduler pass.
func ListActive(ctx context.Context, db *sql.DB) ([]Campaign, error) {
	const q = `SELECT ` + campaignColumns + `
FROM campaigns
WHERE status = $1
ORDER BY created_at ASC`
	rows, err := db.QueryContext(ctx, q, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkCompleted transitions an active campaign to completed and stamps
// completed_at, which starts the pool-release cooldown clock.
func MarkCompleted(ctx context.Context, db *sql.DB, id string, now time.Time) error {
	const q = `
UPDATE campaigns
SET status = $2, completed_at = $3, updated_at = $3
WHERE id = $1 AND status = $4`
	res, err := db.ExecContext(ctx, q, id, StatusCompleted, now, StatusActive)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountWorkableLeads counts leads a campaign could still dial or is
// dialing: anything queued, freshly uploaded, or with a pending retry.
func CountWorkableLeads(ctx context.Context, db *sql.DB, campaignID string) (int, error) {
	const q = `
SELECT COUNT(*)
FROM leads
WHERE campaign_id = $1
  AND NOT archived
  AND (status IN ('new','queued','called') OR next_retry_at IS NOT NULL)`
	var n int
	if err := db.QueryRowContext(ctx, q, campaignID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetScript fetches the script body for one version, falling back to
// version A when the requested version is not configured.
func GetScript(ctx context.Context, db *sql.DB, campaignID, version string) (Script, error) {
	const q = `
SELECT campaign_id, version, body
FROM campaign_scripts
WHERE campaign_id = $1 AND version = $2`
	var s Script
	err := db.QueryRowContext(ctx, q, campaignID, version).Scan(&s.CampaignID, &s.Version, &s.Body)
	if errors.Is(err, sql.ErrNoRows) && version != "A" {
		return GetScript(ctx, db, campaignID, "A")
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Script{}, ErrNotFound
	}
	if err != nil {
		return Script{}, err
	}
	return s, nil
}

// GetDetector fetches the campaign's detector text; a missing detector
// is not an error, it just yields an empty body.
func GetDetector(ctx context.Context, db *sql.DB, campaignID string) (string, error) {
	const q = `SELECT body FROM campaign_detectors WHERE campaign_id = $1`
	var body string
	err := db.QueryRowContext(ctx, q, campaignID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return body, nil
}

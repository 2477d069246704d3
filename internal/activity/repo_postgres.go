package activity

import (
	"context"
	"database/sql"
)

// PostgresRepository appends activity rows to campaign_activity.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO campaign_activity (id, campaign_id, lead_id, type, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.CampaignID,
		e.LeadID,
		e.Type,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

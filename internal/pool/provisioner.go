package pool

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"dialer-platform/internal/campaign"
	"dialer-platform/internal/lead"

	"github.com/google/uuid"
)

// ProvisionStore is the persistence surface the top-up pass needs.
type ProvisionStore interface {
	ListActiveCampaigns(ctx context.Context) ([]campaign.Campaign, error)

	// CountDialable counts a campaign's leads still waiting for a first
	// or repeat call (new or queued, not archived).
	CountDialable(ctx context.Context, campaignID string) (int, error)
	Claim(ctx context.Context, campaignID string, f Filters, limit int) ([]PoolLead, error)
	InsertLead(ctx context.Context, l lead.Lead) error
	Release(ctx context.Context, poolIDs []string) error
}

// Provisioner keeps active campaigns fed from the shared pool: each
// pass tops every campaign's dialable backlog up to a target by
// claiming matching pool rows and converting them into queued leads.
type Provisioner struct {
	store ProvisionStore
	clock func() time.Time
}

func NewProvisioner(store ProvisionStore) *Provisioner {
	return &Provisioner{store: store, clock: time.Now}
}

// TopUp returns the number of leads created across all campaigns. A
// pool row whose lead insert fails is released back to the pool so it
// is not stranded in the claimed state.
func (p *Provisioner) TopUp(ctx context.Context, target int) (int, error) {
	if target <= 0 {
		return 0, ErrInvalidArgument
	}

	campaigns, err := p.store.ListActiveCampaigns(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, c := range campaigns {
		n, err := p.store.CountDialable(ctx, c.ID)
		if err != nil {
			slog.Warn("pool top-up: backlog count failed", "campaign_id", c.ID, "err", err)
			continue
		}
		short := target - n
		if short <= 0 {
			continue
		}

		claimed, err := p.store.Claim(ctx, c.ID, Filters{Country: c.Country}, short)
		if err != nil {
			slog.Warn("pool top-up: claim failed", "campaign_id", c.ID, "err", err)
			continue
		}

		now := p.clock().UTC()
		for _, pl := range claimed {
			l := lead.Lead{
				ID:                uuid.NewString(),
				CampaignID:        c.ID,
				PoolLeadID:        pl.ID,
				FirstName:         pl.FirstName,
				LastName:          pl.LastName,
				Phone:             pl.PhoneNormalized,
				Email:             pl.Email,
				Country:           pl.Country,
				Status:            lead.StatusQueued,
				NextScriptVersion: lead.ScriptA,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := p.store.InsertLead(ctx, l); err != nil {
				slog.Warn("pool top-up: lead insert failed", "pool_lead_id", pl.ID, "err", err)
				if rerr := p.store.Release(ctx, []string{pl.ID}); rerr != nil {
					slog.Warn("pool top-up: release after failed insert", "pool_lead_id", pl.ID, "err", rerr)
				}
				continue
			}
			created++
		}
	}
	return created, nil
}

// PostgresProvisionStore implements ProvisionStore on the shared
// *sql.DB, reusing the Allocator for the claim transaction.
type PostgresProvisionStore struct {
	db        *sql.DB
	allocator *Allocator
}

func NewPostgresProvisionStore(db *sql.DB) *PostgresProvisionStore {
	return &PostgresProvisionStore{db: db, allocator: NewAllocator(db)}
}

func (s *PostgresProvisionStore) ListActiveCampaigns(ctx context.Context) ([]campaign.Campaign, error) {
	return campaign.ListActive(ctx, s.db)
}

func (s *PostgresProvisionStore) CountDialable(ctx context.Context, campaignID string) (int, error) {
	const q = `
SELECT COUNT(*) FROM leads
WHERE campaign_id = $1 AND status IN ('new','queued') AND NOT archived
`
	var n int
	err := s.db.QueryRowContext(ctx, q, campaignID).Scan(&n)
	return n, err
}

func (s *PostgresProvisionStore) Claim(ctx context.Context, campaignID string, f Filters, limit int) ([]PoolLead, error) {
	return s.allocator.Claim(ctx, campaignID, f, limit)
}

func (s *PostgresProvisionStore) InsertLead(ctx context.Context, l lead.Lead) error {
	return lead.Insert(ctx, s.db, l)
}

func (s *PostgresProvisionStore) Release(ctx context.Context, poolIDs []string) error {
	return s.allocator.Release(ctx, poolIDs)
}

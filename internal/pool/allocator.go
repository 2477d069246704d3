package pool

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dialer-platform/pkg/phone"
	"dialer-platform/pkg/utils"

	"github.com/google/uuid"
)

// Allocator owns the shared prospect inventory. Claiming is the one
// operation in the system that needs pessimistic locking: the row lock
// and the claimed-flag update happen inside a single transaction so two
// campaigns claiming concurrently never receive overlapping rows.

type PoolStatus string

const (
	StatusAvailable PoolStatus = "available"
	StatusClaimed   PoolStatus = "claimed"
)

type PoolLead struct {
	ID              string
	Phone           string
	PhoneNormalized string // digit-stripped dedupe key
	PhoneE164       string // display/dialing rendering, best effort
	FirstName       string
	LastName        string
	Email           string
	Country         string
	Source          string

	Status              PoolStatus
	ClaimedByCampaignID string
	ClaimedAt           *time.Time

	CreatedAt time.Time
}

// Candidate is an ingestion request for one prospect.
type Candidate struct {
	Phone     string
	FirstName string
	LastName  string
	Email     string
	Country   string
	Source    string
}

// Filters narrows which available rows a claim may take.
type Filters struct {
	Country string
	Source  string
}

var (
	ErrInvalidArgument = errors.New("pool: invalid argument")
	ErrDuplicate       = errors.New("pool: duplicate phone")
	ErrSkipped         = errors.New("pool: phone failed normalization")
)

type Allocator struct {
	db    *sql.DB
	clock func() time.Time
}

func NewAllocator(db *sql.DB) *Allocator {
	return &Allocator{db: db, clock: time.Now}
}

// Claim locks up to limit available rows matching filters and marks
// them claimed by the campaign, all in one transaction. The returned
// rows are the caller's to convert into campaign leads; that insert is
// deliberately not part of this transaction.
func (a *Allocator) Claim(ctx context.Context, campaignID string, f Filters, limit int) ([]PoolLead, error) {
	if campaignID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		return nil, ErrInvalidArgument
	}

	now := a.clock().UTC()
	var claimed []PoolLead

	err := utils.WithTx(ctx, a.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := selectAvailableForUpdate(ctx, tx, f, limit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}
		if err := markClaimed(ctx, tx, ids, campaignID, now); err != nil {
			return err
		}

		for i := range rows {
			rows[i].Status = StatusClaimed
			rows[i].ClaimedByCampaignID = campaignID
			t := now
			rows[i].ClaimedAt = &t
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Release resets claimed rows to available, clearing claim metadata.
// Idempotent: already-available rows are untouched.
func (a *Allocator) Release(ctx context.Context, poolIDs []string) error {
	if len(poolIDs) == 0 {
		return nil
	}
	return release(ctx, a.db, poolIDs)
}

// Insert ingests one candidate with global phone-based deduplication.
// The dedupe key is the digit-stripped phone, regardless of country or
// source.
func (a *Allocator) Insert(ctx context.Context, c Candidate) (PoolLead, error) {
	normalized, err := phone.Validate(c.Phone)
	if err != nil {
		return PoolLead{}, ErrSkipped
	}

	exists, err := phoneExists(ctx, a.db, normalized)
	if err != nil {
		return PoolLead{}, err
	}
	if exists {
		return PoolLead{}, ErrDuplicate
	}

	p := newPoolLead(c, normalized, a.clock().UTC())
	if err := insert(ctx, a.db, p); err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent ingest of the same number.
			return PoolLead{}, ErrDuplicate
		}
		return PoolLead{}, err
	}
	return p, nil
}

// newPoolLead builds the stored row: the digit-stripped dedupe key and
// the E.164 rendering are kept side by side so dialing never has to
// re-derive the country.
func newPoolLead(c Candidate, normalized string, now time.Time) PoolLead {
	return PoolLead{
		ID:              uuid.NewString(),
		Phone:           c.Phone,
		PhoneNormalized: normalized,
		PhoneE164:       phone.FormatE164(c.Phone, c.Country),
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Email:           c.Email,
		Country:         c.Country,
		Source:          c.Source,
		Status:          StatusAvailable,
		CreatedAt:       now,
	}
}

// ReleaseCandidate carries the facts the cooldown rule needs about one
// claimed pool row: how its owning campaign ended and how the
// campaign-side lead fared.
type ReleaseCandidate struct {
	PoolID              string
	CampaignStatus      string
	CampaignCompletedAt *time.Time
	LeadStatus          string
	HadNoAnswerAttempt  bool
}

// eligibleForRelease decides whether a claimed row goes back on the
// market: the owning campaign must have completed before the cooldown
// cutoff, and the lead must have ended in a bad outcome (terminal bad
// status, or at least one no-answer attempt).
func eligibleForRelease(c ReleaseCandidate, cutoff time.Time) bool {
	if c.CampaignStatus != "completed" {
		return false
	}
	if c.CampaignCompletedAt == nil || c.CampaignCompletedAt.After(cutoff) {
		return false
	}
	switch c.LeadStatus {
	case "voicemail", "not_interested", "failed":
		return true
	}
	return c.HadNoAnswerAttempt
}

// ReleaseEligible is the cooldown sweep: pool leads whose campaign-side
// lead ended in a bad outcome go back on the market once the owning
// campaign has been completed for at least the cooldown period.
// Returns the number of rows released.
func (a *Allocator) ReleaseEligible(ctx context.Context, cooldown time.Duration) (int, error) {
	cutoff := a.clock().UTC().Add(-cooldown)

	released := 0
	err := utils.WithTx(ctx, a.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		cands, err := selectReleaseCandidates(ctx, tx)
		if err != nil {
			return err
		}

		var ids []string
		for _, c := range cands {
			if eligibleForRelease(c, cutoff) {
				ids = append(ids, c.PoolID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		if err := release(ctx, tx, ids); err != nil {
			return err
		}
		released = len(ids)
		return nil
	})
	return released, err
}

package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"dialer-platform/internal/campaign"
	"dialer-platform/internal/lead"
)

type stubProvisionStore struct {
	campaigns []campaign.Campaign
	backlog   map[string]int
	available []PoolLead

	claims    []int
	inserted  []lead.Lead
	released  []string
	insertErr map[string]error
}

func newStubProvisionStore() *stubProvisionStore {
	return &stubProvisionStore{
		backlog:   map[string]int{},
		insertErr: map[string]error{},
	}
}

func (s *stubProvisionStore) ListActiveCampaigns(ctx context.Context) ([]campaign.Campaign, error) {
	return s.campaigns, nil
}
func (s *stubProvisionStore) CountDialable(ctx context.Context, campaignID string) (int, error) {
	return s.backlog[campaignID], nil
}
func (s *stubProvisionStore) Claim(ctx context.Context, campaignID string, f Filters, limit int) ([]PoolLead, error) {
	s.claims = append(s.claims, limit)
	n := limit
	if n > len(s.available) {
		n = len(s.available)
	}
	out := make([]PoolLead, n)
	copy(out, s.available[:n])
	s.available = s.available[n:]
	for i := range out {
		out[i].Status = StatusClaimed
		out[i].ClaimedByCampaignID = campaignID
	}
	return out, nil
}
func (s *stubProvisionStore) InsertLead(ctx context.Context, l lead.Lead) error {
	if err := s.insertErr[l.PoolLeadID]; err != nil {
		return err
	}
	s.inserted = append(s.inserted, l)
	return nil
}
func (s *stubProvisionStore) Release(ctx context.Context, poolIDs []string) error {
	s.released = append(s.released, poolIDs...)
	return nil
}

func provisionFixture() (*stubProvisionStore, *Provisioner) {
	store := newStubProvisionStore()
	store.campaigns = []campaign.Campaign{{ID: "c1", Status: campaign.StatusActive, Country: "IT"}}
	store.available = []PoolLead{
		{ID: "p1", PhoneNormalized: "393331234567", PhoneE164: "+393331234567", Country: "IT"},
		{ID: "p2", PhoneNormalized: "393331234568", PhoneE164: "+393331234568", Country: "IT"},
		{ID: "p3", PhoneNormalized: "393331234569", PhoneE164: "+393331234569", Country: "IT"},
	}

	p := NewProvisioner(store)
	p.clock = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return store, p
}

func TestTopUp_ClaimsOnlyTheShortfall(t *testing.T) {
	store, p := provisionFixture()
	store.backlog["c1"] = 3

	created, err := p.TopUp(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 leads created, got %d", created)
	}
	if len(store.claims) != 1 || store.claims[0] != 2 {
		t.Fatalf("expected a single claim of 2, got %v", store.claims)
	}

	l := store.inserted[0]
	if l.CampaignID != "c1" || l.PoolLeadID != "p1" {
		t.Fatalf("lead not linked to its pool row: %+v", l)
	}
	if l.Status != lead.StatusQueued || l.NextScriptVersion != lead.ScriptA {
		t.Fatalf("new lead must start queued on script A: %+v", l)
	}
	if l.Phone != "393331234567" {
		t.Fatalf("lead phone must be the normalized form, got %q", l.Phone)
	}
}

func TestTopUp_FullBacklogClaimsNothing(t *testing.T) {
	store, p := provisionFixture()
	store.backlog["c1"] = 10

	created, err := p.TopUp(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if created != 0 || len(store.claims) != 0 {
		t.Fatalf("a full backlog must not touch the pool")
	}
}

func TestTopUp_FailedInsertReleasesPoolRow(t *testing.T) {
	store, p := provisionFixture()
	store.insertErr["p1"] = errors.New("boom")

	created, err := p.TopUp(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected the healthy row to convert, got %d", created)
	}
	if len(store.released) != 1 || store.released[0] != "p1" {
		t.Fatalf("failed insert must release its pool row, got %v", store.released)
	}
}

func TestTopUp_RejectsInvalidTarget(t *testing.T) {
	_, p := provisionFixture()
	if _, err := p.TopUp(context.Background(), 0); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

package pool

import (
	"context"
	"testing"
	"time"
)

// Claim/Release run Postgres-specific SQL (FOR UPDATE SKIP LOCKED, ANY)
// and are covered by integration tests against a real database. What we
// can unit-test here is argument validation and the ingestion gates.

func TestAllocator_Claim_RejectsInvalidArgs(t *testing.T) {
	a := NewAllocator(nil)

	if _, err := a.Claim(context.Background(), "", Filters{}, 10); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument for missing campaign, got %v", err)
	}
	if _, err := a.Claim(context.Background(), "c1", Filters{}, 0); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument for zero limit, got %v", err)
	}
}

func TestAllocator_Insert_SkipsUnnormalizablePhones(t *testing.T) {
	a := NewAllocator(nil)

	for _, raw := range []string{"", "12345", "phone-number", "12345678901234567890"} {
		if _, err := a.Insert(context.Background(), Candidate{Phone: raw}); err != ErrSkipped {
			t.Fatalf("Insert(%q): expected ErrSkipped, got %v", raw, err)
		}
	}
}

func TestAllocator_Release_EmptyIsNoop(t *testing.T) {
	a := NewAllocator(nil)
	if err := a.Release(context.Background(), nil); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestNewPoolLead_StoresE164AlongsideDedupeKey(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	c := Candidate{Phone: "333 123 4567", Country: "IT", Source: "import"}

	p := newPoolLead(c, "3331234567", now)
	if p.PhoneNormalized != "3331234567" {
		t.Fatalf("dedupe key = %q", p.PhoneNormalized)
	}
	if p.PhoneE164 != "+393331234567" {
		t.Fatalf("E.164 rendering = %q, want +393331234567", p.PhoneE164)
	}
	if p.Status != StatusAvailable || p.ID == "" {
		t.Fatalf("unexpected row: %+v", p)
	}
}

func TestEligibleForRelease(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := cutoff.Add(-time.Hour)
	after := cutoff.Add(time.Hour)

	tests := []struct {
		name string
		c    ReleaseCandidate
		want bool
	}{
		{
			name: "voicemail lead, campaign cooled down",
			c:    ReleaseCandidate{CampaignStatus: "completed", CampaignCompletedAt: &before, LeadStatus: "voicemail"},
			want: true,
		},
		{
			name: "not_interested lead, campaign cooled down",
			c:    ReleaseCandidate{CampaignStatus: "completed", CampaignCompletedAt: &before, LeadStatus: "not_interested"},
			want: true,
		},
		{
			name: "failed lead, campaign cooled down",
			c:    ReleaseCandidate{CampaignStatus: "completed", CampaignCompletedAt: &before, LeadStatus: "failed"},
			want: true,
		},
		{
			name: "no-answer attempt counts even with a live lead status",
			c:    ReleaseCandidate{CampaignStatus: "completed", CampaignCompletedAt: &before, LeadStatus: "queued", HadNoAnswerAttempt: true},
			want: true,
		},
		{
			name: "good outcome stays claimed",
			c:    ReleaseCandidate{CampaignStatus: "completed", CampaignCompletedAt: &before, LeadStatus: "activation_requested"},
			want: false,
		},
		{
			name: "campaign still active",
			c:    ReleaseCandidate{CampaignStatus: "active", LeadStatus: "failed"},
			want: false,
		},
		{
			name: "campaign completed inside the cooldown",
			c:    ReleaseCandidate{CampaignStatus: "completed", CampaignCompletedAt: &after, LeadStatus: "failed"},
			want: false,
		},
		{
			name: "completed at exactly the cutoff is eligible",
			c:    ReleaseCandidate{CampaignStatus: "completed", CampaignCompletedAt: &cutoff, LeadStatus: "failed"},
			want: true,
		},
		{
			name: "completed with no timestamp is not eligible",
			c:    ReleaseCandidate{CampaignStatus: "completed", LeadStatus: "failed"},
			want: false,
		},
	}

	for _, tt := range tests {
		if got := eligibleForRelease(tt.c, cutoff); got != tt.want {
			t.Fatalf("%s: eligibleForRelease = %v, want %v", tt.name, got, tt.want)
		}
	}
}

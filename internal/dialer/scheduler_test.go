package dialer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"dialer-platform/internal/broker"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/lead"
	"dialer-platform/internal/telephony"
)

type stubStore struct {
	campaigns []campaign.Campaign
	route     broker.Route
	routeErr  error
	active    map[string]int
	queued    map[string][]lead.Lead
	script    campaign.Script
	detector  string

	activeCalls    []ActiveCall
	clearedLeads   []string
	attempts       []lead.Attempt
	calledLeads    []string
	staleDeleted   int
	workable       map[string]int
	completedIDs   []string
	insertCallErr  error
	deleteBeforeIn bool
}

func newStubStore() *stubStore {
	return &stubStore{
		active:   map[string]int{},
		queued:   map[string][]lead.Lead{},
		workable: map[string]int{},
		route:    broker.Route{ID: "r1", RuleName: "rule", CallerID: "+1000", Active: true},
		script:   campaign.Script{Version: "A", Body: "Hello {{name}} from {{campaign}}"},
	}
}

func (s *stubStore) ListActiveCampaigns(ctx context.Context) ([]campaign.Campaign, error) {
	return s.campaigns, nil
}
func (s *stubStore) ResolveRoute(ctx context.Context, brokerID, country string) (broker.Route, error) {
	if s.routeErr != nil {
		return broker.Route{}, s.routeErr
	}
	return s.route, nil
}
func (s *stubStore) CountActiveCalls(ctx context.Context, campaignID string) (int, error) {
	return s.active[campaignID] + len(s.activeCalls), nil
}
func (s *stubStore) SelectQueuedLeads(ctx context.Context, campaignID string, limit int) ([]lead.Lead, error) {
	ls := s.queued[campaignID]
	if len(ls) > limit {
		ls = ls[:limit]
	}
	return ls, nil
}
func (s *stubStore) GetScript(ctx context.Context, campaignID, version string) (campaign.Script, error) {
	return s.script, nil
}
func (s *stubStore) GetDetector(ctx context.Context, campaignID string) (string, error) {
	return s.detector, nil
}
func (s *stubStore) DeleteActiveCallByLead(ctx context.Context, leadID string) error {
	s.clearedLeads = append(s.clearedLeads, leadID)
	s.deleteBeforeIn = true
	return nil
}
func (s *stubStore) InsertActiveCall(ctx context.Context, ac ActiveCall) error {
	if s.insertCallErr != nil {
		return s.insertCallErr
	}
	if !s.deleteBeforeIn {
		return errors.New("insert before clearing stale row")
	}
	s.deleteBeforeIn = false
	s.activeCalls = append(s.activeCalls, ac)
	return nil
}
func (s *stubStore) AppendAttempt(ctx context.Context, a lead.Attempt) error {
	s.attempts = append(s.attempts, a)
	return nil
}
func (s *stubStore) MarkLeadCalled(ctx context.Context, leadID string, now time.Time) error {
	s.calledLeads = append(s.calledLeads, leadID)
	return nil
}
func (s *stubStore) DeleteStaleActiveCalls(ctx context.Context, olderThan time.Time) (int, error) {
	return s.staleDeleted, nil
}
func (s *stubStore) CountWorkableLeads(ctx context.Context, campaignID string) (int, error) {
	return s.workable[campaignID], nil
}
func (s *stubStore) MarkCampaignCompleted(ctx context.Context, campaignID string, now time.Time) error {
	s.completedIDs = append(s.completedIDs, campaignID)
	return nil
}

type stubCaller struct {
	calls   []telephony.CallRequest
	failFor map[string]bool
}

func (c *stubCaller) InitiateCall(ctx context.Context, req telephony.CallRequest) (telephony.CallResult, error) {
	if c.failFor[req.Data.LeadID] {
		return telephony.CallResult{}, errors.New("provider 502")
	}
	c.calls = append(c.calls, req)
	return telephony.CallResult{ExternalCallID: "ext-" + req.Data.LeadID}, nil
}

func testCampaign(limit int) campaign.Campaign {
	return campaign.Campaign{
		ID:               "c1",
		BrokerID:         "b1",
		Name:             "Summer",
		Country:          "IT",
		Status:           campaign.StatusActive,
		ConcurrencyLimit: limit,
		MaxAttempts:      3,
		WindowStart:      "09:00",
		WindowEnd:        "20:00",
		Timezone:         "UTC",
		AgentLanguage:    campaign.LanguageItalian,
	}
}

func queuedLeads(n int) []lead.Lead {
	out := make([]lead.Lead, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, lead.Lead{
			ID:                fmt.Sprintf("l%d", i+1),
			CampaignID:        "c1",
			FirstName:         "Mario",
			Phone:             fmt.Sprintf("39333000000%d", i),
			Status:            lead.StatusQueued,
			NextScriptVersion: lead.ScriptA,
		})
	}
	return out
}

func newTestScheduler(store *stubStore, caller *stubCaller, at time.Time) (*Scheduler, *int) {
	s := NewScheduler(store, caller, nil, Config{
		WebhookURL:    "https://dialer.example.com/webhooks/call-events",
		WebhookSecret: "whsec",
	})
	s.clock = func() time.Time { return at }
	sleeps := 0
	s.sleep = func(time.Duration) { sleeps++ }
	return s, &sleeps
}

func TestRun_RespectsConcurrencyLimit(t *testing.T) {
	store := newStubStore()
	store.campaigns = []campaign.Campaign{testCampaign(2)}
	store.queued["c1"] = queuedLeads(5)
	caller := &stubCaller{}

	s, _ := newTestScheduler(store, caller, time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC))
	placed, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if placed != 2 {
		t.Fatalf("expected 2 calls placed, got %d", placed)
	}
	if len(store.activeCalls) != 2 {
		t.Fatalf("expected 2 active call rows, got %d", len(store.activeCalls))
	}
	if len(store.attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(store.attempts))
	}
}

func TestRun_SkipsOutsideCallWindow(t *testing.T) {
	store := newStubStore()
	store.campaigns = []campaign.Campaign{testCampaign(2)}
	store.queued["c1"] = queuedLeads(3)
	caller := &stubCaller{}

	s, _ := newTestScheduler(store, caller, time.Date(2025, 6, 10, 21, 0, 0, 0, time.UTC))
	placed, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if placed != 0 {
		t.Fatalf("expected 0 calls at 21:00 UTC, got %d", placed)
	}
}

func TestRun_SkipsWhenNoRoute(t *testing.T) {
	store := newStubStore()
	store.campaigns = []campaign.Campaign{testCampaign(2)}
	store.queued["c1"] = queuedLeads(2)
	store.routeErr = broker.ErrNotFound
	caller := &stubCaller{}

	s, _ := newTestScheduler(store, caller, time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC))
	placed, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if placed != 0 {
		t.Fatalf("expected 0 calls without a route, got %d", placed)
	}
}

func TestRun_SkipsWhenSlotsExhausted(t *testing.T) {
	store := newStubStore()
	store.campaigns = []campaign.Campaign{testCampaign(2)}
	store.active["c1"] = 2
	store.queued["c1"] = queuedLeads(3)
	caller := &stubCaller{}

	s, _ := newTestScheduler(store, caller, time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC))
	placed, _ := s.Run(context.Background())
	if placed != 0 {
		t.Fatalf("expected 0 calls with slots full, got %d", placed)
	}
}

func TestRun_FailedLeadDoesNotAbortBatch(t *testing.T) {
	store := newStubStore()
	store.campaigns = []campaign.Campaign{testCampaign(3)}
	store.queued["c1"] = queuedLeads(3)
	caller := &stubCaller{failFor: map[string]bool{"l1": true}}

	s, _ := newTestScheduler(store, caller, time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC))
	placed, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if placed != 2 {
		t.Fatalf("expected 2 of 3 placed, got %d", placed)
	}
}

func TestRun_ThrottleSkippedAfterLastLead(t *testing.T) {
	store := newStubStore()
	store.campaigns = []campaign.Campaign{testCampaign(3)}
	store.queued["c1"] = queuedLeads(3)
	caller := &stubCaller{}

	s, sleeps := newTestScheduler(store, caller, time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC))
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if *sleeps != 2 {
		t.Fatalf("expected 2 throttle sleeps for 3 leads, got %d", *sleeps)
	}
}

func TestRun_RendersTemplatesIntoPayload(t *testing.T) {
	store := newStubStore()
	store.campaigns = []campaign.Campaign{testCampaign(1)}
	store.queued["c1"] = queuedLeads(1)
	store.detector = "Detect {{campaign}}"
	caller := &stubCaller{}

	s, _ := newTestScheduler(store, caller, time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC))
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(caller.calls) != 1 {
		t.Fatalf("expected 1 call")
	}
	data := caller.calls[0].Data
	if data.ScriptBody != "Hello Mario from Summer" {
		t.Fatalf("script not rendered: %q", data.ScriptBody)
	}
	if data.DetectorBody != "Detect Summer" {
		t.Fatalf("detector not rendered: %q", data.DetectorBody)
	}
	if data.AgentType != 2 {
		t.Fatalf("expected italian agent type, got %d", data.AgentType)
	}
	if data.WebhookSecret != "whsec" {
		t.Fatalf("webhook secret not forwarded")
	}
}

func TestCompleteExhausted(t *testing.T) {
	store := newStubStore()
	store.campaigns = []campaign.Campaign{testCampaign(2)}
	store.workable["c1"] = 0
	caller := &stubCaller{}

	s, _ := newTestScheduler(store, caller, time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC))
	n, err := s.CompleteExhausted(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 1 || len(store.completedIDs) != 1 {
		t.Fatalf("expected campaign completed, got n=%d", n)
	}
}

func TestCompleteExhausted_SkipsWorkableCampaigns(t *testing.T) {
	store := newStubStore()
	store.campaigns = []campaign.Campaign{testCampaign(2)}
	store.workable["c1"] = 4
	caller := &stubCaller{}

	s, _ := newTestScheduler(store, caller, time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC))
	n, _ := s.CompleteExhausted(context.Background())
	if n != 0 {
		t.Fatalf("expected no completion, got %d", n)
	}
}

func TestReapStaleCalls(t *testing.T) {
	store := newStubStore()
	store.staleDeleted = 3
	caller := &stubCaller{}

	s, _ := newTestScheduler(store, caller, time.Now())
	n, err := s.ReapStaleCalls(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 reaped, got %d", n)
	}
}

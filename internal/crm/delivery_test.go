package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"dialer-platform/internal/broker"
	"dialer-platform/internal/lead"
)

type stubCRMStore struct {
	leads   map[string]lead.Lead
	brokers map[string]broker.Broker // by id and by campaign id

	inserted []Event
	updated  []Event
}

func (s *stubCRMStore) GetLead(ctx context.Context, id string) (lead.Lead, error) {
	l, ok := s.leads[id]
	if !ok {
		return lead.Lead{}, lead.ErrNotFound
	}
	return l, nil
}
func (s *stubCRMStore) BrokerForCampaign(ctx context.Context, campaignID string) (broker.Broker, error) {
	b, ok := s.brokers[campaignID]
	if !ok {
		return broker.Broker{}, broker.ErrNotFound
	}
	return b, nil
}
func (s *stubCRMStore) GetBroker(ctx context.Context, id string) (broker.Broker, error) {
	b, ok := s.brokers[id]
	if !ok {
		return broker.Broker{}, broker.ErrNotFound
	}
	return b, nil
}
func (s *stubCRMStore) InsertEvent(ctx context.Context, e Event) error {
	s.inserted = append(s.inserted, e)
	return nil
}
func (s *stubCRMStore) UpdateEvent(ctx context.Context, e Event) error {
	s.updated = append(s.updated, e)
	return nil
}
func (s *stubCRMStore) SelectRetryable(ctx context.Context, now time.Time, limit int) ([]Event, error) {
	return nil, nil
}

func crmFixture(endpoint string) (*stubCRMStore, *Service) {
	store := &stubCRMStore{
		leads: map[string]lead.Lead{
			"l1": {ID: "l1", CampaignID: "c1", FirstName: "Mario", LastName: "Rossi", Phone: "393331234567", Email: "mario@example.com"},
		},
		brokers: map[string]broker.Broker{},
	}
	b := broker.Broker{
		ID:          "b1",
		CRMEndpoint: endpoint,
		CRMAPIKey:   "key-123",
		CRMTemplate: `{"source":"dialer","tenant":"acme"}`,
	}
	store.brokers["c1"] = b
	store.brokers["b1"] = b
	return store, NewService(store, nil)
}

func TestTrigger_PostsEnvelopeWithTemplate(t *testing.T) {
	var gotBody map[string]any
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, svc := crmFixture(srv.URL)
	err := svc.Trigger(context.Background(), "l1", "ai_classification", map[string]any{"classification": "curious"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if gotKey != "key-123" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotBody["event"] != "ai_classification" {
		t.Fatalf("expected event in envelope, got %v", gotBody["event"])
	}
	if gotBody["source"] != "dialer" || gotBody["tenant"] != "acme" {
		t.Fatalf("broker template must be merged, got %v", gotBody)
	}
	leadObj, _ := gotBody["lead"].(map[string]any)
	if leadObj["phone"] != "393331234567" {
		t.Fatalf("lead block missing, got %v", gotBody["lead"])
	}
	dataObj, _ := gotBody["data"].(map[string]any)
	if dataObj["classification"] != "curious" {
		t.Fatalf("data block missing, got %v", gotBody["data"])
	}

	if len(store.inserted) != 1 || store.inserted[0].Status != StatusPending {
		t.Fatalf("event must be persisted pending before the first attempt")
	}
	if len(store.updated) != 1 || store.updated[0].Status != StatusSent {
		t.Fatalf("successful post must mark the event sent, got %+v", store.updated)
	}
}

func TestTrigger_FailureSchedulesRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store, svc := crmFixture(srv.URL)
	svc.clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := svc.Trigger(context.Background(), "l1", "call_ended", nil); err != nil {
		t.Fatalf("http failure must not surface as error: %v", err)
	}

	e := store.updated[0]
	if e.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", e.Status)
	}
	if e.AttemptCount != 1 {
		t.Fatalf("expected one attempt, got %d", e.AttemptCount)
	}
	want := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	if !e.NextRetryAt.Equal(want) {
		t.Fatalf("expected retry at %v, got %v", want, e.NextRetryAt)
	}
	if e.LastError == "" {
		t.Fatalf("expected last error recorded")
	}
}

func TestTrigger_NoEndpointIsNoop(t *testing.T) {
	store, svc := crmFixture("")

	if err := svc.Trigger(context.Background(), "l1", "call_ended", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("brokers without a CRM must produce no events")
	}
}

func TestSweep_RetriesAndStopsAtCap(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store, svc := crmFixture(srv.URL)
	due := Event{
		ID: "e1", LeadID: "l1", BrokerID: "b1", EventType: "call_ended",
		Payload: `{"event":"call_ended"}`, Status: StatusFailed,
		AttemptCount: maxAttempts - 1, NextRetryAt: time.Now().Add(-time.Minute),
	}
	retryable := []Event{due}
	selectCalls := 0
	stub := &sweepStore{stubCRMStore: store, retryable: func() []Event {
		selectCalls++
		if selectCalls == 1 {
			return retryable
		}
		return nil
	}}
	svc.store = stub

	sent, err := svc.Sweep(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sent != 0 {
		t.Fatalf("endpoint is down, expected 0 sent")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one post, got %d", hits.Load())
	}

	e := store.updated[0]
	if e.AttemptCount != maxAttempts {
		t.Fatalf("expected attempt count %d, got %d", maxAttempts, e.AttemptCount)
	}
	if !e.NextRetryAt.IsZero() {
		t.Fatalf("exhausted event must carry no retry horizon")
	}
}

func TestSweep_SuccessMarksSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store, svc := crmFixture(srv.URL)
	stub := &sweepStore{stubCRMStore: store, retryable: func() []Event {
		return []Event{{
			ID: "e1", LeadID: "l1", BrokerID: "b1", EventType: "call_ended",
			Payload: `{}`, Status: StatusFailed, AttemptCount: 1,
			NextRetryAt: time.Now().Add(-time.Minute),
		}}
	}}
	svc.store = stub

	sent, err := svc.Sweep(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 sent, got %d", sent)
	}
	if store.updated[0].Status != StatusSent {
		t.Fatalf("expected sent, got %q", store.updated[0].Status)
	}
}

type sweepStore struct {
	*stubCRMStore
	retryable func() []Event
}

func (s *sweepStore) SelectRetryable(ctx context.Context, now time.Time, limit int) ([]Event, error) {
	return s.retryable(), nil
}

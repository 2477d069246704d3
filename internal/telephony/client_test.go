package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dialer-platform/internal/config"
)

func testClient(serverURL string) *Client {
	return NewClient(config.TelephonyConfig{
		APIURL:         serverURL,
		AccountID:      "acct",
		AccountKey:     "key",
		RequestTimeout: 15 * time.Second,
		ConnectTimeout: 5 * time.Second,
	})
}

func validRequest() CallRequest {
	return CallRequest{
		RuleName: "outbound-it",
		Data: CallData{
			LeadID:     "l1",
			CampaignID: "c1",
			Campaign:   "Summer",
			Phone:      "393331234567",
			Name:       "Mario",
			AgentType:  2,
		},
	}
}

func TestInitiateCall_ParsesResultToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostFormValue("rule") != "outbound-it" {
			t.Fatalf("rule not forwarded, got %q", r.PostFormValue("rule"))
		}
		var data CallData
		if err := json.Unmarshal([]byte(r.PostFormValue("custom_data")), &data); err != nil {
			t.Fatalf("custom_data not valid JSON: %v", err)
		}
		if data.LeadID != "l1" || data.AgentType != 2 {
			t.Fatalf("custom_data fields lost: %+v", data)
		}
		w.Write([]byte(`{"success":true,"result":"call-abc-123"}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).InitiateCall(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.ExternalCallID != "call-abc-123" {
		t.Fatalf("got external id %q", res.ExternalCallID)
	}
}

func TestInitiateCall_ParsesSessionURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"session_url":"https://runtime.example.com/sessions/sess-42"}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).InitiateCall(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.ExternalCallID != "sess-42" {
		t.Fatalf("expected id from session url, got %q", res.ExternalCallID)
	}
}

func TestInitiateCall_Non200IsAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).InitiateCall(context.Background(), validRequest())
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestInitiateCall_ProviderReportedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"no route"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).InitiateCall(context.Background(), validRequest())
	if err == nil {
		t.Fatalf("expected provider error")
	}
}

func TestInitiateCall_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>nope</html>`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).InitiateCall(context.Background(), validRequest())
	if err == nil {
		t.Fatalf("expected malformed-response error")
	}
}

func TestInitiateCall_RejectsIncompleteRequest(t *testing.T) {
	c := testClient("http://localhost:0")
	req := validRequest()
	req.Data.Phone = ""
	if _, err := c.InitiateCall(context.Background(), req); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

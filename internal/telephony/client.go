package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dialer-platform/internal/config"
)

// Client places call-initiation requests against the external call
// runtime. It is the only code that talks to the telephony API.
//
// Rules:
// - No provider calls outside this adapter.
// - Requests are form-encoded with a JSON custom-data blob; responses
//   are JSON with either a session URL or a result token.

var (
	ErrAPIFailure      = errors.New("telephony: api reported failure")
	ErrInvalidResponse = errors.New("telephony: malformed response")
	ErrInvalidRequest  = errors.New("telephony: invalid request")
)

type Client struct {
	apiURL     string
	accountID  string
	accountKey string
	http       *http.Client
}

func NewClient(cfg config.TelephonyConfig) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	return &Client{
		apiURL:     cfg.APIURL,
		accountID:  cfg.AccountID,
		accountKey: cfg.AccountKey,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: cfg.ConnectTimeout,
			},
		},
	}
}

// InitiateCall asks the runtime to start an outbound call. The returned
// external call id correlates later webhook events with this attempt.
func (c *Client) InitiateCall(ctx context.Context, req CallRequest) (CallResult, error) {
	if req.RuleName == "" || req.Data.LeadID == "" || req.Data.CampaignID == "" || req.Data.Phone == "" {
		return CallResult{}, ErrInvalidRequest
	}

	blob, err := json.Marshal(req.Data)
	if err != nil {
		return CallResult{}, err
	}

	form := url.Values{}
	form.Set("account_id", c.accountID)
	form.Set("account_key", c.accountKey)
	form.Set("rule", req.RuleName)
	form.Set("custom_data", string(blob))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return CallResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CallResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CallResult{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return CallResult{}, fmt.Errorf("%w: status %d", ErrAPIFailure, resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CallResult{}, ErrInvalidResponse
	}
	if !parsed.Success && parsed.Error != "" {
		return CallResult{}, fmt.Errorf("%w: %s", ErrAPIFailure, parsed.Error)
	}

	out := CallResult{SessionURL: parsed.SessionURL}
	switch {
	case parsed.Result != "":
		out.ExternalCallID = parsed.Result
	case parsed.SessionURL != "":
		out.ExternalCallID = lastPathSegment(parsed.SessionURL)
	}
	if out.ExternalCallID == "" {
		return CallResult{}, ErrInvalidResponse
	}
	return out, nil
}

func lastPathSegment(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// timeouts are fixed at construction; exposed for tests.
func (c *Client) Timeout() time.Duration { return c.http.Timeout }

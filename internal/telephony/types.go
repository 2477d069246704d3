package telephony

// CallData is the custom-data blob attached to a call-initiation request.
// The call runtime echoes lead/campaign identifiers back on webhooks, so
// this is an explicit struct validated at the boundary, not a freeform map.
type CallData struct {
	LeadID     string `json:"lead_id"`
	CampaignID string `json:"campaign_id"`
	Campaign   string `json:"campaign"`
	Phone      string `json:"phone"`
	Name       string `json:"name"`
	Funnel     string `json:"funnel"`
	CallerID   string `json:"caller_id"`
	AgentPhone string `json:"agent_phone"`

	ScriptVersion string `json:"script_version"`
	ScriptBody    string `json:"script_body"`
	DetectorBody  string `json:"detector_body"`

	// AgentType selects the voice-agent language: 1=en, 2=it, 3=es, 4=fr.
	AgentType int `json:"agent_type"`

	WebhookURL    string `json:"webhook_url"`
	WebhookSecret string `json:"webhook_secret"`
}

// CallRequest is one outbound call-initiation request.
type CallRequest struct {
	// RuleName is the telephony routing rule resolved per (broker, country).
	RuleName string
	Data     CallData
}

// CallResult carries the external call identifier assigned by the runtime.
type CallResult struct {
	ExternalCallID string
	SessionURL     string
}

// apiResponse is the provider's wire shape. A 200 may still carry an
// application-level error.
type apiResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	SessionURL string `json:"session_url,omitempty"`
	Result     string `json:"result,omitempty"`
}

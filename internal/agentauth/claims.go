package agentauth

import "github.com/golang-jwt/jwt/v5"

// Claims is the only supported JWT claims shape for agent sessions.
// BrokerID must always be present: every agent belongs to exactly one
// broker and never sees another broker's transfers.
type Claims struct {
	jwt.RegisteredClaims

	AgentID  string `json:"agent_id"`
	BrokerID string `json:"broker_id"`
}

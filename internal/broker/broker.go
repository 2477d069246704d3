package broker

import (
	"context"
	"database/sql"
	"errors"
)

// Brokers are managed elsewhere; this package is the read model the
// dialer core needs: CRM delivery configuration and outbound telephony
// route resolution per (broker, country).

var ErrNotFound = errors.New("broker: not found")

type Broker struct {
	ID          string
	Name        string
	CRMEndpoint string
	CRMAPIKey   string
	CRMTemplate string // JSON object merged into every CRM payload
}

// Route is the outbound telephony route for one (broker, country) pair.
type Route struct {
	ID         string
	BrokerID   string
	Country    string
	RuleName   string
	CallerID   string
	AgentPhone string
	Active     bool
}

func Get(ctx context.Context, db *sql.DB, id string) (Broker, error) {
	const q = `
SELECT id, name, crm_endpoint, crm_api_key, crm_template
FROM brokers
WHERE id = $1`
	var b Broker
	err := db.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.Name, &b.CRMEndpoint, &b.CRMAPIKey, &b.CRMTemplate)
	if errors.Is(err, sql.ErrNoRows) {
		return Broker{}, ErrNotFound
	}
	if err != nil {
		return Broker{}, err
	}
	return b, nil
}

// ResolveRoute returns the active outbound route for a broker/country
// pair. ErrNotFound covers both a missing and an inactive route; the
// scheduler treats the two identically.
func ResolveRoute(ctx context.Context, db *sql.DB, brokerID, country string) (Route, error) {
	const q = `
SELECT id, broker_id, country, rule_name, caller_id, agent_phone, active
FROM broker_routes
WHERE broker_id = $1 AND country = $2`
	var r Route
	err := db.QueryRowContext(ctx, q, brokerID, country).Scan(
		&r.ID, &r.BrokerID, &r.Country, &r.RuleName, &r.CallerID, &r.AgentPhone, &r.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Route{}, ErrNotFound
	}
	if err != nil {
		return Route{}, err
	}
	if !r.Active {
		return Route{}, ErrNotFound
	}
	return r, nil
}

package transfer

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dialer-platform/internal/lead"

	"github.com/lib/pq"
)

// PostgresStore implements Store over the shared database handle.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const getTransferQuery = `
SELECT id, lead_id, campaign_id, broker_id, COALESCE(agent_id, ''), status,
       COALESCE(outcome, ''), COALESCE(notes, ''), created_at, updated_at
FROM transfers
WHERE id = $1`

func (s *PostgresStore) GetTransfer(ctx context.Context, id string) (Transfer, error) {
	var t Transfer
	err := s.db.QueryRowContext(ctx, getTransferQuery, id).Scan(
		&t.ID, &t.LeadID, &t.CampaignID, &t.BrokerID, &t.AgentID, &t.Status,
		&t.Outcome, &t.Notes, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transfer{}, ErrNotFound
		}
		return Transfer{}, err
	}
	return t, nil
}

const insertTransferQuery = `
INSERT INTO transfers (id, lead_id, campaign_id, broker_id, agent_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`

func (s *PostgresStore) InsertTransfer(ctx context.Context, t Transfer) error {
	_, err := s.db.ExecContext(ctx, insertTransferQuery,
		t.ID, t.LeadID, t.CampaignID, t.BrokerID, t.AgentID, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

const updateTransferQuery = `
UPDATE transfers
SET agent_id = NULLIF($2, ''), status = $3, outcome = NULLIF($4, ''),
    notes = NULLIF($5, ''), updated_at = $6
WHERE id = $1`

func (s *PostgresStore) UpdateTransfer(ctx context.Context, t Transfer) error {
	res, err := s.db.ExecContext(ctx, updateTransferQuery,
		t.ID, t.AgentID, t.Status, t.Outcome, t.Notes, t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const listPendingQuery = `
SELECT t.id, t.lead_id, t.campaign_id, t.broker_id, COALESCE(t.agent_id, ''), t.status,
       COALESCE(t.outcome, ''), COALESCE(t.notes, ''), t.created_at, t.updated_at
FROM transfers t
JOIN agents a ON a.id = $1
WHERE (t.agent_id = $1 AND t.status = 'ringing')
   OR (t.agent_id IS NULL AND t.status IN ('initiated', 'rejected') AND t.broker_id = a.broker_id)
ORDER BY t.created_at ASC`

func (s *PostgresStore) ListPendingForAgent(ctx context.Context, agentID string) ([]Transfer, error) {
	rows, err := s.db.QueryContext(ctx, listPendingQuery, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(
			&t.ID, &t.LeadID, &t.CampaignID, &t.BrokerID, &t.AgentID, &t.Status,
			&t.Outcome, &t.Notes, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (lead.Lead, error) {
	return lead.Get(ctx, s.db, id)
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, id string, st lead.Status, now time.Time) error {
	return lead.UpdateStatus(ctx, s.db, id, st, now)
}

func (s *PostgresStore) CampaignBroker(ctx context.Context, campaignID string) (string, error) {
	var brokerID string
	err := s.db.QueryRowContext(ctx,
		`SELECT broker_id FROM campaigns WHERE id = $1`, campaignID,
	).Scan(&brokerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return brokerID, err
}

const getAgentQuery = `
SELECT id, broker_id, name, email, COALESCE(phone, ''), password_hash, status, last_seen_at
FROM agents
WHERE id = $1`

func (s *PostgresStore) GetAgent(ctx context.Context, id string) (Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx, getAgentQuery, id).Scan(
		&a.ID, &a.BrokerID, &a.Name, &a.Email, &a.Phone, &a.PasswordHash, &a.Status, &a.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, ErrAgentMissing
		}
		return Agent{}, err
	}
	return a, nil
}

const getAgentByEmailQuery = `
SELECT id, broker_id, name, email, COALESCE(phone, ''), password_hash, status, last_seen_at
FROM agents
WHERE email = $1`

func (s *PostgresStore) GetAgentByEmail(ctx context.Context, email string) (Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx, getAgentByEmailQuery, email).Scan(
		&a.ID, &a.BrokerID, &a.Name, &a.Email, &a.Phone, &a.PasswordHash, &a.Status, &a.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, ErrAgentMissing
		}
		return Agent{}, err
	}
	return a, nil
}

// FindAvailableAgent prefers agents seen most recently so stale logins
// do not keep swallowing transfers.
const findAvailableQuery = `
SELECT id, broker_id, name, email, COALESCE(phone, ''), password_hash, status, last_seen_at
FROM agents
WHERE broker_id = $1
  AND status = 'available'
  AND NOT (id = ANY($2))
ORDER BY last_seen_at DESC
LIMIT 1`

func (s *PostgresStore) FindAvailableAgent(ctx context.Context, brokerID string, exclude []string) (Agent, error) {
	if exclude == nil {
		exclude = []string{}
	}
	var a Agent
	err := s.db.QueryRowContext(ctx, findAvailableQuery, brokerID, pq.Array(exclude)).Scan(
		&a.ID, &a.BrokerID, &a.Name, &a.Email, &a.Phone, &a.PasswordHash, &a.Status, &a.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, ErrAgentMissing
		}
		return Agent{}, err
	}
	return a, nil
}

func (s *PostgresStore) SetAgentStatus(ctx context.Context, agentID string, st AgentStatus, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET status = $2, last_seen_at = $3 WHERE id = $1`,
		agentID, st, now,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAgentMissing
	}
	return nil
}

package agentauth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxAgentID ctxKey = iota
	ctxBrokerID
)

func WithIdentity(ctx context.Context, agentID, brokerID string) context.Context {
	ctx = context.WithValue(ctx, ctxAgentID, agentID)
	ctx = context.WithValue(ctx, ctxBrokerID, brokerID)
	return ctx
}

func AgentID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxAgentID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("agent_id not in context")
}

func BrokerID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxBrokerID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("broker_id not in context")
}

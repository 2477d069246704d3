package main

import (
	"net/http"
	"testing"

	"dialer-platform/internal/event"
	"dialer-platform/internal/httpapi"

	"github.com/gin-gonic/gin"
)

func registeredMethods(r *gin.Engine, path string) []string {
	var methods []string
	for _, rt := range r.Routes() {
		if rt.Path == path {
			methods = append(methods, rt.Method)
		}
	}
	return methods
}

func TestRoutes_AgentConsoleShape(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	registerRoutes(r, nil, httpapi.Handlers{}, event.Handler{}, nil)

	// Presence is a state submission, POST like the rest of the console.
	if got := registeredMethods(r, "/v1/agents/presence"); len(got) != 1 || got[0] != http.MethodPost {
		t.Fatalf("expected POST only on /v1/agents/presence, got %v", got)
	}
	if got := registeredMethods(r, "/v1/agents/heartbeat"); len(got) != 1 || got[0] != http.MethodPost {
		t.Fatalf("expected POST only on /v1/agents/heartbeat, got %v", got)
	}
	for _, p := range []string{
		"/v1/transfers/pending",
		"/v1/transfers/:id/accept",
		"/v1/transfers/:id/reject",
		"/v1/transfers/:id/complete",
		"/webhooks/call-events",
		"/v1/auth/login",
	} {
		if got := registeredMethods(r, p); len(got) == 0 {
			t.Fatalf("route %s not registered", p)
		}
	}
}

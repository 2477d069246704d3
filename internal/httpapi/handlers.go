package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dialer-platform/internal/agentauth"
	"dialer-platform/internal/transfer"

	"github.com/gin-gonic/gin"
)

// Handlers bundles the HTTP-facing dependencies for the agent console
// API. Business rules live in the transfer coordinator; this layer does
// request parsing, identity extraction, and status mapping only.
type Handlers struct {
	Auth      *agentauth.Manager
	Transfers *transfer.Coordinator
	Agents    func(ctx context.Context, email string) (transfer.Agent, error)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	agent, err := h.Agents(c.Request.Context(), req.Email)
	if err != nil || !agentauth.CheckPassword(agent.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.Auth.Issue(time.Now(), agent.ID, agent.BrokerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	// Logging in brings the agent online for transfers.
	if err := h.Transfers.SetPresence(c.Request.Context(), agent.ID, transfer.AgentAvailable); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "presence update failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"agent": gin.H{
			"id":        agent.ID,
			"name":      agent.Name,
			"broker_id": agent.BrokerID,
		},
	})
}

func (h Handlers) PendingTransfers(c *gin.Context) {
	agentID, err := agentauth.AgentID(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	transfers, err := h.Transfers.Pending(c.Request.Context(), agentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	if transfers == nil {
		transfers = []transfer.Transfer{}
	}
	c.JSON(http.StatusOK, gin.H{"transfers": transfers})
}

func (h Handlers) AcceptTransfer(c *gin.Context) {
	agentID, err := agentauth.AgentID(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	t, err := h.Transfers.Accept(c.Request.Context(), c.Param("id"), agentID)
	if err != nil {
		c.JSON(transferStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfer": t})
}

func (h Handlers) RejectTransfer(c *gin.Context) {
	agentID, err := agentauth.AgentID(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	t, err := h.Transfers.Reject(c.Request.Context(), c.Param("id"), agentID)
	if err != nil {
		c.JSON(transferStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfer": t})
}

type completeRequest struct {
	Outcome string `json:"outcome" binding:"required"`
	Notes   string `json:"notes"`
}

func (h Handlers) CompleteTransfer(c *gin.Context) {
	if _, err := agentauth.AgentID(c.Request.Context()); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "outcome is required"})
		return
	}

	t, err := h.Transfers.Complete(c.Request.Context(), c.Param("id"), req.Outcome, req.Notes)
	if err != nil {
		c.JSON(transferStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfer": t})
}

type presenceRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h Handlers) SetPresence(c *gin.Context) {
	agentID, err := agentauth.AgentID(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	if err := h.Transfers.SetPresence(c.Request.Context(), agentID, transfer.AgentStatus(req.Status)); err != nil {
		c.JSON(transferStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

func (h Handlers) Heartbeat(c *gin.Context) {
	agentID, err := agentauth.AgentID(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	if err := h.Transfers.Heartbeat(c.Request.Context(), agentID); err != nil {
		c.JSON(transferStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func transferStatus(err error) int {
	switch {
	case errors.Is(err, transfer.ErrNotFound), errors.Is(err, transfer.ErrAgentMissing):
		return http.StatusNotFound
	case errors.Is(err, transfer.ErrNotAssignee):
		return http.StatusForbidden
	case errors.Is(err, transfer.ErrBadState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

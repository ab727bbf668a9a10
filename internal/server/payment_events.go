package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/partnerly/internal/payment/domain"
)

type paymentEventRequest struct {
	Provider        string         `json:"provider"`
	ProviderEventID string         `json:"provider_event_id"`
	Type            string         `json:"type"`
	InvoiceID       string         `json:"invoice_id"`
	DisputeOutcome  string         `json:"dispute_outcome"`
	Payload         map[string]any `json:"payload"`
}

// ingestPaymentEvent accepts normalized processor events from the platform's
// webhook frontend. Signature verification happened there; this endpoint
// only routes.
func (s *Server) ingestPaymentEvent(c *gin.Context) {
	var req paymentEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidEvent)
		return
	}

	if err := s.paymentSvc.ProcessEvent(c.Request.Context(), paymentdomain.Event{
		Provider:        req.Provider,
		ProviderEventID: req.ProviderEventID,
		Type:            req.Type,
		InvoiceID:       invoiceID,
		DisputeOutcome:  strings.TrimSpace(req.DisputeOutcome),
		Payload:         req.Payload,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

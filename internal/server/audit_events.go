package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/partnerly/internal/audit/domain"
	"github.com/smallbiznis/partnerly/internal/authorization"
	"github.com/smallbiznis/partnerly/pkg/db/pagination"
)

type listAuditEventsQuery struct {
	PageToken       string `form:"page_token"`
	PageSize        int    `form:"page_size"`
	EventType       string `form:"event_type"`
	Severity        string `form:"severity"`
	AffiliateUserID string `form:"affiliate_user_id"`
	PayoutID        string `form:"payout_id"`
	StartAt         string `form:"start_at"`
	EndAt           string `form:"end_at"`
}

func (s *Server) adminListAuditEvents(c *gin.Context) {
	actor, ok := currentAdminID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectAuditLog, authorization.ActionAuditLogView); err != nil {
		AbortWithError(c, err)
		return
	}

	var query listAuditEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := auditdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		EventType: strings.TrimSpace(query.EventType),
		Severity:  strings.TrimSpace(query.Severity),
	}

	if raw := strings.TrimSpace(query.AffiliateUserID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.AffiliateUserID = &id
	}
	if raw := strings.TrimSpace(query.PayoutID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.PayoutID = &id
	}
	if raw := strings.TrimSpace(query.StartAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.StartAt = &parsed
	}
	if raw := strings.TrimSpace(query.EndAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.EndAt = &parsed
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/partnerly/internal/authorization"
	payoutdomain "github.com/smallbiznis/partnerly/internal/payout/domain"
	"github.com/smallbiznis/partnerly/pkg/db/pagination"
)

func (s *Server) adminRunPayouts(c *gin.Context) {
	actor, ok := currentAdminID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectPayout, authorization.ActionPayoutRun); err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.payoutSvc.RunPayouts(c.Request.Context(), s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batches_created":   result.BatchesCreated,
		"entries_approved":  result.EntriesApproved,
		"entries_held":      result.EntriesHeld,
		"transfers_resumed": result.TransfersResumed,
	})
}

type listPayoutsQuery struct {
	PageToken       string `form:"page_token"`
	PageSize        int    `form:"page_size"`
	Status          string `form:"status"`
	AffiliateUserID string `form:"affiliate_user_id"`
}

func (s *Server) adminListPayouts(c *gin.Context) {
	actor, ok := currentAdminID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectPayout, authorization.ActionPayoutView); err != nil {
		AbortWithError(c, err)
		return
	}

	var query listPayoutsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := payoutdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Status: strings.TrimSpace(query.Status),
	}
	if raw := strings.TrimSpace(query.AffiliateUserID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.AffiliateUserID = &id
	}

	resp, err := s.payoutSvc.ListPayouts(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) adminGetPayout(c *gin.Context) {
	actor, ok := currentAdminID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectPayout, authorization.ActionPayoutView); err != nil {
		AbortWithError(c, err)
		return
	}

	payoutID, err := snowflake.ParseString(strings.TrimSpace(c.Param("payout_id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	detail, err := s.payoutSvc.GetPayoutDetail(c.Request.Context(), payoutID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

type settlePayoutRequest struct {
	Note string `json:"note"`
}

func (s *Server) adminMarkPayoutPaid(c *gin.Context) {
	s.settlePayout(c, s.payoutSvc.MarkPayoutPaid)
}

func (s *Server) adminMarkPayoutFailed(c *gin.Context) {
	s.settlePayout(c, s.payoutSvc.MarkPayoutFailed)
}

func (s *Server) settlePayout(c *gin.Context, settle func(ctx context.Context, req payoutdomain.SettleRequest) (*payoutdomain.AffiliatePayout, error)) {
	actor, ok := currentAdminID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	payoutID, err := snowflake.ParseString(strings.TrimSpace(c.Param("payout_id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req settlePayoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	payout, err := settle(c.Request.Context(), payoutdomain.SettleRequest{
		PayoutID: payoutID,
		Actor:    actor,
		Note:     strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, payout)
}

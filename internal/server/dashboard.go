package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
	"github.com/smallbiznis/partnerly/internal/authorization"
	dashboarddomain "github.com/smallbiznis/partnerly/internal/dashboard/domain"
	"github.com/smallbiznis/partnerly/pkg/db/pagination"
)

func (s *Server) adminOverview(c *gin.Context) {
	actor, ok := currentAdminID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	overview, err := s.dashboardSvc.GetAdminOverview(c.Request.Context(), actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

type listAffiliatesQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
}

func (s *Server) adminListAffiliates(c *gin.Context) {
	actor, ok := currentAdminID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listAffiliatesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.dashboardSvc.ListAffiliates(c.Request.Context(), actor, dashboarddomain.ListAffiliatesRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Status: strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type adminUpdateAffiliateRequest struct {
	Status                 *string `json:"status"`
	LevelOneRateBps        *int    `json:"level_one_rate_bps"`
	LevelTwoRateBps        *int    `json:"level_two_rate_bps"`
	ParentAffiliateUserID  *string `json:"parent_affiliate_user_id"`
	ClearParent            bool    `json:"clear_parent"`
	PayoutDestinationID    *string `json:"payout_destination_id"`
	PayoutDestinationReady *bool   `json:"payout_destination_ready"`
	TaxLegalName           *string `json:"tax_legal_name"`
	TaxCountry             *string `json:"tax_country"`
	TaxID                  *string `json:"tax_id"`
}

func (s *Server) adminUpdateAffiliate(c *gin.Context) {
	actor, ok := currentAdminID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectAffiliate, authorization.ActionAffiliateUpdate); err != nil {
		AbortWithError(c, err)
		return
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(c.Param("user_id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req adminUpdateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	update := affiliatedomain.UpdateRequest{
		UserID:                 userID,
		LevelOneRateBps:        req.LevelOneRateBps,
		LevelTwoRateBps:        req.LevelTwoRateBps,
		ClearParent:            req.ClearParent,
		PayoutDestinationID:    req.PayoutDestinationID,
		PayoutDestinationReady: req.PayoutDestinationReady,
		TaxLegalName:           req.TaxLegalName,
		TaxCountry:             req.TaxCountry,
		TaxID:                  req.TaxID,
	}
	if req.Status != nil {
		status := affiliatedomain.Status(strings.TrimSpace(*req.Status))
		update.Status = &status
	}
	if req.ParentAffiliateUserID != nil {
		parentID, err := snowflake.ParseString(strings.TrimSpace(*req.ParentAffiliateUserID))
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		update.ParentAffiliateUserID = &parentID
	}

	profile, err := s.affiliateSvc.UpsertProfile(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

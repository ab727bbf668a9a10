package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
	referraldomain "github.com/smallbiznis/partnerly/internal/referral/domain"
)

type captureReferralRequest struct {
	Code     string `json:"code"`
	Source   string `json:"source"`
	Campaign string `json:"campaign"`
}

func (s *Server) captureReferral(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req captureReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	captured, err := s.referralSvc.CaptureReferral(c.Request.Context(), referraldomain.CaptureRequest{
		ReferredUserID: userID,
		RawCode:        req.Code,
		Source:         strings.TrimSpace(req.Source),
		Campaign:       strings.TrimSpace(req.Campaign),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"captured": captured})
}

func (s *Server) getOwnProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	profile, err := s.affiliateSvc.EnsureProfile(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

type updateOwnProfileRequest struct {
	PayoutDestinationID *string `json:"payout_destination_id"`
	TaxLegalName        *string `json:"tax_legal_name"`
	TaxCountry          *string `json:"tax_country"`
	TaxID               *string `json:"tax_id"`
}

// updateOwnProfile exposes only the compliance fields an affiliate manages
// themselves. Rates, status, and upline moves stay admin-only.
func (s *Server) updateOwnProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req updateOwnProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	profile, err := s.affiliateSvc.UpsertProfile(c.Request.Context(), affiliatedomain.UpdateRequest{
		UserID:              userID,
		PayoutDestinationID: req.PayoutDestinationID,
		TaxLegalName:        req.TaxLegalName,
		TaxCountry:          req.TaxCountry,
		TaxID:               req.TaxID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

type acceptTermsRequest struct {
	Version string `json:"version"`
}

func (s *Server) acceptTerms(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req acceptTermsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	version := strings.TrimSpace(req.Version)
	if version == "" {
		version = s.program.Get().RequiredTermsVersion
	}

	profile, err := s.affiliateSvc.AcceptTerms(c.Request.Context(), userID, version)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (s *Server) getOwnDashboard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	summary, err := s.dashboardSvc.GetAffiliateSummary(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

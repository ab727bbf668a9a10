package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
	auditdomain "github.com/smallbiznis/partnerly/internal/audit/domain"
	"github.com/smallbiznis/partnerly/internal/authorization"
	commissiondomain "github.com/smallbiznis/partnerly/internal/commission/domain"
	dashboarddomain "github.com/smallbiznis/partnerly/internal/dashboard/domain"
	paymentdomain "github.com/smallbiznis/partnerly/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/partnerly/internal/payout/domain"
	referraldomain "github.com/smallbiznis/partnerly/internal/referral/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "authentication required"}
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "not allowed"}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, affiliatedomain.ErrProfileNotFound),
		errors.Is(err, payoutdomain.ErrPayoutNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, payoutdomain.ErrPayoutTerminal):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, affiliatedomain.ErrInvalidUser),
		errors.Is(err, affiliatedomain.ErrInvalidRate),
		errors.Is(err, affiliatedomain.ErrSelfParent),
		errors.Is(err, affiliatedomain.ErrInvalidStatus),
		errors.Is(err, affiliatedomain.ErrInvalidTaxInfo),
		errors.Is(err, affiliatedomain.ErrInvalidTermsVer),
		errors.Is(err, referraldomain.ErrInvalidReferredUser),
		errors.Is(err, referraldomain.ErrInvalidReferralCode),
		errors.Is(err, referraldomain.ErrSelfReferral),
		errors.Is(err, referraldomain.ErrAliasedSelfReferral),
		errors.Is(err, commissiondomain.ErrInvalidInvoice),
		errors.Is(err, commissiondomain.ErrInvalidReason),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, payoutdomain.ErrInvalidActor),
		errors.Is(err, payoutdomain.ErrInvalidPageToken),
		errors.Is(err, dashboarddomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
	}
}

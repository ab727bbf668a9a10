package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
	payoutdomain "github.com/smallbiznis/partnerly/internal/payout/domain"
	"github.com/smallbiznis/partnerly/pkg/db/pagination"
)

// StatusTotal is one aggregate bucket of the commission ledger.
type StatusTotal struct {
	Status     string `json:"status"`
	Currency   string `json:"currency"`
	EntryCount int64  `json:"entry_count"`
	TotalCents int64  `json:"total_cents"`
}

// TreeNode is one downline affiliate in the referral tree, at most two
// levels below the root.
type TreeNode struct {
	UserID        snowflake.ID `json:"user_id"`
	ReferralCode  string       `json:"referral_code"`
	Status        string       `json:"status"`
	Depth         int          `json:"depth"`
	ReferredCount int64        `json:"referred_count"`
}

// AffiliateSummary is the self-service dashboard read model. Derived, not
// authoritative; the ledger stays the source of truth.
type AffiliateSummary struct {
	Profile           affiliatedomain.AffiliateProfile `json:"profile"`
	TotalReferred     int64                            `json:"total_referred"`
	ActivatedReferred int64                            `json:"activated_referred"`
	LedgerTotals      []StatusTotal                    `json:"ledger_totals"`
	RecentPayouts     []payoutdomain.AffiliatePayout   `json:"recent_payouts"`
	Downline          []TreeNode                       `json:"downline"`
}

type AdminOverview struct {
	AffiliatesByStatus map[string]int64 `json:"affiliates_by_status"`
	LedgerTotals       []StatusTotal    `json:"ledger_totals"`
	PayoutsByStatus    []StatusTotal    `json:"payouts_by_status"`
	AttributionCount   int64            `json:"attribution_count"`
	ActivatedCount     int64            `json:"activated_count"`
}

type ListAffiliatesRequest struct {
	pagination.Pagination
	Status string
}

type ListAffiliatesResponse struct {
	pagination.PageInfo
	Affiliates []affiliatedomain.AffiliateProfile `json:"affiliates"`
}

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Service interface {
	GetAffiliateSummary(ctx context.Context, userID snowflake.ID) (*AffiliateSummary, error)
	GetAdminOverview(ctx context.Context, actor string) (*AdminOverview, error)
	ListAffiliates(ctx context.Context, actor string, req ListAffiliatesRequest) (ListAffiliatesResponse, error)
}

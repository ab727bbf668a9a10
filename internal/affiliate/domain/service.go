package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// UpdateRequest carries a partial profile mutation. Nil fields are left
// untouched. The referral code can never be changed through here.
type UpdateRequest struct {
	UserID                snowflake.ID
	Status                *Status
	LevelOneRateBps       *int
	LevelTwoRateBps       *int
	ParentAffiliateUserID *snowflake.ID
	ClearParent           bool

	PayoutDestinationID    *string
	PayoutDestinationReady *bool

	TaxLegalName *string
	TaxCountry   *string
	TaxID        *string
}

type Service interface {
	// EnsureProfile returns the profile for userID, creating it with a
	// freshly issued referral code when none exists yet.
	EnsureProfile(ctx context.Context, userID snowflake.ID) (*AffiliateProfile, error)
	GetProfile(ctx context.Context, userID snowflake.ID) (*AffiliateProfile, error)
	UpsertProfile(ctx context.Context, req UpdateRequest) (*AffiliateProfile, error)
	// ResolveCode normalizes raw and returns the owning profile, or nil when
	// the code is unknown.
	ResolveCode(ctx context.Context, raw string) (*AffiliateProfile, error)
	// AcceptTerms stamps the current acceptance for the given version.
	AcceptTerms(ctx context.Context, userID snowflake.ID, version string) (*AffiliateProfile, error)
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrProfileNotFound  = errors.New("affiliate_profile_not_found")
	ErrInvalidRate      = errors.New("invalid_commission_rate")
	ErrSelfParent       = errors.New("self_parent_not_allowed")
	ErrInvalidStatus    = errors.New("invalid_affiliate_status")
	ErrInvalidTaxInfo   = errors.New("invalid_tax_info")
	ErrInvalidTermsVer  = errors.New("invalid_terms_version")
	ErrCodeExhausted    = errors.New("referral_code_space_exhausted")
)

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ReferralAttribution maps a referred customer to the affiliate who referred
// them. referred_user_id is the primary key: at most one affiliate per
// customer, ever. Once activated_at is set the row is immutable.
type ReferralAttribution struct {
	ReferredUserID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	AffiliateUserID snowflake.ID `gorm:"not null;index"`
	ReferralCode    string       `gorm:"type:text;not null"`
	Source          string       `gorm:"type:text"`
	Campaign        string       `gorm:"type:text"`
	ActivatedAt     *time.Time   `gorm:"index"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ReferralAttribution) TableName() string { return "referral_attributions" }

type CaptureRequest struct {
	ReferredUserID snowflake.ID
	RawCode        string
	Source         string
	Campaign       string
}

type Service interface {
	// CaptureReferral records or refreshes the attribution for a customer.
	// Returns true when an attribution is in place afterward (including the
	// locked no-op case).
	CaptureReferral(ctx context.Context, req CaptureRequest) (bool, error)
	// GetAttribution returns the attribution row, or nil when none exists.
	GetAttribution(ctx context.Context, referredUserID snowflake.ID) (*ReferralAttribution, error)
}

var (
	ErrInvalidReferredUser = errors.New("invalid_referred_user")
	ErrInvalidReferralCode = errors.New("invalid_referral_code")
	ErrSelfReferral        = errors.New("self_referral_not_allowed")
	ErrAliasedSelfReferral = errors.New("aliased_self_referral")
)

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of an affiliate profile.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusBlocked   Status = "blocked"
)

// AffiliateProfile is the per-affiliate record. Created lazily on first
// access and never hard-deleted. The referral code is immutable once issued.
type AffiliateProfile struct {
	ID                    snowflake.ID  `gorm:"primaryKey"`
	UserID                snowflake.ID  `gorm:"not null;uniqueIndex:ux_affiliate_profiles_user"`
	ReferralCode          string        `gorm:"type:text;not null;uniqueIndex:ux_affiliate_profiles_code"`
	Status                Status        `gorm:"type:text;not null;index"`
	LevelOneRateBps       int           `gorm:"not null"`
	LevelTwoRateBps       int           `gorm:"not null"`
	ParentAffiliateUserID *snowflake.ID `gorm:"index"`

	PayoutDestinationID    string `gorm:"type:text"`
	PayoutDestinationReady bool   `gorm:"not null;default:false"`

	TermsAcceptedAt *time.Time
	TermsVersion    string `gorm:"type:text"`

	TaxLegalName string `gorm:"type:text"`
	TaxCountry   string `gorm:"type:text"`
	TaxID        string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AffiliateProfile) TableName() string { return "affiliate_profiles" }

// HasCompleteTaxInfo reports whether the structured tax fields pass the
// compliance shape check: non-empty legal name, ISO-3166 alpha-2 country,
// non-empty tax id.
func (p AffiliateProfile) HasCompleteTaxInfo() bool {
	if p.TaxLegalName == "" || p.TaxID == "" {
		return false
	}
	return IsISOCountry(p.TaxCountry)
}

// IsISOCountry checks the ISO-3166 alpha-2 shape: two ASCII upper letters.
func IsISOCountry(code string) bool {
	if len(code) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

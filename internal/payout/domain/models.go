package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the payout state machine. paid and failed are terminal; a
// payout only ever moves processing -> paid or processing -> failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// AffiliatePayout is one (affiliate, currency, period) batch of approved
// commissions handed to the external processor as a single transfer.
type AffiliatePayout struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	AffiliateUserID snowflake.ID `gorm:"not null;index"`
	Currency        string       `gorm:"type:text;not null"`
	TotalCents      int64        `gorm:"not null"`
	Status          Status       `gorm:"type:text;not null;index"`
	PeriodStart     time.Time    `gorm:"not null"`
	PeriodEnd       time.Time    `gorm:"not null"`

	IdempotencyKey     string `gorm:"type:text;not null;uniqueIndex:ux_affiliate_payouts_idem"`
	ProviderTransferID string `gorm:"type:text"`
	TransferStatus     string `gorm:"type:text"`

	PaidAt *time.Time
	Note   string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AffiliatePayout) TableName() string { return "affiliate_payouts" }

// TransferIdempotencyKey is stable per payout so a crashed or retried
// transfer request can never move money twice.
func TransferIdempotencyKey(payoutID snowflake.ID) string {
	return fmt.Sprintf("payout_%s", payoutID.String())
}

// AffiliatePayoutItem links one ledger entry to exactly one payout. The
// unique index on the ledger entry id is what makes payout exactly-once.
type AffiliatePayoutItem struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	PayoutID      snowflake.ID `gorm:"not null;index"`
	LedgerEntryID snowflake.ID `gorm:"not null;uniqueIndex:ux_affiliate_payout_items_entry"`
	AmountCents   int64        `gorm:"not null"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AffiliatePayoutItem) TableName() string { return "affiliate_payout_items" }

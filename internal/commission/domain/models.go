package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the ledger entry state machine: pending -> approved -> paid on
// the happy path, reversed reachable from all three. paid and reversed are
// terminal except that paid can still be clawed back to reversed.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
	StatusReversed Status = "reversed"
)

const (
	LevelOne = 1
	LevelTwo = 2
)

// LedgerEntry is one commission record tied to exactly one
// (payment, affiliate, level). The unique index makes crediting idempotent
// under webhook redelivery.
type LedgerEntry struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	InvoiceID       snowflake.ID `gorm:"not null;uniqueIndex:ux_commission_entries_invoice_affiliate_level,priority:1"`
	AffiliateUserID snowflake.ID `gorm:"not null;uniqueIndex:ux_commission_entries_invoice_affiliate_level,priority:2;index"`
	Level           int          `gorm:"not null;uniqueIndex:ux_commission_entries_invoice_affiliate_level,priority:3"`
	ReferredUserID  snowflake.ID `gorm:"not null;index"`
	AmountCents     int64        `gorm:"not null"`
	Currency        string       `gorm:"type:text;not null"`
	Status          Status       `gorm:"type:text;not null;index"`
	AvailableAt     time.Time    `gorm:"not null;index"`
	Reason          string       `gorm:"type:text"`
	ReversedAt      *time.Time
	ReversalReason  string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "commission_ledger_entries" }

// Amount computes a commission in minor units: floor(amount * rateBps /
// 10000). Never negative, never a fractional minor unit.
func Amount(amountCents int64, rateBps int) int64 {
	if amountCents <= 0 || rateBps <= 0 {
		return 0
	}
	return amountCents * int64(rateBps) / 10000
}

type Service interface {
	// ProcessPaidPayment credits commissions for a paid invoice. Safe to
	// call any number of times for the same invoice.
	ProcessPaidPayment(ctx context.Context, invoiceID snowflake.ID) error
	// ReverseInvoiceCommissions moves every non-reversed entry for the
	// invoice to reversed, paid entries included. Returns how many entries
	// were reversed.
	ReverseInvoiceCommissions(ctx context.Context, invoiceID snowflake.ID, reason string) (int, error)
}

var (
	ErrInvalidInvoice = errors.New("invalid_invoice")
	ErrInvalidReason  = errors.New("invalid_reversal_reason")
)

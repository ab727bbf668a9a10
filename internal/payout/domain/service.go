package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/smallbiznis/partnerly/internal/commission/domain"
	"github.com/smallbiznis/partnerly/pkg/db/pagination"
)

// RunResult summarizes one payout run.
type RunResult struct {
	BatchesCreated   int
	EntriesApproved  int
	EntriesHeld      int
	TransfersResumed int
}

type SettleRequest struct {
	PayoutID snowflake.ID
	Actor    string
	Note     string
}

type PayoutDetail struct {
	Payout  AffiliatePayout                `json:"payout"`
	Items   []AffiliatePayoutItem          `json:"items"`
	Entries []commissiondomain.LedgerEntry `json:"entries"`
}

type ListRequest struct {
	pagination.Pagination
	AffiliateUserID *snowflake.ID
	Status          string
}

type ListResponse struct {
	pagination.PageInfo
	Payouts []AffiliatePayout `json:"payouts"`
}

type Service interface {
	// RunPayouts batches every approved-and-unclaimed commission whose lock
	// has expired into per (affiliate, currency) payouts and submits one
	// transfer per batch. Safe to invoke concurrently or repeatedly.
	RunPayouts(ctx context.Context, asOf time.Time) (RunResult, error)
	// ResumeTransfers retries the transfer request for processing payouts
	// that have no provider transfer id yet, e.g. after a crash between the
	// payout commit and the network call.
	ResumeTransfers(ctx context.Context) (int, error)
	MarkPayoutPaid(ctx context.Context, req SettleRequest) (*AffiliatePayout, error)
	MarkPayoutFailed(ctx context.Context, req SettleRequest) (*AffiliatePayout, error)
	GetPayoutDetail(ctx context.Context, payoutID snowflake.ID) (*PayoutDetail, error)
	ListPayouts(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrPayoutNotFound   = errors.New("payout_not_found")
	ErrPayoutTerminal   = errors.New("payout_in_terminal_state")
	ErrInvalidActor     = errors.New("invalid_actor")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)

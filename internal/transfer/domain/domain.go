package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidConfig    = errors.New("transfer: invalid provider config")
	ErrProviderNotFound = errors.New("transfer: provider not found")
	ErrInvalidRequest   = errors.New("transfer: invalid request")
	ErrTransferFailed   = errors.New("transfer: provider rejected transfer")
)

// Request describes a single outbound transfer to an affiliate's payout
// destination. IdempotencyKey must be stable across retries of the same
// payout so the provider deduplicates on its side.
type Request struct {
	AmountCents    int64
	Currency       string
	DestinationID  string
	IdempotencyKey string
	Metadata       map[string]string
}

type Result struct {
	TransferID string
}

// Client sends money movement requests to an external payout provider.
type Client interface {
	Provider() string
	CreateTransfer(ctx context.Context, req Request) (*Result, error)
}

type ClientConfig struct {
	SecretKey  string
	APIBaseURL string
}

type ClientFactory interface {
	Provider() string
	NewClient(cfg ClientConfig) (Client, error)
}

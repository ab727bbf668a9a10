package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliateservice "github.com/smallbiznis/partnerly/internal/affiliate/service"
	auditrepo "github.com/smallbiznis/partnerly/internal/audit/repository"
	auditservice "github.com/smallbiznis/partnerly/internal/audit/service"
	"github.com/smallbiznis/partnerly/internal/clock"
	commissiondomain "github.com/smallbiznis/partnerly/internal/commission/domain"
	"github.com/smallbiznis/partnerly/internal/config"
	"github.com/smallbiznis/partnerly/internal/directory"
	payoutdomain "github.com/smallbiznis/partnerly/internal/payout/domain"
	payoutservice "github.com/smallbiznis/partnerly/internal/payout/service"
	transferdomain "github.com/smallbiznis/partnerly/internal/transfer/domain"
	"go.uber.org/zap"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type allowAllAuthz struct{}

func (allowAllAuthz) Authorize(ctx context.Context, subject, object, action string) error {
	return nil
}

type fakeTransferClient struct {
	mu       sync.Mutex
	requests []transferdomain.Request
	fail     bool
	seq      int
}

func (f *fakeTransferClient) Provider() string { return "fake" }

func (f *fakeTransferClient) CreateTransfer(ctx context.Context, req transferdomain.Request) (*transferdomain.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.fail {
		return nil, transferdomain.ErrTransferFailed
	}
	f.seq++
	return &transferdomain.Result{TransferID: fmt.Sprintf("tr_%03d", f.seq)}, nil
}

func (f *fakeTransferClient) calls() []transferdomain.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transferdomain.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	transfers *fakeTransferClient
	payoutSvc payoutdomain.Service
}

func setupFixture(t *testing.T, nodeID int64) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE users (
			id BIGINT PRIMARY KEY,
			email TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE affiliate_profiles (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			referral_code TEXT NOT NULL,
			status TEXT NOT NULL,
			level_one_rate_bps INTEGER NOT NULL,
			level_two_rate_bps INTEGER NOT NULL,
			parent_affiliate_user_id BIGINT,
			payout_destination_id TEXT NOT NULL DEFAULT '',
			payout_destination_ready BOOLEAN NOT NULL DEFAULT FALSE,
			terms_accepted_at TIMESTAMP,
			terms_version TEXT NOT NULL DEFAULT '',
			tax_legal_name TEXT NOT NULL DEFAULT '',
			tax_country TEXT NOT NULL DEFAULT '',
			tax_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_affiliate_profiles_user ON affiliate_profiles(user_id)`,
		`CREATE UNIQUE INDEX ux_affiliate_profiles_code ON affiliate_profiles(referral_code)`,
		`CREATE TABLE commission_ledger_entries (
			id BIGINT PRIMARY KEY,
			invoice_id BIGINT NOT NULL,
			affiliate_user_id BIGINT NOT NULL,
			level INTEGER NOT NULL,
			referred_user_id BIGINT NOT NULL,
			amount_cents BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			available_at TIMESTAMP NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			reversed_at TIMESTAMP,
			reversal_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_commission_entries_invoice_affiliate_level
			ON commission_ledger_entries(invoice_id, affiliate_user_id, level)`,
		`CREATE TABLE affiliate_payouts (
			id BIGINT PRIMARY KEY,
			affiliate_user_id BIGINT NOT NULL,
			currency TEXT NOT NULL,
			total_cents BIGINT NOT NULL,
			status TEXT NOT NULL,
			period_start TIMESTAMP NOT NULL,
			period_end TIMESTAMP NOT NULL,
			idempotency_key TEXT NOT NULL,
			provider_transfer_id TEXT NOT NULL DEFAULT '',
			transfer_status TEXT NOT NULL DEFAULT '',
			paid_at TIMESTAMP,
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_affiliate_payouts_idem ON affiliate_payouts(idempotency_key)`,
		`CREATE TABLE affiliate_payout_items (
			id BIGINT PRIMARY KEY,
			payout_id BIGINT NOT NULL,
			ledger_entry_id BIGINT NOT NULL,
			amount_cents BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_affiliate_payout_items_entry ON affiliate_payout_items(ledger_entry_id)`,
		`CREATE TABLE compliance_audit_events (
			id BIGINT PRIMARY KEY,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			actor_type TEXT NOT NULL,
			actor_id TEXT,
			affiliate_user_id BIGINT,
			payout_id BIGINT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 4, 15, 8, 0, 0, 0, time.UTC))

	program := config.NewStaticProgramHolder(config.DefaultProgramConfig())
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})
	directorySvc := directory.NewService(db)
	affiliateSvc := affiliateservice.NewService(affiliateservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		AuditSvc:     auditSvc,
		DirectorySvc: directorySvc,
		Program:      program,
	})
	transfers := &fakeTransferClient{}
	payoutSvc := payoutservice.NewService(payoutservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		AffiliateSvc: affiliateSvc,
		AuditSvc:     auditSvc,
		AuthzSvc:     allowAllAuthz{},
		Transfers:    transfers,
		Program:      program,
	})

	return &fixture{db: db, node: node, clock: clk, transfers: transfers, payoutSvc: payoutSvc}
}

func (f *fixture) seedCompliantAffiliate(t *testing.T, userID snowflake.ID, code string) {
	t.Helper()
	now := f.clock.Now()
	accepted := now.Add(-24 * time.Hour)
	if err := f.db.Exec(
		`INSERT INTO affiliate_profiles (
			id, user_id, referral_code, status, level_one_rate_bps, level_two_rate_bps,
			payout_destination_id, payout_destination_ready,
			terms_accepted_at, terms_version, tax_legal_name, tax_country, tax_id,
			created_at, updated_at
		) VALUES (?, ?, ?, 'active', 2000, 500, ?, TRUE, ?, ?, 'Marta Jensen', 'DK', 'DK12345678', ?, ?)`,
		f.node.Generate(), userID, code, "acct_"+code, accepted, "2025-01", now, now,
	).Error; err != nil {
		t.Fatalf("seed affiliate: %v", err)
	}
}

func (f *fixture) seedEntry(t *testing.T, affiliateUserID snowflake.ID, amountCents int64, currency string, availableAt time.Time) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.clock.Now()
	if err := f.db.Exec(
		`INSERT INTO commission_ledger_entries (
			id, invoice_id, affiliate_user_id, level, referred_user_id,
			amount_cents, currency, status, available_at, reason, created_at, updated_at
		) VALUES (?, ?, ?, 1, ?, ?, ?, 'pending', ?, 'invoice_paid', ?, ?)`,
		id, f.node.Generate(), affiliateUserID, f.node.Generate(),
		amountCents, currency, availableAt, now, now,
	).Error; err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	return id
}

func (f *fixture) entryStatus(t *testing.T, entryID snowflake.ID) commissiondomain.Status {
	t.Helper()
	var status string
	if err := f.db.Raw(
		`SELECT status FROM commission_ledger_entries WHERE id = ?`, entryID,
	).Scan(&status).Error; err != nil {
		t.Fatalf("read entry status: %v", err)
	}
	return commissiondomain.Status(status)
}

func (f *fixture) singlePayout(t *testing.T) payoutdomain.AffiliatePayout {
	t.Helper()
	var payouts []payoutdomain.AffiliatePayout
	if err := f.db.Find(&payouts).Error; err != nil {
		t.Fatalf("load payouts: %v", err)
	}
	if len(payouts) != 1 {
		t.Fatalf("payouts = %d, want 1", len(payouts))
	}
	return payouts[0]
}

func TestRunPayoutsEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 40)

	affiliateID := f.node.Generate()
	f.seedCompliantAffiliate(t, affiliateID, "ENDTOEND77")
	entryID := f.seedEntry(t, affiliateID, 2000, "usd", f.clock.Now().Add(-time.Hour))

	result, err := f.payoutSvc.RunPayouts(ctx, f.clock.Now())
	if err != nil {
		t.Fatalf("run payouts: %v", err)
	}
	if result.BatchesCreated != 1 || result.EntriesApproved != 1 || result.EntriesHeld != 0 {
		t.Fatalf("unexpected run result: %+v", result)
	}

	payout := f.singlePayout(t)
	if payout.TotalCents != 2000 || payout.Currency != "usd" {
		t.Fatalf("payout = %+v", payout)
	}
	if payout.Status != payoutdomain.StatusProcessing {
		t.Fatalf("payout status = %s, want processing", payout.Status)
	}
	if payout.IdempotencyKey != payoutdomain.TransferIdempotencyKey(payout.ID) {
		t.Fatalf("idempotency key = %q", payout.IdempotencyKey)
	}
	if payout.ProviderTransferID == "" || payout.TransferStatus != "created" {
		t.Fatalf("transfer not recorded: %+v", payout)
	}
	wantStart := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if !payout.PeriodStart.Equal(wantStart) {
		t.Fatalf("period start = %s, want %s", payout.PeriodStart, wantStart)
	}

	calls := f.transfers.calls()
	if len(calls) != 1 {
		t.Fatalf("transfer calls = %d, want 1", len(calls))
	}
	if calls[0].AmountCents != 2000 || calls[0].IdempotencyKey != payout.IdempotencyKey {
		t.Fatalf("unexpected transfer request: %+v", calls[0])
	}
	if !strings.HasPrefix(calls[0].DestinationID, "acct_") {
		t.Fatalf("destination = %q", calls[0].DestinationID)
	}

	if status := f.entryStatus(t, entryID); status != commissiondomain.StatusApproved {
		t.Fatalf("entry status = %s, want approved", status)
	}

	settled, err := f.payoutSvc.MarkPayoutPaid(ctx, payoutdomain.SettleRequest{
		PayoutID: payout.ID,
		Actor:    "admin_7",
		Note:     "bank statement 2026-04",
	})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if settled.Status != payoutdomain.StatusPaid || settled.PaidAt == nil {
		t.Fatalf("settled payout = %+v", settled)
	}
	if status := f.entryStatus(t, entryID); status != commissiondomain.StatusPaid {
		t.Fatalf("entry status after settlement = %s, want paid", status)
	}
}

func TestRunPayoutsHoldsIncompleteTaxInfo(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 41)

	affiliateID := f.node.Generate()
	f.seedCompliantAffiliate(t, affiliateID, "NOTAXINFO7")
	if err := f.db.Exec(
		`UPDATE affiliate_profiles SET tax_id = '' WHERE user_id = ?`, affiliateID,
	).Error; err != nil {
		t.Fatalf("clear tax id: %v", err)
	}
	entryID := f.seedEntry(t, affiliateID, 2000, "usd", f.clock.Now().Add(-time.Hour))

	result, err := f.payoutSvc.RunPayouts(ctx, f.clock.Now())
	if err != nil {
		t.Fatalf("run payouts: %v", err)
	}
	if result.BatchesCreated != 0 || result.EntriesApproved != 0 || result.EntriesHeld != 1 {
		t.Fatalf("unexpected run result: %+v", result)
	}
	if status := f.entryStatus(t, entryID); status != commissiondomain.StatusPending {
		t.Fatalf("held entry status = %s, want pending", status)
	}
	if calls := f.transfers.calls(); len(calls) != 0 {
		t.Fatalf("transfer calls = %d, want 0", len(calls))
	}

	var message string
	if err := f.db.Raw(
		`SELECT message FROM compliance_audit_events
		 WHERE event_type = 'payout.commission_held' AND severity = 'warning'`,
	).Scan(&message).Error; err != nil {
		t.Fatalf("read audit event: %v", err)
	}
	if !strings.Contains(message, payoutdomain.HoldTaxInfoIncomplete) {
		t.Fatalf("hold message = %q, want it to cite %s", message, payoutdomain.HoldTaxInfoIncomplete)
	}
}

func TestRunPayoutsClaimsEachEntryOnce(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 42)

	affiliateID := f.node.Generate()
	f.seedCompliantAffiliate(t, affiliateID, "EXACTLY177")
	f.seedEntry(t, affiliateID, 2000, "usd", f.clock.Now().Add(-time.Hour))

	first, err := f.payoutSvc.RunPayouts(ctx, f.clock.Now())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.BatchesCreated != 1 {
		t.Fatalf("first run batches = %d, want 1", first.BatchesCreated)
	}

	second, err := f.payoutSvc.RunPayouts(ctx, f.clock.Now())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.BatchesCreated != 0 || second.EntriesApproved != 0 {
		t.Fatalf("second run must claim nothing: %+v", second)
	}

	f.singlePayout(t)
	if calls := f.transfers.calls(); len(calls) != 1 {
		t.Fatalf("transfer calls = %d, want 1", len(calls))
	}
}

func TestRunPayoutsRespectsLockWindow(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 43)

	affiliateID := f.node.Generate()
	f.seedCompliantAffiliate(t, affiliateID, "STILLOCKED")
	entryID := f.seedEntry(t, affiliateID, 2000, "usd", f.clock.Now().Add(72*time.Hour))

	result, err := f.payoutSvc.RunPayouts(ctx, f.clock.Now())
	if err != nil {
		t.Fatalf("run payouts: %v", err)
	}
	if result.BatchesCreated != 0 || result.EntriesApproved != 0 || result.EntriesHeld != 0 {
		t.Fatalf("locked entry must be untouched: %+v", result)
	}
	if status := f.entryStatus(t, entryID); status != commissiondomain.StatusPending {
		t.Fatalf("entry status = %s, want pending", status)
	}
}

func TestRunPayoutsSplitsByCurrency(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 44)

	affiliateID := f.node.Generate()
	f.seedCompliantAffiliate(t, affiliateID, "TWOCURRENC")
	f.seedEntry(t, affiliateID, 2000, "usd", f.clock.Now().Add(-time.Hour))
	f.seedEntry(t, affiliateID, 1500, "eur", f.clock.Now().Add(-time.Hour))

	result, err := f.payoutSvc.RunPayouts(ctx, f.clock.Now())
	if err != nil {
		t.Fatalf("run payouts: %v", err)
	}
	if result.BatchesCreated != 2 {
		t.Fatalf("batches = %d, want 2 (one per currency)", result.BatchesCreated)
	}

	var payouts []payoutdomain.AffiliatePayout
	if err := f.db.Order("currency desc").Find(&payouts).Error; err != nil {
		t.Fatalf("load payouts: %v", err)
	}
	if len(payouts) != 2 {
		t.Fatalf("payouts = %d, want 2", len(payouts))
	}
	if payouts[0].Currency != "usd" || payouts[0].TotalCents != 2000 {
		t.Fatalf("usd payout = %+v", payouts[0])
	}
	if payouts[1].Currency != "eur" || payouts[1].TotalCents != 1500 {
		t.Fatalf("eur payout = %+v", payouts[1])
	}
}

func TestRunPayoutsResumesStalledTransfer(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 45)

	affiliateID := f.node.Generate()
	f.seedCompliantAffiliate(t, affiliateID, "RESUMEME77")
	f.seedEntry(t, affiliateID, 2000, "usd", f.clock.Now().Add(-time.Hour))

	// First run commits the payout but the provider call fails, simulating a
	// crash between commit and submit.
	f.transfers.fail = true
	if _, err := f.payoutSvc.RunPayouts(ctx, f.clock.Now()); err == nil {
		t.Fatal("expected transfer failure from first run")
	}

	payout := f.singlePayout(t)
	if payout.Status != payoutdomain.StatusProcessing || payout.ProviderTransferID != "" {
		t.Fatalf("stalled payout = %+v", payout)
	}

	f.transfers.fail = false
	result, err := f.payoutSvc.RunPayouts(ctx, f.clock.Now())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.TransfersResumed != 1 || result.BatchesCreated != 0 {
		t.Fatalf("unexpected resume result: %+v", result)
	}

	payout = f.singlePayout(t)
	if payout.ProviderTransferID == "" || payout.TransferStatus != "created" {
		t.Fatalf("resume did not record transfer: %+v", payout)
	}

	calls := f.transfers.calls()
	if len(calls) != 2 {
		t.Fatalf("transfer calls = %d, want 2", len(calls))
	}
	// Both attempts must reuse the payout's idempotency key so the provider
	// deduplicates.
	if calls[0].IdempotencyKey != calls[1].IdempotencyKey {
		t.Fatalf("idempotency keys differ: %q vs %q", calls[0].IdempotencyKey, calls[1].IdempotencyKey)
	}
}

func TestSettlementIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 46)

	affiliateID := f.node.Generate()
	f.seedCompliantAffiliate(t, affiliateID, "TERMINAL77")
	f.seedEntry(t, affiliateID, 2000, "usd", f.clock.Now().Add(-time.Hour))

	if _, err := f.payoutSvc.RunPayouts(ctx, f.clock.Now()); err != nil {
		t.Fatalf("run payouts: %v", err)
	}
	payout := f.singlePayout(t)

	if _, err := f.payoutSvc.MarkPayoutPaid(ctx, payoutdomain.SettleRequest{
		PayoutID: payout.ID, Actor: "admin_7",
	}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	// Marking paid again is a no-op, not an error.
	again, err := f.payoutSvc.MarkPayoutPaid(ctx, payoutdomain.SettleRequest{
		PayoutID: payout.ID, Actor: "admin_7",
	})
	if err != nil {
		t.Fatalf("repeat mark paid: %v", err)
	}
	if again.Status != payoutdomain.StatusPaid {
		t.Fatalf("repeat status = %s, want paid", again.Status)
	}

	if _, err := f.payoutSvc.MarkPayoutFailed(ctx, payoutdomain.SettleRequest{
		PayoutID: payout.ID, Actor: "admin_7",
	}); err != payoutdomain.ErrPayoutTerminal {
		t.Fatalf("paid -> failed err = %v, want ErrPayoutTerminal", err)
	}
}

func TestMarkPayoutFailedKeepsEntriesApproved(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 47)

	affiliateID := f.node.Generate()
	f.seedCompliantAffiliate(t, affiliateID, "FAILEDPAY7")
	entryID := f.seedEntry(t, affiliateID, 2000, "usd", f.clock.Now().Add(-time.Hour))

	if _, err := f.payoutSvc.RunPayouts(ctx, f.clock.Now()); err != nil {
		t.Fatalf("run payouts: %v", err)
	}
	payout := f.singlePayout(t)

	failed, err := f.payoutSvc.MarkPayoutFailed(ctx, payoutdomain.SettleRequest{
		PayoutID: payout.ID,
		Actor:    "admin_7",
		Note:     "provider account closed",
	})
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if failed.Status != payoutdomain.StatusFailed {
		t.Fatalf("status = %s, want failed", failed.Status)
	}

	// The linked commission stays approved for an operator to reissue.
	if status := f.entryStatus(t, entryID); status != commissiondomain.StatusApproved {
		t.Fatalf("entry status = %s, want approved", status)
	}

	if _, err := f.payoutSvc.MarkPayoutPaid(ctx, payoutdomain.SettleRequest{
		PayoutID: payout.ID, Actor: "admin_7",
	}); err != payoutdomain.ErrPayoutTerminal {
		t.Fatalf("failed -> paid err = %v, want ErrPayoutTerminal", err)
	}
}

func TestMarkPayoutRequiresActor(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 48)

	if _, err := f.payoutSvc.MarkPayoutPaid(ctx, payoutdomain.SettleRequest{
		PayoutID: f.node.Generate(),
	}); err != payoutdomain.ErrInvalidActor {
		t.Fatalf("err = %v, want ErrInvalidActor", err)
	}
	if _, err := f.payoutSvc.MarkPayoutPaid(ctx, payoutdomain.SettleRequest{
		PayoutID: f.node.Generate(), Actor: "admin_7",
	}); err != payoutdomain.ErrPayoutNotFound {
		t.Fatalf("err = %v, want ErrPayoutNotFound", err)
	}
}

func TestGetPayoutDetail(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 49)

	affiliateID := f.node.Generate()
	f.seedCompliantAffiliate(t, affiliateID, "DETAILED77")
	f.seedEntry(t, affiliateID, 2000, "usd", f.clock.Now().Add(-time.Hour))
	f.seedEntry(t, affiliateID, 300, "usd", f.clock.Now().Add(-time.Hour))

	if _, err := f.payoutSvc.RunPayouts(ctx, f.clock.Now()); err != nil {
		t.Fatalf("run payouts: %v", err)
	}
	payout := f.singlePayout(t)
	if payout.TotalCents != 2300 {
		t.Fatalf("total = %d, want 2300", payout.TotalCents)
	}

	detail, err := f.payoutSvc.GetPayoutDetail(ctx, payout.ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if len(detail.Items) != 2 || len(detail.Entries) != 2 {
		t.Fatalf("detail items = %d, entries = %d, want 2/2", len(detail.Items), len(detail.Entries))
	}
	var itemTotal int64
	for _, item := range detail.Items {
		itemTotal += item.AmountCents
	}
	if itemTotal != payout.TotalCents {
		t.Fatalf("item total = %d, payout total = %d", itemTotal, payout.TotalCents)
	}
}

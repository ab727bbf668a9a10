package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
	affiliateservice "github.com/smallbiznis/partnerly/internal/affiliate/service"
	auditrepo "github.com/smallbiznis/partnerly/internal/audit/repository"
	auditservice "github.com/smallbiznis/partnerly/internal/audit/service"
	"github.com/smallbiznis/partnerly/internal/clock"
	"github.com/smallbiznis/partnerly/internal/config"
	"github.com/smallbiznis/partnerly/internal/directory"
	"go.uber.org/zap"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupService(t *testing.T, nodeID int64) (affiliatedomain.Service, *gorm.DB, *snowflake.Node) {
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
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})
	svc := affiliateservice.NewService(affiliateservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clock.NewFakeClock(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)),
		AuditSvc:     auditSvc,
		DirectorySvc: directory.NewService(db),
		Program:      config.NewStaticProgramHolder(config.DefaultProgramConfig()),
	})
	return svc, db, node
}

func seedUser(t *testing.T, db *gorm.DB, id snowflake.ID, email string) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)`,
		id, email, time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestEnsureProfileIssuesCodeFromEmail(t *testing.T) {
	ctx := context.Background()
	svc, db, node := setupService(t, 60)

	userID := node.Generate()
	seedUser(t, db, userID, "alice@example.com")

	profile, err := svc.EnsureProfile(ctx, userID)
	if err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	if !strings.HasPrefix(profile.ReferralCode, "ALICE") {
		t.Fatalf("code = %q, want ALICE prefix", profile.ReferralCode)
	}
	if len(profile.ReferralCode) != config.DefaultProgramConfig().ReferralCodeLength {
		t.Fatalf("code length = %d, want %d", len(profile.ReferralCode), config.DefaultProgramConfig().ReferralCodeLength)
	}
	if profile.Status != affiliatedomain.StatusActive {
		t.Fatalf("status = %s, want active", profile.Status)
	}
	if profile.LevelOneRateBps != 2000 || profile.LevelTwoRateBps != 500 {
		t.Fatalf("rates = %d/%d, want 2000/500", profile.LevelOneRateBps, profile.LevelTwoRateBps)
	}

	// Ensure is idempotent: the second call reuses the issued profile.
	again, err := svc.EnsureProfile(ctx, userID)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if again.ID != profile.ID || again.ReferralCode != profile.ReferralCode {
		t.Fatalf("second ensure produced a different profile: %+v vs %+v", again, profile)
	}
}

func TestEnsureProfileWithoutDirectoryRow(t *testing.T) {
	ctx := context.Background()
	svc, _, node := setupService(t, 61)

	profile, err := svc.EnsureProfile(ctx, node.Generate())
	if err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	if !strings.HasPrefix(profile.ReferralCode, "REF") {
		t.Fatalf("code = %q, want generic REF prefix", profile.ReferralCode)
	}

	if _, err := svc.EnsureProfile(ctx, 0); err != affiliatedomain.ErrInvalidUser {
		t.Fatalf("zero user err = %v, want ErrInvalidUser", err)
	}
}

func TestResolveCodeIsCaseAndFormatInsensitive(t *testing.T) {
	ctx := context.Background()
	svc, db, node := setupService(t, 62)

	userID := node.Generate()
	seedUser(t, db, userID, "alice@example.com")
	profile, err := svc.EnsureProfile(ctx, userID)
	if err != nil {
		t.Fatalf("ensure profile: %v", err)
	}

	resolved, err := svc.ResolveCode(ctx, "  "+strings.ToLower(profile.ReferralCode)+" ")
	if err != nil {
		t.Fatalf("resolve code: %v", err)
	}
	if resolved == nil || resolved.UserID != userID {
		t.Fatalf("resolved = %+v, want profile for %s", resolved, userID)
	}

	missing, err := svc.ResolveCode(ctx, "NOSUCHCODE99")
	if err != nil {
		t.Fatalf("resolve missing code: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing code resolved to %+v", missing)
	}
}

func TestUpsertProfileValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, node := setupService(t, 63)

	userID := node.Generate()
	if _, err := svc.EnsureProfile(ctx, userID); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}

	tooHigh := 5001
	if _, err := svc.UpsertProfile(ctx, affiliatedomain.UpdateRequest{
		UserID:          userID,
		LevelOneRateBps: &tooHigh,
	}); err != affiliatedomain.ErrInvalidRate {
		t.Fatalf("level one cap err = %v, want ErrInvalidRate", err)
	}

	tooHighTwo := 2001
	if _, err := svc.UpsertProfile(ctx, affiliatedomain.UpdateRequest{
		UserID:          userID,
		LevelTwoRateBps: &tooHighTwo,
	}); err != affiliatedomain.ErrInvalidRate {
		t.Fatalf("level two cap err = %v, want ErrInvalidRate", err)
	}

	if _, err := svc.UpsertProfile(ctx, affiliatedomain.UpdateRequest{
		UserID:                userID,
		ParentAffiliateUserID: &userID,
	}); err != affiliatedomain.ErrSelfParent {
		t.Fatalf("self parent err = %v, want ErrSelfParent", err)
	}

	badCountry := "Germany"
	if _, err := svc.UpsertProfile(ctx, affiliatedomain.UpdateRequest{
		UserID:     userID,
		TaxCountry: &badCountry,
	}); err != affiliatedomain.ErrInvalidTaxInfo {
		t.Fatalf("country err = %v, want ErrInvalidTaxInfo", err)
	}

	badStatus := affiliatedomain.Status("archived")
	if _, err := svc.UpsertProfile(ctx, affiliatedomain.UpdateRequest{
		UserID: userID,
		Status: &badStatus,
	}); err != affiliatedomain.ErrInvalidStatus {
		t.Fatalf("status err = %v, want ErrInvalidStatus", err)
	}
}

func TestUpsertProfileUpdatesComplianceFields(t *testing.T) {
	ctx := context.Background()
	svc, _, node := setupService(t, 64)

	userID := node.Generate()
	parentID := node.Generate()
	if _, err := svc.EnsureProfile(ctx, parentID); err != nil {
		t.Fatalf("ensure parent: %v", err)
	}

	destination := "acct_123"
	ready := true
	legalName := " Alice Jensen "
	country := "dk"
	taxID := "DK12345678"
	suspended := affiliatedomain.StatusSuspended

	profile, err := svc.UpsertProfile(ctx, affiliatedomain.UpdateRequest{
		UserID:                 userID,
		Status:                 &suspended,
		ParentAffiliateUserID:  &parentID,
		PayoutDestinationID:    &destination,
		PayoutDestinationReady: &ready,
		TaxLegalName:           &legalName,
		TaxCountry:             &country,
		TaxID:                  &taxID,
	})
	if err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	if profile.Status != affiliatedomain.StatusSuspended {
		t.Fatalf("status = %s, want suspended", profile.Status)
	}
	if profile.ParentAffiliateUserID == nil || *profile.ParentAffiliateUserID != parentID {
		t.Fatalf("parent = %v, want %s", profile.ParentAffiliateUserID, parentID)
	}
	if profile.PayoutDestinationID != "acct_123" || !profile.PayoutDestinationReady {
		t.Fatalf("destination = %q ready=%v", profile.PayoutDestinationID, profile.PayoutDestinationReady)
	}
	if profile.TaxLegalName != "Alice Jensen" || profile.TaxCountry != "DK" || profile.TaxID != "DK12345678" {
		t.Fatalf("tax fields = %q/%q/%q", profile.TaxLegalName, profile.TaxCountry, profile.TaxID)
	}
	if !profile.HasCompleteTaxInfo() {
		t.Fatal("profile should pass the tax shape check")
	}

	cleared, err := svc.UpsertProfile(ctx, affiliatedomain.UpdateRequest{
		UserID:      userID,
		ClearParent: true,
	})
	if err != nil {
		t.Fatalf("clear parent: %v", err)
	}
	if cleared.ParentAffiliateUserID != nil {
		t.Fatalf("parent not cleared: %v", cleared.ParentAffiliateUserID)
	}
}

func TestAcceptTerms(t *testing.T) {
	ctx := context.Background()
	svc, db, node := setupService(t, 65)

	userID := node.Generate()
	profile, err := svc.AcceptTerms(ctx, userID, "2025-01")
	if err != nil {
		t.Fatalf("accept terms: %v", err)
	}
	if profile.TermsAcceptedAt == nil || profile.TermsVersion != "2025-01" {
		t.Fatalf("terms not recorded: %+v", profile)
	}

	var events int64
	if err := db.Raw(
		`SELECT COUNT(*) FROM compliance_audit_events WHERE event_type = 'affiliate.terms_accepted'`,
	).Scan(&events).Error; err != nil {
		t.Fatalf("count audit events: %v", err)
	}
	if events != 1 {
		t.Fatalf("audit events = %d, want 1", events)
	}

	if _, err := svc.AcceptTerms(ctx, userID, "  "); err != affiliatedomain.ErrInvalidTermsVer {
		t.Fatalf("blank version err = %v, want ErrInvalidTermsVer", err)
	}
}

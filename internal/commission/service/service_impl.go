package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
	auditdomain "github.com/smallbiznis/partnerly/internal/audit/domain"
	"github.com/smallbiznis/partnerly/internal/billing"
	"github.com/smallbiznis/partnerly/internal/clock"
	commissiondomain "github.com/smallbiznis/partnerly/internal/commission/domain"
	"github.com/smallbiznis/partnerly/internal/config"
	obsmetrics "github.com/smallbiznis/partnerly/internal/observability/metrics"
	referraldomain "github.com/smallbiznis/partnerly/internal/referral/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	AffiliateSvc affiliatedomain.Service
	ReferralSvc  referraldomain.Service
	AuditSvc     auditdomain.Service
	BillingSvc   billing.Service
	Program      *config.ProgramHolder
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	affiliateSvc affiliatedomain.Service
	referralSvc  referraldomain.Service
	auditSvc     auditdomain.Service
	billingSvc   billing.Service
	program      *config.ProgramHolder
}

func NewService(p Params) commissiondomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("commission.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		affiliateSvc: p.AffiliateSvc,
		referralSvc:  p.ReferralSvc,
		auditSvc:     p.AuditSvc,
		billingSvc:   p.BillingSvc,
		program:      p.Program,
	}
}

func (s *Service) ProcessPaidPayment(ctx context.Context, invoiceID snowflake.ID) error {
	if invoiceID == 0 {
		return commissiondomain.ErrInvalidInvoice
	}

	invoice, err := s.billingSvc.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice == nil || invoice.Status != billing.InvoiceStatusPaid || invoice.TotalCents <= 0 {
		// Repeated or irrelevant event; at-least-once delivery makes this
		// path routine.
		return nil
	}

	attribution, err := s.referralSvc.GetAttribution(ctx, invoice.CustomerID)
	if err != nil {
		return err
	}
	if attribution == nil {
		s.log.Debug("paid invoice has no referral attribution",
			zap.String("invoice_id", invoiceID.String()),
		)
		return nil
	}

	profile, err := s.affiliateSvc.EnsureProfile(ctx, attribution.AffiliateUserID)
	if err != nil {
		return err
	}

	program := s.program.Get()
	now := s.clock.Now()
	availableAt := now.AddDate(0, 0, program.CommissionLockDays)

	credited := make([]int, 0, 2)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := levelOneExists(ctx, tx, invoiceID, profile.UserID)
		if err != nil {
			return err
		}
		if exists {
			// Duplicate webhook delivery; everything already committed.
			return nil
		}

		levelOneAmount := commissiondomain.Amount(invoice.TotalCents, profile.LevelOneRateBps)
		if levelOneAmount > 0 {
			inserted, err := s.insertEntry(ctx, tx, commissiondomain.LedgerEntry{
				ID:              s.genID.Generate(),
				InvoiceID:       invoiceID,
				AffiliateUserID: profile.UserID,
				Level:           commissiondomain.LevelOne,
				ReferredUserID:  invoice.CustomerID,
				AmountCents:     levelOneAmount,
				Currency:        invoice.Currency,
				Status:          commissiondomain.StatusPending,
				AvailableAt:     availableAt,
				Reason:          "invoice_paid",
				CreatedAt:       now,
				UpdatedAt:       now,
			})
			if err != nil {
				return err
			}
			if inserted {
				credited = append(credited, commissiondomain.LevelOne)
			}
		}

		if profile.ParentAffiliateUserID != nil {
			// Upline eligibility uses the parent's current state at payment
			// time, not a snapshot from capture time.
			parent, err := uplineProfile(ctx, tx, *profile.ParentAffiliateUserID)
			if err != nil {
				return err
			}
			if parent != nil && parent.Status == affiliatedomain.StatusActive && parent.LevelTwoRateBps > 0 {
				levelTwoAmount := commissiondomain.Amount(invoice.TotalCents, parent.LevelTwoRateBps)
				if levelTwoAmount > 0 {
					inserted, err := s.insertEntry(ctx, tx, commissiondomain.LedgerEntry{
						ID:              s.genID.Generate(),
						InvoiceID:       invoiceID,
						AffiliateUserID: parent.UserID,
						Level:           commissiondomain.LevelTwo,
						ReferredUserID:  invoice.CustomerID,
						AmountCents:     levelTwoAmount,
						Currency:        invoice.Currency,
						Status:          commissiondomain.StatusPending,
						AvailableAt:     availableAt,
						Reason:          "invoice_paid_upline",
						CreatedAt:       now,
						UpdatedAt:       now,
					})
					if err != nil {
						return err
					}
					if inserted {
						credited = append(credited, commissiondomain.LevelTwo)
					}
				}
			}
		}

		// First paid conversion locks the attribution. The guard keeps an
		// already-set timestamp untouched.
		if err := tx.WithContext(ctx).Exec(
			`UPDATE referral_attributions
			 SET activated_at = ?, updated_at = ?
			 WHERE referred_user_id = ? AND activated_at IS NULL`,
			now, now, invoice.CustomerID,
		).Error; err != nil {
			return err
		}

		for _, level := range credited {
			if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Entry{
				EventType:       "commission.credited",
				Severity:        auditdomain.SeverityInfo,
				Message:         "commission credited for paid invoice",
				ActorType:       auditdomain.ActorTypeSystem,
				AffiliateUserID: &profile.UserID,
				Metadata: map[string]any{
					"invoice_id": invoiceID.String(),
					"level":      level,
				},
			}); err != nil {
				s.log.Warn("failed to audit commission credit", zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, level := range credited {
		obsmetrics.Engine().IncCredit(ctx, level)
	}
	return nil
}

func (s *Service) ReverseInvoiceCommissions(ctx context.Context, invoiceID snowflake.ID, reason string) (int, error) {
	if invoiceID == 0 {
		return 0, commissiondomain.ErrInvalidInvoice
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return 0, commissiondomain.ErrInvalidReason
	}

	now := s.clock.Now()
	reversed := 0
	clawedBack := make([]commissiondomain.LedgerEntry, 0)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entries []commissiondomain.LedgerEntry
		if err := tx.WithContext(ctx).
			Where("invoice_id = ? AND status IN ?", invoiceID, []commissiondomain.Status{
				commissiondomain.StatusPending,
				commissiondomain.StatusApproved,
				commissiondomain.StatusPaid,
			}).
			Find(&entries).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		for _, entry := range entries {
			result := tx.WithContext(ctx).Exec(
				`UPDATE commission_ledger_entries
				 SET status = ?, reversed_at = ?, reversal_reason = ?, updated_at = ?
				 WHERE id = ? AND status IN (?, ?, ?)`,
				commissiondomain.StatusReversed, now, reason, now,
				entry.ID,
				commissiondomain.StatusPending,
				commissiondomain.StatusApproved,
				commissiondomain.StatusPaid,
			)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				continue
			}
			reversed++
			if entry.Status == commissiondomain.StatusPaid {
				clawedBack = append(clawedBack, entry)
			}
		}

		for _, entry := range clawedBack {
			affiliateID := entry.AffiliateUserID
			// Funds already left via a settled payout; recovery is an
			// out-of-band operational matter, so flag it loudly.
			if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Entry{
				EventType:       "commission.paid_entry_reversed",
				Severity:        auditdomain.SeverityCritical,
				Message:         "paid commission reversed after settlement; transferred funds not auto-recovered",
				ActorType:       auditdomain.ActorTypeSystem,
				AffiliateUserID: &affiliateID,
				Metadata: map[string]any{
					"invoice_id":   invoiceID.String(),
					"entry_id":     entry.ID.String(),
					"amount_cents": entry.AmountCents,
					"currency":     entry.Currency,
					"reason":       reason,
				},
			}); err != nil {
				s.log.Warn("failed to audit paid-entry reversal", zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i := 0; i < reversed; i++ {
		obsmetrics.Engine().IncReversal(ctx, reason)
	}
	if reversed > 0 {
		s.log.Info("reversed invoice commissions",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("reason", reason),
			zap.Int("entries", reversed),
		)
	}
	return reversed, nil
}

func (s *Service) insertEntry(ctx context.Context, tx *gorm.DB, entry commissiondomain.LedgerEntry) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO commission_ledger_entries (
			id, invoice_id, affiliate_user_id, level, referred_user_id,
			amount_cents, currency, status, available_at, reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (invoice_id, affiliate_user_id, level) DO NOTHING`,
		entry.ID,
		entry.InvoiceID,
		entry.AffiliateUserID,
		entry.Level,
		entry.ReferredUserID,
		entry.AmountCents,
		entry.Currency,
		entry.Status,
		entry.AvailableAt,
		entry.Reason,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func levelOneExists(ctx context.Context, tx *gorm.DB, invoiceID, affiliateUserID snowflake.ID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&commissiondomain.LedgerEntry{}).
		Where("invoice_id = ? AND affiliate_user_id = ? AND level = ?",
			invoiceID, affiliateUserID, commissiondomain.LevelOne).
		Count(&count).Error
	return count > 0, err
}

func uplineProfile(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*affiliatedomain.AffiliateProfile, error) {
	var profile affiliatedomain.AffiliateProfile
	err := tx.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

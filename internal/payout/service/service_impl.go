package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
	auditdomain "github.com/smallbiznis/partnerly/internal/audit/domain"
	"github.com/smallbiznis/partnerly/internal/authorization"
	"github.com/smallbiznis/partnerly/internal/clock"
	commissiondomain "github.com/smallbiznis/partnerly/internal/commission/domain"
	"github.com/smallbiznis/partnerly/internal/config"
	obsmetrics "github.com/smallbiznis/partnerly/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/partnerly/internal/payout/domain"
	transferdomain "github.com/smallbiznis/partnerly/internal/transfer/domain"
	"github.com/smallbiznis/partnerly/pkg/db/pagination"
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
	AuditSvc     auditdomain.Service
	AuthzSvc     authorization.Service
	Transfers    transferdomain.Client
	Program      *config.ProgramHolder
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	affiliateSvc affiliatedomain.Service
	auditSvc     auditdomain.Service
	authzSvc     authorization.Service
	transfers    transferdomain.Client
	program      *config.ProgramHolder
}

func NewService(p Params) payoutdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payout.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		affiliateSvc: p.AffiliateSvc,
		auditSvc:     p.AuditSvc,
		authzSvc:     p.AuthzSvc,
		transfers:    p.Transfers,
		program:      p.Program,
	}
}

func (s *Service) RunPayouts(ctx context.Context, asOf time.Time) (payoutdomain.RunResult, error) {
	var result payoutdomain.RunResult

	// A crash in a previous run can leave committed payouts whose transfer
	// was never submitted. Pick those up first.
	resumed, err := s.ResumeTransfers(ctx)
	if err != nil {
		return result, err
	}
	result.TransfersResumed = resumed

	unlocked, err := s.unlockedPendingEntries(ctx, asOf)
	if err != nil {
		return result, err
	}
	if len(unlocked) == 0 {
		return result, nil
	}

	eligibleIDs, held, err := s.partitionByEligibility(ctx, unlocked)
	if err != nil {
		return result, err
	}
	result.EntriesHeld = held

	if len(eligibleIDs) > 0 {
		// Guarded by status so two concurrent runs never both claim a row.
		tx := s.db.WithContext(ctx).
			Model(&commissiondomain.LedgerEntry{}).
			Where("id IN ? AND status = ?", eligibleIDs, commissiondomain.StatusPending).
			Updates(map[string]any{
				"status":     commissiondomain.StatusApproved,
				"updated_at": s.clock.Now(),
			})
		if tx.Error != nil {
			return result, tx.Error
		}
		result.EntriesApproved = int(tx.RowsAffected)
	}

	// Re-read instead of trusting the ids above: a concurrent run may have
	// already linked some approved entries to a payout.
	claimable, err := s.approvedUnclaimedEntries(ctx)
	if err != nil {
		return result, err
	}

	batches, transferErrs := s.createBatches(ctx, asOf, claimable)
	result.BatchesCreated = batches
	if batches > 0 {
		obsmetrics.Engine().AddBatches(ctx, batches)
	}

	return result, transferErrs
}

type payoutGroup struct {
	affiliateUserID snowflake.ID
	currency        string
	totalCents      int64
	entries         []commissiondomain.LedgerEntry
}

func (s *Service) createBatches(ctx context.Context, asOf time.Time, entries []commissiondomain.LedgerEntry) (int, error) {
	groups := groupByAffiliateCurrency(entries)

	created := 0
	var errs []error
	for _, group := range groups {
		if group.totalCents <= 0 {
			continue
		}

		payout := payoutdomain.AffiliatePayout{
			ID:              s.genID.Generate(),
			AffiliateUserID: group.affiliateUserID,
			Currency:        group.currency,
			TotalCents:      group.totalCents,
			Status:          payoutdomain.StatusProcessing,
			PeriodStart:     firstOfMonth(asOf),
			PeriodEnd:       asOf,
			CreatedAt:       s.clock.Now(),
			UpdatedAt:       s.clock.Now(),
		}
		payout.IdempotencyKey = payoutdomain.TransferIdempotencyKey(payout.ID)

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&payout).Error; err != nil {
				return err
			}
			for _, entry := range group.entries {
				if err := s.insertItem(ctx, tx, payout.ID, entry); err != nil {
					return err
				}
			}
			return s.auditSvc.RecordTx(ctx, tx, auditdomain.Entry{
				EventType:       "payout.created",
				Severity:        auditdomain.SeverityInfo,
				Message:         "payout batch created",
				AffiliateUserID: &group.affiliateUserID,
				PayoutID:        &payout.ID,
				Metadata: map[string]any{
					"total_cents": payout.TotalCents,
					"currency":    payout.Currency,
					"entry_count": len(group.entries),
				},
			})
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("create payout for affiliate %s: %w", group.affiliateUserID, err))
			continue
		}
		created++

		// The network call stays outside the transaction. A failure here
		// leaves a processing payout with no transfer id, which the next
		// run resumes.
		if err := s.submitTransfer(ctx, &payout); err != nil {
			errs = append(errs, err)
		}
	}

	return created, errors.Join(errs...)
}

func (s *Service) insertItem(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID, entry commissiondomain.LedgerEntry) error {
	return tx.WithContext(ctx).Exec(`
		INSERT INTO affiliate_payout_items (id, payout_id, ledger_entry_id, amount_cents, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (ledger_entry_id) DO NOTHING
	`, s.genID.Generate(), payoutID, entry.ID, entry.AmountCents, s.clock.Now()).Error
}

func (s *Service) submitTransfer(ctx context.Context, payout *payoutdomain.AffiliatePayout) error {
	profile, err := s.affiliateSvc.GetProfile(ctx, payout.AffiliateUserID)
	if err != nil {
		return err
	}
	if profile == nil || profile.PayoutDestinationID == "" {
		// Destination disappeared between eligibility and submit. Leave the
		// payout processing; the next run retries once it is back.
		s.log.Warn("payout destination missing at transfer time",
			zap.String("payout_id", payout.ID.String()),
		)
		return nil
	}

	result, err := s.transfers.CreateTransfer(ctx, transferdomain.Request{
		AmountCents:    payout.TotalCents,
		Currency:       payout.Currency,
		DestinationID:  profile.PayoutDestinationID,
		IdempotencyKey: payout.IdempotencyKey,
		Metadata: map[string]string{
			"payout_id":         payout.ID.String(),
			"affiliate_user_id": payout.AffiliateUserID.String(),
		},
	})
	if err != nil {
		s.log.Error("transfer request failed",
			zap.String("payout_id", payout.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("submit transfer for payout %s: %w", payout.ID, err)
	}

	return s.db.WithContext(ctx).
		Model(&payoutdomain.AffiliatePayout{}).
		Where("id = ? AND provider_transfer_id = ''", payout.ID).
		Updates(map[string]any{
			"provider_transfer_id": result.TransferID,
			"transfer_status":      "created",
			"updated_at":           s.clock.Now(),
		}).Error
}

func (s *Service) ResumeTransfers(ctx context.Context) (int, error) {
	var stalled []payoutdomain.AffiliatePayout
	err := s.db.WithContext(ctx).
		Where("status = ? AND provider_transfer_id = ''", payoutdomain.StatusProcessing).
		Order("created_at asc").
		Find(&stalled).Error
	if err != nil {
		return 0, err
	}

	resumed := 0
	var errs []error
	for i := range stalled {
		if err := s.submitTransfer(ctx, &stalled[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		resumed++
	}
	return resumed, errors.Join(errs...)
}

func (s *Service) partitionByEligibility(ctx context.Context, entries []commissiondomain.LedgerEntry) ([]snowflake.ID, int, error) {
	required := s.program.Get().RequiredTermsVersion

	profiles := map[snowflake.ID]*affiliatedomain.AffiliateProfile{}
	reasonsByAffiliate := map[snowflake.ID][]string{}

	eligible := make([]snowflake.ID, 0, len(entries))
	held := 0
	for _, entry := range entries {
		profile, ok := profiles[entry.AffiliateUserID]
		if !ok {
			var err error
			profile, err = s.affiliateSvc.GetProfile(ctx, entry.AffiliateUserID)
			if err != nil {
				return nil, 0, err
			}
			profiles[entry.AffiliateUserID] = profile
			reasonsByAffiliate[entry.AffiliateUserID] = payoutdomain.HoldReasons(profile, required)
		}

		reasons := reasonsByAffiliate[entry.AffiliateUserID]
		if len(reasons) == 0 {
			eligible = append(eligible, entry.ID)
			continue
		}

		held++
		for _, reason := range reasons {
			obsmetrics.Engine().IncHeld(ctx, reason)
		}
		affiliateUserID := entry.AffiliateUserID
		if err := s.auditSvc.Record(ctx, auditdomain.Entry{
			EventType:       "payout.commission_held",
			Severity:        auditdomain.SeverityWarning,
			Message:         "commission held back: " + strings.Join(reasons, ", "),
			AffiliateUserID: &affiliateUserID,
			Metadata: map[string]any{
				"ledger_entry_id": entry.ID.String(),
				"invoice_id":      entry.InvoiceID.String(),
				"amount_cents":    entry.AmountCents,
				"reasons":         reasons,
			},
		}); err != nil {
			return nil, 0, err
		}
	}

	return eligible, held, nil
}

func (s *Service) unlockedPendingEntries(ctx context.Context, asOf time.Time) ([]commissiondomain.LedgerEntry, error) {
	var entries []commissiondomain.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("status = ? AND available_at <= ?", commissiondomain.StatusPending, asOf).
		Order("created_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) approvedUnclaimedEntries(ctx context.Context) ([]commissiondomain.LedgerEntry, error) {
	var entries []commissiondomain.LedgerEntry
	err := s.db.WithContext(ctx).
		Where(`status = ? AND NOT EXISTS (
			SELECT 1 FROM affiliate_payout_items
			WHERE affiliate_payout_items.ledger_entry_id = commission_ledger_entries.id
		)`, commissiondomain.StatusApproved).
		Order("created_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) MarkPayoutPaid(ctx context.Context, req payoutdomain.SettleRequest) (*payoutdomain.AffiliatePayout, error) {
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return nil, payoutdomain.ErrInvalidActor
	}
	if err := s.authzSvc.Authorize(ctx, actor, authorization.ObjectPayout, authorization.ActionPayoutMarkPaid); err != nil {
		return nil, err
	}

	payout, err := s.loadPayout(ctx, req.PayoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status == payoutdomain.StatusPaid {
		return payout, nil
	}
	if payout.Status == payoutdomain.StatusFailed {
		return nil, payoutdomain.ErrPayoutTerminal
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&payoutdomain.AffiliatePayout{}).
			Where("id = ? AND status IN ?", payout.ID, []payoutdomain.Status{payoutdomain.StatusPending, payoutdomain.StatusProcessing}).
			Updates(map[string]any{
				"status":     payoutdomain.StatusPaid,
				"paid_at":    now,
				"note":       req.Note,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost a race with another settlement call. Resolved below from
			// the re-read.
			return nil
		}

		if err := tx.Model(&commissiondomain.LedgerEntry{}).
			Where(`status = ? AND id IN (
				SELECT ledger_entry_id FROM affiliate_payout_items WHERE payout_id = ?
			)`, commissiondomain.StatusApproved, payout.ID).
			Updates(map[string]any{
				"status":     commissiondomain.StatusPaid,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Entry{
			EventType:       "payout.marked_paid",
			Severity:        auditdomain.SeverityInfo,
			Message:         "payout confirmed paid",
			ActorType:       auditdomain.ActorTypeAdmin,
			ActorID:         &actor,
			AffiliateUserID: &payout.AffiliateUserID,
			PayoutID:        &payout.ID,
			Metadata: map[string]any{
				"total_cents": payout.TotalCents,
				"currency":    payout.Currency,
				"note":        req.Note,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	payout, err = s.loadPayout(ctx, req.PayoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status == payoutdomain.StatusFailed {
		return nil, payoutdomain.ErrPayoutTerminal
	}
	return payout, nil
}

func (s *Service) MarkPayoutFailed(ctx context.Context, req payoutdomain.SettleRequest) (*payoutdomain.AffiliatePayout, error) {
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return nil, payoutdomain.ErrInvalidActor
	}
	if err := s.authzSvc.Authorize(ctx, actor, authorization.ObjectPayout, authorization.ActionPayoutMarkFailed); err != nil {
		return nil, err
	}

	payout, err := s.loadPayout(ctx, req.PayoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status == payoutdomain.StatusFailed {
		return payout, nil
	}
	if payout.Status == payoutdomain.StatusPaid {
		return nil, payoutdomain.ErrPayoutTerminal
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&payoutdomain.AffiliatePayout{}).
			Where("id = ? AND status IN ?", payout.ID, []payoutdomain.Status{payoutdomain.StatusPending, payoutdomain.StatusProcessing}).
			Updates(map[string]any{
				"status":     payoutdomain.StatusFailed,
				"note":       req.Note,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		// Linked ledger entries stay approved. Reissuing them is an
		// operator decision, not an automatic transition.
		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Entry{
			EventType:       "payout.marked_failed",
			Severity:        auditdomain.SeverityWarning,
			Message:         "payout marked failed",
			ActorType:       auditdomain.ActorTypeAdmin,
			ActorID:         &actor,
			AffiliateUserID: &payout.AffiliateUserID,
			PayoutID:        &payout.ID,
			Metadata: map[string]any{
				"total_cents": payout.TotalCents,
				"currency":    payout.Currency,
				"note":        req.Note,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	payout, err = s.loadPayout(ctx, req.PayoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status == payoutdomain.StatusPaid {
		return nil, payoutdomain.ErrPayoutTerminal
	}
	return payout, nil
}

func (s *Service) GetPayoutDetail(ctx context.Context, payoutID snowflake.ID) (*payoutdomain.PayoutDetail, error) {
	payout, err := s.loadPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	var items []payoutdomain.AffiliatePayoutItem
	if err := s.db.WithContext(ctx).
		Where("payout_id = ?", payout.ID).
		Order("created_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}

	entryIDs := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		entryIDs = append(entryIDs, item.LedgerEntryID)
	}

	var entries []commissiondomain.LedgerEntry
	if len(entryIDs) > 0 {
		if err := s.db.WithContext(ctx).
			Where("id IN ?", entryIDs).
			Find(&entries).Error; err != nil {
			return nil, err
		}
	}

	return &payoutdomain.PayoutDetail{
		Payout:  *payout,
		Items:   items,
		Entries: entries,
	}, nil
}

func (s *Service) ListPayouts(ctx context.Context, req payoutdomain.ListRequest) (payoutdomain.ListResponse, error) {
	resp := payoutdomain.ListResponse{Payouts: []payoutdomain.AffiliatePayout{}}

	limit := req.PageSize
	if limit <= 0 {
		limit = 10
	}

	query := s.db.WithContext(ctx).Model(&payoutdomain.AffiliatePayout{})
	if req.AffiliateUserID != nil {
		query = query.Where("affiliate_user_id = ?", *req.AffiliateUserID)
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		query = query.Where("status = ?", status)
	}

	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return resp, payoutdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return resp, payoutdomain.ErrInvalidPageToken
		}
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, cursor.ID)
	}

	var payouts []payoutdomain.AffiliatePayout
	if err := query.
		Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&payouts).Error; err != nil {
		return resp, err
	}

	if len(payouts) > limit {
		payouts = payouts[:limit]
		last := payouts[len(payouts)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return resp, err
		}
		resp.NextPageToken = token
		resp.HasMore = true
	}

	resp.Payouts = payouts
	return resp, nil
}

func (s *Service) loadPayout(ctx context.Context, payoutID snowflake.ID) (*payoutdomain.AffiliatePayout, error) {
	var payout payoutdomain.AffiliatePayout
	err := s.db.WithContext(ctx).Where("id = ?", payoutID).First(&payout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, payoutdomain.ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func groupByAffiliateCurrency(entries []commissiondomain.LedgerEntry) []payoutGroup {
	index := map[string]int{}
	groups := make([]payoutGroup, 0)
	for _, entry := range entries {
		key := entry.AffiliateUserID.String() + "|" + entry.Currency
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, payoutGroup{
				affiliateUserID: entry.AffiliateUserID,
				currency:        entry.Currency,
			})
		}
		groups[i].totalCents += entry.AmountCents
		groups[i].entries = append(groups[i].entries, entry)
	}
	return groups
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

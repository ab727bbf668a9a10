package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
	auditdomain "github.com/smallbiznis/partnerly/internal/audit/domain"
	"github.com/smallbiznis/partnerly/internal/clock"
	"github.com/smallbiznis/partnerly/internal/directory"
	referraldomain "github.com/smallbiznis/partnerly/internal/referral/domain"
	"github.com/smallbiznis/partnerly/internal/referral/fraud"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	AffiliateSvc affiliatedomain.Service
	AuditSvc     auditdomain.Service
	DirectorySvc directory.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	affiliateSvc affiliatedomain.Service
	auditSvc     auditdomain.Service
	directorySvc directory.Service
}

func NewService(p Params) referraldomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("referral.service"),
		clock:        p.Clock,
		affiliateSvc: p.AffiliateSvc,
		auditSvc:     p.AuditSvc,
		directorySvc: p.DirectorySvc,
	}
}

func (s *Service) CaptureReferral(ctx context.Context, req referraldomain.CaptureRequest) (bool, error) {
	if req.ReferredUserID == 0 {
		return false, referraldomain.ErrInvalidReferredUser
	}
	if strings.TrimSpace(req.RawCode) == "" {
		return false, referraldomain.ErrInvalidReferralCode
	}

	profile, err := s.affiliateSvc.ResolveCode(ctx, req.RawCode)
	if err != nil {
		return false, err
	}
	if profile == nil || profile.Status != affiliatedomain.StatusActive {
		return false, referraldomain.ErrInvalidReferralCode
	}
	if profile.UserID == req.ReferredUserID {
		return false, referraldomain.ErrSelfReferral
	}

	if s.isAliasedSelfReferral(ctx, profile.UserID, req.ReferredUserID) {
		if err := s.auditSvc.Record(ctx, auditdomain.Entry{
			EventType:       "referral.aliased_self_referral_rejected",
			Severity:        auditdomain.SeverityCritical,
			Message:         "referral rejected: affiliate and referred user normalize to the same identity",
			ActorType:       auditdomain.ActorTypeSystem,
			AffiliateUserID: &profile.UserID,
			Metadata: map[string]any{
				"referred_user_id": req.ReferredUserID.String(),
				"referral_code":    profile.ReferralCode,
			},
		}); err != nil {
			s.log.Warn("failed to audit aliased self-referral", zap.Error(err))
		}
		return false, referraldomain.ErrAliasedSelfReferral
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := attributionForUpdate(ctx, tx, req.ReferredUserID)
		if err != nil {
			return err
		}
		// Activated attributions are locked: later captures are silent
		// no-ops regardless of what the caller tries to write.
		if existing != nil && existing.ActivatedAt != nil {
			return nil
		}

		// Last click wins until first paid conversion. The conditional
		// update guard holds even if a concurrent crediting transaction
		// activated the row after our read.
		return tx.WithContext(ctx).Exec(
			`INSERT INTO referral_attributions (
				referred_user_id, affiliate_user_id, referral_code, source, campaign, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (referred_user_id) DO UPDATE SET
				affiliate_user_id = excluded.affiliate_user_id,
				referral_code = excluded.referral_code,
				source = excluded.source,
				campaign = excluded.campaign,
				updated_at = excluded.updated_at
			WHERE referral_attributions.activated_at IS NULL`,
			req.ReferredUserID,
			profile.UserID,
			profile.ReferralCode,
			strings.TrimSpace(req.Source),
			strings.TrimSpace(req.Campaign),
			now,
			now,
		).Error
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) GetAttribution(ctx context.Context, referredUserID snowflake.ID) (*referraldomain.ReferralAttribution, error) {
	var attribution referraldomain.ReferralAttribution
	err := s.db.WithContext(ctx).
		Where("referred_user_id = ?", referredUserID).
		First(&attribution).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attribution, nil
}

func (s *Service) isAliasedSelfReferral(ctx context.Context, affiliateUserID, referredUserID snowflake.ID) bool {
	affiliateEmail := s.lookupEmail(ctx, affiliateUserID)
	referredEmail := s.lookupEmail(ctx, referredUserID)
	if affiliateEmail == "" || referredEmail == "" {
		return false
	}
	return fraud.SameIdentity(affiliateEmail, referredEmail)
}

func (s *Service) lookupEmail(ctx context.Context, userID snowflake.ID) string {
	email, err := s.directorySvc.GetEmail(ctx, userID)
	if err != nil {
		return ""
	}
	return email
}

func attributionForUpdate(ctx context.Context, tx *gorm.DB, referredUserID snowflake.ID) (*referraldomain.ReferralAttribution, error) {
	var attribution referraldomain.ReferralAttribution
	err := tx.WithContext(ctx).
		Where("referred_user_id = ?", referredUserID).
		First(&attribution).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attribution, nil
}

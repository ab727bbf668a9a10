package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerly/internal/affiliate/code"
	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
	auditdomain "github.com/smallbiznis/partnerly/internal/audit/domain"
	"github.com/smallbiznis/partnerly/internal/cache"
	"github.com/smallbiznis/partnerly/internal/clock"
	"github.com/smallbiznis/partnerly/internal/config"
	"github.com/smallbiznis/partnerly/internal/directory"
	"github.com/smallbiznis/partnerly/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const codeCacheTTL = 45 * time.Second

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	AuditSvc     auditdomain.Service
	DirectorySvc directory.Service
	Program      *config.ProgramHolder
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	auditSvc     auditdomain.Service
	directorySvc directory.Service
	program      *config.ProgramHolder
	codeCache    cache.Cache[string, snowflake.ID]
}

func NewService(p Params) affiliatedomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("affiliate.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		auditSvc:     p.AuditSvc,
		directorySvc: p.DirectorySvc,
		program:      p.Program,
		codeCache:    cache.NewTTLCache[string, snowflake.ID](),
	}
}

func (s *Service) EnsureProfile(ctx context.Context, userID snowflake.ID) (*affiliatedomain.AffiliateProfile, error) {
	if userID == 0 {
		return nil, affiliatedomain.ErrInvalidUser
	}

	existing, err := s.findByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	program := s.program.Get()
	seed := s.lookupSeed(ctx, userID)
	base := code.Base(seed)

	for attempt := 0; attempt < program.ReferralCodeAttempts; attempt++ {
		candidate, err := code.WithRandomSuffix(base, program.ReferralCodeLength)
		if err != nil {
			return nil, err
		}
		profile, err := s.insertProfile(ctx, userID, candidate, program)
		if err == nil {
			return profile, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// A duplicate on user_id means a concurrent ensure won; reuse it.
		if winner, findErr := s.findByUser(ctx, userID); findErr == nil && winner != nil {
			return winner, nil
		}
	}

	// Random attempts kept colliding on the code; a nanosecond suffix
	// cannot collide with anything issued earlier.
	candidate := code.WithTimestampSuffix(base, s.clock.Now())
	profile, err := s.insertProfile(ctx, userID, candidate, program)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			if winner, findErr := s.findByUser(ctx, userID); findErr == nil && winner != nil {
				return winner, nil
			}
			return nil, affiliatedomain.ErrCodeExhausted
		}
		return nil, err
	}
	return profile, nil
}

func (s *Service) GetProfile(ctx context.Context, userID snowflake.ID) (*affiliatedomain.AffiliateProfile, error) {
	if userID == 0 {
		return nil, affiliatedomain.ErrInvalidUser
	}
	profile, err := s.findByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, affiliatedomain.ErrProfileNotFound
	}
	return profile, nil
}

func (s *Service) UpsertProfile(ctx context.Context, req affiliatedomain.UpdateRequest) (*affiliatedomain.AffiliateProfile, error) {
	profile, err := s.EnsureProfile(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	program := s.program.Get()
	updates := map[string]any{}

	if req.Status != nil {
		switch *req.Status {
		case affiliatedomain.StatusPending, affiliatedomain.StatusActive,
			affiliatedomain.StatusSuspended, affiliatedomain.StatusBlocked:
			updates["status"] = *req.Status
		default:
			return nil, affiliatedomain.ErrInvalidStatus
		}
	}
	if req.LevelOneRateBps != nil {
		if *req.LevelOneRateBps < 0 || *req.LevelOneRateBps > program.MaxLevelOneBps {
			return nil, affiliatedomain.ErrInvalidRate
		}
		updates["level_one_rate_bps"] = *req.LevelOneRateBps
	}
	if req.LevelTwoRateBps != nil {
		if *req.LevelTwoRateBps < 0 || *req.LevelTwoRateBps > program.MaxLevelTwoBps {
			return nil, affiliatedomain.ErrInvalidRate
		}
		updates["level_two_rate_bps"] = *req.LevelTwoRateBps
	}
	if req.ClearParent {
		updates["parent_affiliate_user_id"] = nil
	} else if req.ParentAffiliateUserID != nil {
		if *req.ParentAffiliateUserID == req.UserID {
			return nil, affiliatedomain.ErrSelfParent
		}
		updates["parent_affiliate_user_id"] = *req.ParentAffiliateUserID
	}
	if req.PayoutDestinationID != nil {
		updates["payout_destination_id"] = strings.TrimSpace(*req.PayoutDestinationID)
	}
	if req.PayoutDestinationReady != nil {
		updates["payout_destination_ready"] = *req.PayoutDestinationReady
	}
	if req.TaxLegalName != nil {
		updates["tax_legal_name"] = strings.TrimSpace(*req.TaxLegalName)
	}
	if req.TaxCountry != nil {
		country := strings.ToUpper(strings.TrimSpace(*req.TaxCountry))
		if country != "" && !affiliatedomain.IsISOCountry(country) {
			return nil, affiliatedomain.ErrInvalidTaxInfo
		}
		updates["tax_country"] = country
	}
	if req.TaxID != nil {
		updates["tax_id"] = strings.TrimSpace(*req.TaxID)
	}

	if len(updates) == 0 {
		return profile, nil
	}
	updates["updated_at"] = s.clock.Now()

	if err := s.db.WithContext(ctx).
		Model(&affiliatedomain.AffiliateProfile{}).
		Where("id = ?", profile.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	s.codeCache.Delete(profile.ReferralCode)
	return s.findByUser(ctx, req.UserID)
}

func (s *Service) ResolveCode(ctx context.Context, raw string) (*affiliatedomain.AffiliateProfile, error) {
	normalized := code.Normalize(raw)
	if normalized == "" {
		return nil, nil
	}

	if userID, ok := s.codeCache.Get(normalized); ok {
		return s.findByUser(ctx, userID)
	}

	var profile affiliatedomain.AffiliateProfile
	err := s.db.WithContext(ctx).
		Where("referral_code = ?", normalized).
		First(&profile).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	s.codeCache.Set(normalized, profile.UserID, codeCacheTTL)
	return &profile, nil
}

func (s *Service) AcceptTerms(ctx context.Context, userID snowflake.ID, version string) (*affiliatedomain.AffiliateProfile, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, affiliatedomain.ErrInvalidTermsVer
	}

	profile, err := s.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.db.WithContext(ctx).
		Model(&affiliatedomain.AffiliateProfile{}).
		Where("id = ?", profile.ID).
		Updates(map[string]any{
			"terms_accepted_at": now,
			"terms_version":     version,
			"updated_at":        now,
		}).Error; err != nil {
		return nil, err
	}

	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		EventType:       "affiliate.terms_accepted",
		Severity:        auditdomain.SeverityInfo,
		Message:         "affiliate accepted program terms",
		ActorType:       auditdomain.ActorTypeAffiliate,
		AffiliateUserID: &userID,
		Metadata: map[string]any{
			"terms_version": version,
		},
	}); err != nil {
		s.log.Warn("failed to audit terms acceptance", zap.Error(err))
	}

	return s.findByUser(ctx, userID)
}

func (s *Service) insertProfile(ctx context.Context, userID snowflake.ID, referralCode string, program config.ProgramConfig) (*affiliatedomain.AffiliateProfile, error) {
	now := s.clock.Now()
	profile := affiliatedomain.AffiliateProfile{
		ID:              s.genID.Generate(),
		UserID:          userID,
		ReferralCode:    referralCode,
		Status:          affiliatedomain.StatusActive,
		LevelOneRateBps: program.DefaultLevelOneBps,
		LevelTwoRateBps: program.DefaultLevelTwoBps,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *Service) findByUser(ctx context.Context, userID snowflake.ID) (*affiliatedomain.AffiliateProfile, error) {
	var profile affiliatedomain.AffiliateProfile
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// lookupSeed fetches the user's email for a recognizable code base. A
// missing directory row degrades to the generic prefix, never an error.
func (s *Service) lookupSeed(ctx context.Context, userID snowflake.ID) string {
	email, err := s.directorySvc.GetEmail(ctx, userID)
	if err != nil {
		return ""
	}
	return email
}

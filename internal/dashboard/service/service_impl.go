package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
	"github.com/smallbiznis/partnerly/internal/authorization"
	dashboarddomain "github.com/smallbiznis/partnerly/internal/dashboard/domain"
	payoutdomain "github.com/smallbiznis/partnerly/internal/payout/domain"
	"github.com/smallbiznis/partnerly/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	recentPayoutLimit = 10
	downlineDepthCap  = 2
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	AffiliateSvc affiliatedomain.Service
	AuthzSvc     authorization.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	affiliateSvc affiliatedomain.Service
	authzSvc     authorization.Service
}

func NewService(p Params) dashboarddomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("dashboard.service"),
		affiliateSvc: p.AffiliateSvc,
		authzSvc:     p.AuthzSvc,
	}
}

func (s *Service) GetAffiliateSummary(ctx context.Context, userID snowflake.ID) (*dashboarddomain.AffiliateSummary, error) {
	profile, err := s.affiliateSvc.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, affiliatedomain.ErrProfileNotFound
	}

	summary := &dashboarddomain.AffiliateSummary{Profile: *profile}

	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM referral_attributions WHERE affiliate_user_id = ?`, userID,
	).Scan(&summary.TotalReferred).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM referral_attributions WHERE affiliate_user_id = ? AND activated_at IS NOT NULL`, userID,
	).Scan(&summary.ActivatedReferred).Error; err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Raw(
		`SELECT status, currency, COUNT(*) AS entry_count, COALESCE(SUM(amount_cents), 0) AS total_cents
		 FROM commission_ledger_entries
		 WHERE affiliate_user_id = ?
		 GROUP BY status, currency
		 ORDER BY status, currency`, userID,
	).Scan(&summary.LedgerTotals).Error; err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).
		Where("affiliate_user_id = ?", userID).
		Order("created_at desc").
		Limit(recentPayoutLimit).
		Find(&summary.RecentPayouts).Error; err != nil {
		return nil, err
	}
	if summary.RecentPayouts == nil {
		summary.RecentPayouts = []payoutdomain.AffiliatePayout{}
	}

	downline, err := s.downline(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary.Downline = downline

	return summary, nil
}

// downline walks the parent adjacency breadth-first, capped at two levels,
// so a pathological referral chain can never recurse unbounded.
func (s *Service) downline(ctx context.Context, rootUserID snowflake.ID) ([]dashboarddomain.TreeNode, error) {
	nodes := []dashboarddomain.TreeNode{}
	seen := map[snowflake.ID]bool{rootUserID: true}

	frontier := []snowflake.ID{rootUserID}
	for depth := 1; depth <= downlineDepthCap && len(frontier) > 0; depth++ {
		var children []affiliatedomain.AffiliateProfile
		if err := s.db.WithContext(ctx).
			Where("parent_affiliate_user_id IN ?", frontier).
			Order("created_at asc").
			Find(&children).Error; err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, child := range children {
			if seen[child.UserID] {
				continue
			}
			seen[child.UserID] = true

			var referred int64
			if err := s.db.WithContext(ctx).Raw(
				`SELECT COUNT(*) FROM referral_attributions WHERE affiliate_user_id = ?`, child.UserID,
			).Scan(&referred).Error; err != nil {
				return nil, err
			}

			nodes = append(nodes, dashboarddomain.TreeNode{
				UserID:        child.UserID,
				ReferralCode:  child.ReferralCode,
				Status:        string(child.Status),
				Depth:         depth,
				ReferredCount: referred,
			})
			frontier = append(frontier, child.UserID)
		}
	}

	return nodes, nil
}

func (s *Service) GetAdminOverview(ctx context.Context, actor string) (*dashboarddomain.AdminOverview, error) {
	actor = strings.TrimSpace(actor)
	if err := s.authzSvc.Authorize(ctx, actor, authorization.ObjectAffiliate, authorization.ActionAffiliateView); err != nil {
		return nil, err
	}

	overview := &dashboarddomain.AdminOverview{
		AffiliatesByStatus: map[string]int64{},
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	if err := s.db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count FROM affiliate_profiles GROUP BY status`,
	).Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		overview.AffiliatesByStatus[c.Status] = c.Count
	}

	if err := s.db.WithContext(ctx).Raw(
		`SELECT status, currency, COUNT(*) AS entry_count, COALESCE(SUM(amount_cents), 0) AS total_cents
		 FROM commission_ledger_entries
		 GROUP BY status, currency
		 ORDER BY status, currency`,
	).Scan(&overview.LedgerTotals).Error; err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Raw(
		`SELECT status, currency, COUNT(*) AS entry_count, COALESCE(SUM(total_cents), 0) AS total_cents
		 FROM affiliate_payouts
		 GROUP BY status, currency
		 ORDER BY status, currency`,
	).Scan(&overview.PayoutsByStatus).Error; err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM referral_attributions`,
	).Scan(&overview.AttributionCount).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM referral_attributions WHERE activated_at IS NOT NULL`,
	).Scan(&overview.ActivatedCount).Error; err != nil {
		return nil, err
	}

	return overview, nil
}

func (s *Service) ListAffiliates(ctx context.Context, actor string, req dashboarddomain.ListAffiliatesRequest) (dashboarddomain.ListAffiliatesResponse, error) {
	resp := dashboarddomain.ListAffiliatesResponse{Affiliates: []affiliatedomain.AffiliateProfile{}}

	actor = strings.TrimSpace(actor)
	if err := s.authzSvc.Authorize(ctx, actor, authorization.ObjectAffiliate, authorization.ActionAffiliateView); err != nil {
		return resp, err
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 10
	}

	query := s.db.WithContext(ctx).Model(&affiliatedomain.AffiliateProfile{})
	if status := strings.TrimSpace(req.Status); status != "" {
		query = query.Where("status = ?", status)
	}

	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return resp, dashboarddomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return resp, dashboarddomain.ErrInvalidPageToken
		}
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, cursor.ID)
	}

	var profiles []affiliatedomain.AffiliateProfile
	if err := query.
		Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&profiles).Error; err != nil {
		return resp, err
	}

	if len(profiles) > limit {
		profiles = profiles[:limit]
		last := profiles[len(profiles)-1]
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

	resp.Affiliates = profiles
	return resp, nil
}

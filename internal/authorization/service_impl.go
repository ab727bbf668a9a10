package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectAffiliate   = "affiliate"
	ObjectAttribution = "attribution"
	ObjectCommission  = "commission_ledger"
	ObjectPayout      = "payout"
	ObjectAuditLog    = "audit_log"
)

const (
	ActionPayoutRun        = "payout.run"
	ActionPayoutMarkPaid   = "payout.mark_paid"
	ActionPayoutMarkFailed = "payout.mark_failed"
	ActionPayoutView       = "payout.view"

	ActionCommissionCredit  = "commission.credit"
	ActionCommissionReverse = "commission.reverse"

	ActionAffiliateUpdate = "affiliate.update"
	ActionAffiliateView   = "affiliate.view"

	ActionAuditLogView = "audit_log.view"
)

const (
	RoleSystem = "system"
	RoleAdmin  = "admin"
)

var ErrForbidden = errors.New("forbidden")

type Service interface {
	Authorize(ctx context.Context, subject, object, action string) error
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type service struct {
	enforcer *casbin.Enforcer
	log      *zap.Logger
}

var Module = fx.Module("authorization",
	fx.Provide(NewService),
)

func NewService(p Params) (Service, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("parse authorization model: %w", err)
	}

	adapter, err := gormadapter.NewAdapterByDB(p.DB)
	if err != nil {
		return nil, fmt.Errorf("create authorization adapter: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, fmt.Errorf("seed policies: %w", err)
	}

	return &service{
		enforcer: enforcer,
		log:      p.Log.Named("authorization"),
	}, nil
}

func (s *service) Authorize(ctx context.Context, subject, object, action string) error {
	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.Enforcer) error {
	policies := [][]string{
		{RoleSystem, ObjectCommission, ActionCommissionCredit},
		{RoleSystem, ObjectCommission, ActionCommissionReverse},
		{RoleSystem, ObjectPayout, ActionPayoutRun},

		{RoleAdmin, ObjectPayout, ActionPayoutRun},
		{RoleAdmin, ObjectPayout, ActionPayoutMarkPaid},
		{RoleAdmin, ObjectPayout, ActionPayoutMarkFailed},
		{RoleAdmin, ObjectPayout, ActionPayoutView},
		{RoleAdmin, ObjectAffiliate, ActionAffiliateUpdate},
		{RoleAdmin, ObjectAffiliate, ActionAffiliateView},
		{RoleAdmin, ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return enforcer.SavePolicy()
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
	auditdomain "github.com/smallbiznis/partnerly/internal/audit/domain"
	"github.com/smallbiznis/partnerly/internal/authorization"
	"github.com/smallbiznis/partnerly/internal/clock"
	"github.com/smallbiznis/partnerly/internal/config"
	dashboarddomain "github.com/smallbiznis/partnerly/internal/dashboard/domain"
	paymentdomain "github.com/smallbiznis/partnerly/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/partnerly/internal/payout/domain"
	referraldomain "github.com/smallbiznis/partnerly/internal/referral/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

type Server struct {
	engine       *gin.Engine
	log          *zap.Logger
	clock        clock.Clock
	affiliateSvc affiliatedomain.Service
	referralSvc  referraldomain.Service
	payoutSvc    payoutdomain.Service
	paymentSvc   paymentdomain.Service
	dashboardSvc dashboarddomain.Service
	auditSvc     auditdomain.Service
	authzSvc     authorization.Service
	program      *config.ProgramHolder
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Log          *zap.Logger
	Clock        clock.Clock
	AffiliateSvc affiliatedomain.Service
	ReferralSvc  referraldomain.Service
	PayoutSvc    payoutdomain.Service
	PaymentSvc   paymentdomain.Service
	DashboardSvc dashboarddomain.Service
	AuditSvc     auditdomain.Service
	AuthzSvc     authorization.Service
	Program      *config.ProgramHolder
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		log:          p.Log.Named("http.server"),
		clock:        p.Clock,
		affiliateSvc: p.AffiliateSvc,
		referralSvc:  p.ReferralSvc,
		payoutSvc:    p.PayoutSvc,
		paymentSvc:   p.PaymentSvc,
		dashboardSvc: p.DashboardSvc,
		auditSvc:     p.AuditSvc,
		authzSvc:     p.AuthzSvc,
		program:      p.Program,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/referrals/capture", s.captureReferral)
	v1.GET("/affiliate/profile", s.getOwnProfile)
	v1.PATCH("/affiliate/profile", s.updateOwnProfile)
	v1.POST("/affiliate/terms/accept", s.acceptTerms)
	v1.GET("/affiliate/dashboard", s.getOwnDashboard)

	v1.POST("/events/payment", s.ingestPaymentEvent)

	admin := v1.Group("/admin")
	admin.GET("/overview", s.adminOverview)
	admin.GET("/affiliates", s.adminListAffiliates)
	admin.PATCH("/affiliates/:user_id", s.adminUpdateAffiliate)
	admin.POST("/payouts/run", s.adminRunPayouts)
	admin.GET("/payouts", s.adminListPayouts)
	admin.GET("/payouts/:payout_id", s.adminGetPayout)
	admin.POST("/payouts/:payout_id/mark_paid", s.adminMarkPayoutPaid)
	admin.POST("/payouts/:payout_id/mark_failed", s.adminMarkPayoutFailed)
	admin.GET("/audit-events", s.adminListAuditEvents)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

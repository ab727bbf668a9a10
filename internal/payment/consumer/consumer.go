package consumer

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerly/internal/clock"
	commissiondomain "github.com/smallbiznis/partnerly/internal/commission/domain"
	paymentdomain "github.com/smallbiznis/partnerly/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	CommissionSvc commissiondomain.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	commissionSvc commissiondomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.consumer"),
		genID:         p.GenID,
		clock:         p.Clock,
		commissionSvc: p.CommissionSvc,
	}
}

func (s *Service) ProcessEvent(ctx context.Context, event paymentdomain.Event) error {
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	event.Type = strings.TrimSpace(event.Type)
	if event.Provider == "" || event.ProviderEventID == "" || event.Type == "" || event.InvoiceID == 0 {
		return paymentdomain.ErrInvalidEvent
	}

	if err := s.recordEvent(ctx, event); err != nil {
		return err
	}

	// Routing happens on every delivery, duplicates included. The ledger
	// operations are idempotent, so replaying is cheaper than trying to
	// make record-then-route atomic with the downstream transaction.
	if err := s.route(ctx, event); err != nil {
		return err
	}

	return s.markProcessed(ctx, event)
}

func (s *Service) route(ctx context.Context, event paymentdomain.Event) error {
	switch event.Type {
	case paymentdomain.EventInvoicePaid:
		return s.commissionSvc.ProcessPaidPayment(ctx, event.InvoiceID)
	case paymentdomain.EventInvoiceVoided:
		return s.reverse(ctx, event, "invoice_voided")
	case paymentdomain.EventInvoiceUncollectible:
		return s.reverse(ctx, event, "invoice_uncollectible")
	case paymentdomain.EventChargeRefunded:
		return s.reverse(ctx, event, "charge_refunded")
	case paymentdomain.EventDisputeOpened:
		return s.reverse(ctx, event, "dispute_opened")
	case paymentdomain.EventDisputeClosed:
		if strings.EqualFold(event.DisputeOutcome, paymentdomain.DisputeOutcomeWon) {
			s.log.Info("dispute closed in merchant favor, no reversal",
				zap.String("invoice_id", event.InvoiceID.String()),
				zap.String("provider_event_id", event.ProviderEventID),
			)
			return nil
		}
		return s.reverse(ctx, event, "dispute_lost")
	default:
		s.log.Info("ignoring unhandled payment event type",
			zap.String("event_type", event.Type),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return nil
	}
}

func (s *Service) reverse(ctx context.Context, event paymentdomain.Event, reason string) error {
	reversed, err := s.commissionSvc.ReverseInvoiceCommissions(ctx, event.InvoiceID, reason)
	if err != nil {
		return err
	}
	if reversed > 0 {
		s.log.Info("reversed commissions for invoice",
			zap.String("invoice_id", event.InvoiceID.String()),
			zap.String("reason", reason),
			zap.Int("entries", reversed),
		)
	}
	return nil
}

func (s *Service) recordEvent(ctx context.Context, event paymentdomain.Event) error {
	record := paymentdomain.PaymentEvent{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		InvoiceID:       event.InvoiceID,
		DisputeOutcome:  event.DisputeOutcome,
		Payload:         datatypes.JSONMap(event.Payload),
		CreatedAt:       s.clock.Now(),
	}
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO payment_events (id, provider, provider_event_id, event_type, invoice_id, dispute_outcome, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, record.ID, record.Provider, record.ProviderEventID, record.EventType, record.InvoiceID, record.DisputeOutcome, record.Payload, record.CreatedAt).Error
}

func (s *Service) markProcessed(ctx context.Context, event paymentdomain.Event) error {
	return s.db.WithContext(ctx).
		Model(&paymentdomain.PaymentEvent{}).
		Where("provider = ? AND provider_event_id = ? AND processed_at IS NULL", event.Provider, event.ProviderEventID).
		Update("processed_at", s.clock.Now()).Error
}

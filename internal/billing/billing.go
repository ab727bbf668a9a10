package billing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerly/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const InvoiceStatusPaid = "paid"

// Invoice is the read-only slice of the billing schema the engine needs to
// credit commissions. The engine never writes invoices.
type Invoice struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	CustomerID snowflake.ID `gorm:"not null;index"`
	TotalCents int64        `gorm:"not null"`
	Currency   string       `gorm:"type:text;not null"`
	Status     string       `gorm:"type:text;not null"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

type Service interface {
	// GetInvoice returns nil when the invoice does not exist.
	GetInvoice(ctx context.Context, invoiceID snowflake.ID) (*Invoice, error)
}

type service struct {
	invoices repository.Repository[Invoice]
}

var Module = fx.Module("billing",
	fx.Provide(NewService),
)

func NewService(db *gorm.DB) Service {
	return &service{invoices: repository.ProvideStore[Invoice](db)}
}

func (s *service) GetInvoice(ctx context.Context, invoiceID snowflake.ID) (*Invoice, error) {
	return s.invoices.FindOne(ctx, &Invoice{ID: invoiceID})
}

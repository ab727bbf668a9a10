package repository

import (
	"context"

	"github.com/smallbiznis/partnerly/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a typed store over one gorm model. Domain services use it
// for simple lookups; multi-row mutations stay in service transactions.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	Count(ctx context.Context, query *T) (int64, error)
}

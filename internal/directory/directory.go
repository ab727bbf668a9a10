package directory

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerly/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// User is the read-only slice of the platform user directory this engine
// needs: display identity for the fraud heuristic and reporting.
type User struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Email     string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

var ErrUserNotFound = errors.New("user_not_found")

type Service interface {
	GetEmail(ctx context.Context, userID snowflake.ID) (string, error)
}

type service struct {
	users repository.Repository[User]
}

var Module = fx.Module("directory",
	fx.Provide(NewService),
)

func NewService(db *gorm.DB) Service {
	return &service{users: repository.ProvideStore[User](db)}
}

func (s *service) GetEmail(ctx context.Context, userID snowflake.ID) (string, error) {
	user, err := s.users.FindOne(ctx, &User{ID: userID})
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}
	return user.Email, nil
}

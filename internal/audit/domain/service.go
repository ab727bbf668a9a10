package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerly/pkg/db/pagination"
	"gorm.io/gorm"
)

// Entry describes one decision to record.
type Entry struct {
	EventType       string
	Severity        Severity
	Message         string
	ActorType       ActorType
	ActorID         *string
	AffiliateUserID *snowflake.ID
	PayoutID        *snowflake.ID
	Metadata        map[string]any
}

type ListRequest struct {
	pagination.Pagination
	EventType       string
	Severity        string
	AffiliateUserID *snowflake.ID
	PayoutID        *snowflake.ID
	StartAt         *time.Time
	EndAt           *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	Events []AuditEvent `json:"events"`
}

type Service interface {
	// Record appends one audit event. RecordTx appends inside the caller's
	// transaction so a decision and its trail commit together.
	Record(ctx context.Context, entry Entry) error
	RecordTx(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

type ListFilter struct {
	EventType       string
	Severity        string
	AffiliateUserID *snowflake.ID
	PayoutID        *snowflake.ID
	StartAt         *time.Time
	EndAt           *time.Time
	Cursor          *pagination.Cursor
	Limit           int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *AuditEvent) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditEvent, error)
}

var (
	ErrInvalidEventType = errors.New("invalid_event_type")
	ErrInvalidSeverity  = errors.New("invalid_severity")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)

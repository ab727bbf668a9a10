package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Severity grades how consequential a recorded decision was.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type ActorType string

const (
	ActorTypeSystem    ActorType = "system"
	ActorTypeAdmin     ActorType = "admin"
	ActorTypeAffiliate ActorType = "affiliate"
)

// AuditEvent is one append-only compliance record. Rows are never updated
// or deleted once written.
type AuditEvent struct {
	ID              snowflake.ID       `gorm:"primaryKey"`
	EventType       string             `gorm:"type:text;not null;index"`
	Severity        Severity           `gorm:"type:text;not null;index"`
	Message         string             `gorm:"type:text;not null"`
	ActorType       ActorType          `gorm:"type:text;not null"`
	ActorID         *string            `gorm:"type:text"`
	AffiliateUserID *snowflake.ID      `gorm:"index"`
	PayoutID        *snowflake.ID      `gorm:"index"`
	Metadata        datatypes.JSONMap  `gorm:"type:jsonb"`
	CreatedAt       time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (AuditEvent) TableName() string { return "compliance_audit_events" }

package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/partnerly/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.AuditEvent) error {
	if event == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO compliance_audit_events (
			id, event_type, severity, message, actor_type, actor_id,
			affiliate_user_id, payout_id, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.EventType,
		event.Severity,
		event.Message,
		event.ActorType,
		event.ActorID,
		event.AffiliateUserID,
		event.PayoutID,
		event.Metadata,
		event.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditEvent, error) {
	var events []*domain.AuditEvent
	stmt := db.WithContext(ctx).Model(&domain.AuditEvent{})

	if eventType := strings.TrimSpace(filter.EventType); eventType != "" {
		stmt = stmt.Where("event_type = ?", eventType)
	}
	if severity := strings.TrimSpace(filter.Severity); severity != "" {
		stmt = stmt.Where("severity = ?", severity)
	}
	if filter.AffiliateUserID != nil {
		stmt = stmt.Where("affiliate_user_id = ?", *filter.AffiliateUserID)
	}
	if filter.PayoutID != nil {
		stmt = stmt.Where("payout_id = ?", *filter.PayoutID)
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

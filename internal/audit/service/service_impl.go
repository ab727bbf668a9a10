package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/partnerly/internal/audit/domain"
	"github.com/smallbiznis/partnerly/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	return s.RecordTx(ctx, s.db, entry)
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	eventType := strings.TrimSpace(entry.EventType)
	if eventType == "" {
		return auditdomain.ErrInvalidEventType
	}

	severity := entry.Severity
	switch severity {
	case auditdomain.SeverityInfo, auditdomain.SeverityWarning, auditdomain.SeverityCritical:
	case "":
		severity = auditdomain.SeverityInfo
	default:
		return auditdomain.ErrInvalidSeverity
	}

	actorType := entry.ActorType
	if actorType == "" {
		actorType = auditdomain.ActorTypeSystem
	}

	payload := map[string]any{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	event := auditdomain.AuditEvent{
		ID:              s.genID.Generate(),
		EventType:       eventType,
		Severity:        severity,
		Message:         strings.TrimSpace(entry.Message),
		ActorType:       actorType,
		ActorID:         entry.ActorID,
		AffiliateUserID: entry.AffiliateUserID,
		PayoutID:        entry.PayoutID,
		Metadata:        datatypes.JSONMap(payload),
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, tx, &event); err != nil {
		s.log.Warn("failed to write audit event", zap.String("event_type", eventType), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var cursor *pagination.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = decoded
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		EventType:       req.EventType,
		Severity:        req.Severity,
		AffiliateUserID: req.AffiliateUserID,
		PayoutID:        req.PayoutID,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		Cursor:          cursor,
		Limit:           limit,
	})
	if err != nil {
		return auditdomain.ListResponse{}, err
	}

	resp := auditdomain.ListResponse{}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	resp.HasMore = hasMore

	resp.Events = make([]auditdomain.AuditEvent, 0, len(rows))
	for _, row := range rows {
		resp.Events = append(resp.Events, *row)
	}

	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        strconv.FormatInt(int64(last.ID), 10),
			CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err == nil {
			resp.NextPageToken = token
		}
	}

	return resp, nil
}

package inapp

import (
	"context"

	"cascade_backend/platform/apperr"
	"cascade_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence the service needs.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
	List(ctx context.Context, userID uuid.UUID, f Filter, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (map[Kind]int, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID, f Filter) (int64, error)
}

type Service struct {
	repo Store
	log  *logger.Logger
}

func NewService(repo Store, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// SendParams describes one alert. Category falls back to the kind's default.
type SendParams struct {
	UserID       uuid.UUID
	Kind         Kind
	Category     Category
	Title        string
	Content      string
	LeadID       *uuid.UUID
	AssignmentID *uuid.UUID
}

// UnreadSummary is the inbox badge: a total plus the split per kind.
type UnreadSummary struct {
	Total  int          `json:"count"`
	ByKind map[Kind]int `json:"byKind"`
}

// Send persists the notification for the CRM inbox.
func (s *Service) Send(ctx context.Context, p SendParams) error {
	if s == nil || s.repo == nil {
		return apperr.Internal("in-app notification service not configured")
	}

	if p.Category == "" {
		p.Category = p.Kind.defaultCategory()
	}

	_, err := s.repo.Create(ctx, CreateParams(p))
	if err != nil {
		if s.log != nil {
			s.log.Error("failed to persist in-app notification", "error", err, "userId", p.UserID, "kind", p.Kind)
		}
		return err
	}

	return nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, f Filter, page, pageSize int) ([]Notification, int, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, 0, apperr.Validation("unknown notification kind")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize
	return s.repo.List(ctx, userID, f, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (UnreadSummary, error) {
	counts, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return UnreadSummary{}, err
	}
	sum := UnreadSummary{ByKind: counts}
	for _, n := range counts {
		sum.Total += n
	}
	return sum, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

// MarkAllRead clears unread alerts, optionally only those of one kind.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID, kind Kind) (int64, error) {
	if kind != "" && !kind.Valid() {
		return 0, apperr.Validation("unknown notification kind")
	}
	return s.repo.MarkAllRead(ctx, userID, Filter{Kind: kind})
}

package inapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cascade_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate      = "notification.inapp.repository.create"
	opList        = "notification.inapp.repository.list"
	opCountUnread = "notification.inapp.repository.count_unread"
	opMarkRead    = "notification.inapp.repository.mark_read"
	opMarkAllRead = "notification.inapp.repository.mark_all_read"

	errRepoNotConfigured = "in-app notification repository not configured"
	errUserIDRequired    = "userId is required"

	inboxColumns = `id, user_id, kind, category, title, content, lead_id, assignment_id, is_read, read_at, created_at`
)

// Notification is one row of a user's cascade inbox.
type Notification struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"userId"`
	Kind         Kind       `json:"kind"`
	Category     Category   `json:"category"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	LeadID       *uuid.UUID `json:"leadId,omitempty"`
	AssignmentID *uuid.UUID `json:"assignmentId,omitempty"`
	IsRead       bool       `json:"isRead"`
	ReadAt       *time.Time `json:"readAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type CreateParams struct {
	UserID       uuid.UUID
	Kind         Kind
	Category     Category
	Title        string
	Content      string
	LeadID       *uuid.UUID
	AssignmentID *uuid.UUID
}

// Filter narrows an inbox listing. The zero value lists everything.
type Filter struct {
	Kind       Kind
	UnreadOnly bool
}

func (f Filter) where(userID uuid.UUID) (string, []any) {
	clauses := []string{"user_id = $1"}
	args := []any{userID}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		clauses = append(clauses, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.UnreadOnly {
		clauses = append(clauses, "is_read = FALSE")
	}
	return strings.Join(clauses, " AND "), args
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ready(op string) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(op)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (Notification, error) {
	var (
		n        Notification
		kind     string
		category string
	)
	err := row.Scan(&n.ID, &n.UserID, &kind, &category, &n.Title, &n.Content,
		&n.LeadID, &n.AssignmentID, &n.IsRead, &n.ReadAt, &n.CreatedAt)
	n.Kind, n.Category = Kind(kind), Category(category)
	return n, err
}

// Create stores p. An assignment alert of the same kind already in the
// user's inbox is returned as is, so a retried delivery shows up once.
func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if err := r.ready(opCreate); err != nil {
		return Notification{}, err
	}
	if err := p.validate(); err != nil {
		return Notification{}, err.WithOp(opCreate)
	}

	n, err := scanNotification(r.pool.QueryRow(ctx, `
		INSERT INTO cascade_in_app_notifications
		(user_id, kind, category, title, content, lead_id, assignment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, assignment_id, kind) WHERE assignment_id IS NOT NULL DO NOTHING
		RETURNING `+inboxColumns,
		p.UserID, string(p.Kind), string(p.Category), p.Title, p.Content, p.LeadID, p.AssignmentID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.existingAlert(ctx, p)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Notification{}, apperr.Validation("alert references an unknown assignment").WithOp(opCreate)
		}
		return Notification{}, apperr.Internal(fmt.Sprintf("create in-app notification failed: %v", err)).WithOp(opCreate)
	}
	return n, nil
}

func (r *Repository) existingAlert(ctx context.Context, p CreateParams) (Notification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx, `
		SELECT `+inboxColumns+`
		FROM cascade_in_app_notifications
		WHERE user_id = $1 AND assignment_id = $2 AND kind = $3
	`, p.UserID, p.AssignmentID, string(p.Kind)))
	if err != nil {
		return Notification{}, apperr.Internal(fmt.Sprintf("load existing alert failed: %v", err)).WithOp(opCreate)
	}
	return n, nil
}

func (r *Repository) List(ctx context.Context, userID uuid.UUID, f Filter, limit, offset int) ([]Notification, int, error) {
	if err := r.ready(opList); err != nil {
		return nil, 0, err
	}
	if userID == uuid.Nil {
		return nil, 0, apperr.Validation(errUserIDRequired).WithOp(opList)
	}

	where, args := f.where(userID)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cascade_in_app_notifications WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("count notifications failed: %v", err)).WithOp(opList)
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM cascade_in_app_notifications
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, inboxColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("list notifications query failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("scan notifications failed: %v", err)).WithOp(opList)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("iterate notifications failed: %v", err)).WithOp(opList)
	}
	return items, total, nil
}

// CountUnread reports unread alerts per kind. Kinds with nothing unread are absent.
func (r *Repository) CountUnread(ctx context.Context, userID uuid.UUID) (map[Kind]int, error) {
	if err := r.ready(opCountUnread); err != nil {
		return nil, err
	}
	if userID == uuid.Nil {
		return nil, apperr.Validation(errUserIDRequired).WithOp(opCountUnread)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT kind, COUNT(*) FROM cascade_in_app_notifications
		WHERE user_id = $1 AND is_read = FALSE
		GROUP BY kind
	`, userID)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("count unread notifications failed: %v", err)).WithOp(opCountUnread)
	}
	defer rows.Close()

	counts := make(map[Kind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan unread counts failed: %v", err)).WithOp(opCountUnread)
		}
		counts[Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate unread counts failed: %v", err)).WithOp(opCountUnread)
	}
	return counts, nil
}

func (r *Repository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if err := r.ready(opMarkRead); err != nil {
		return err
	}
	if userID == uuid.Nil || notificationID == uuid.Nil {
		return apperr.Validation("userId and notificationId are required").WithOp(opMarkRead)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE cascade_in_app_notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, now())
		WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark notification read failed: %v", err)).WithOp(opMarkRead)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found").WithOp(opMarkRead)
	}
	return nil
}

// MarkAllRead clears the unread flag on every alert matching f and reports
// how many changed.
func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID, f Filter) (int64, error) {
	if err := r.ready(opMarkAllRead); err != nil {
		return 0, err
	}
	if userID == uuid.Nil {
		return 0, apperr.Validation(errUserIDRequired).WithOp(opMarkAllRead)
	}

	f.UnreadOnly = true
	where, args := f.where(userID)
	tag, err := r.pool.Exec(ctx, `
		UPDATE cascade_in_app_notifications
		SET is_read = TRUE, read_at = now()
		WHERE `+where, args...)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("mark all notifications read failed: %v", err)).WithOp(opMarkAllRead)
	}
	return tag.RowsAffected(), nil
}

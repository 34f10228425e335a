package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-erp-api/internal/models"
)

const requestColumns = `id, from_user_id, from_user_name, from_user_role, to_user_id, to_user_name, to_user_role,
       request_type, category, subject, description, status, priority, department, tags,
       auto_forwarded, escalation_level, max_response_time, approved_at, approved_by, approved_by_name,
       version, created_at, updated_at`

// RequestRepository persists routed staff requests and their comment threads.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request row.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	if request.Version == 0 {
		request.Version = 1
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	if request.UpdatedAt.IsZero() {
		request.UpdatedAt = now
	}
	const query = `INSERT INTO requests
	(id, from_user_id, from_user_name, from_user_role, to_user_id, to_user_name, to_user_role,
	 request_type, category, subject, description, status, priority, department, tags,
	 auto_forwarded, escalation_level, max_response_time, approved_at, approved_by, approved_by_name,
	 version, created_at, updated_at)
	VALUES (:id, :from_user_id, :from_user_name, :from_user_role, :to_user_id, :to_user_name, :to_user_role,
	 :request_type, :category, :subject, :description, :status, :priority, :department, :tags,
	 :auto_forwarded, :escalation_level, :max_response_time, :approved_at, :approved_by, :approved_by_name,
	 :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier. Comments are loaded separately.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	var request models.Request
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter, newest first.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + requestColumns + ` FROM requests`)

	conditions := make([]string, 0, 5)
	if filter.RecipientID != "" {
		args = append(args, filter.RecipientID)
		conditions = append(conditions, fmt.Sprintf("to_user_id = $%d", len(args)))
	}
	if filter.SenderID != "" {
		args = append(args, filter.SenderID)
		conditions = append(conditions, fmt.Sprintf("from_user_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RequestType != "" {
		args = append(args, filter.RequestType)
		conditions = append(conditions, fmt.Sprintf("request_type = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	// Limit < 0 means unbounded, for stats and export sweeps.
	limit := filter.Limit
	if limit == 0 || limit > 200 {
		limit = 50
	}
	if limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))
	}

	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// UpdateCAS writes the request's mutable columns guarded by its version.
// The row's version must still equal request.Version; on success the stored
// and in-memory versions are bumped. A concurrent writer who got there first
// surfaces as sql.ErrNoRows.
func (r *RequestRepository) UpdateCAS(ctx context.Context, request *models.Request) error {
	request.UpdatedAt = time.Now().UTC()
	const query = `UPDATE requests SET
	 to_user_id = :to_user_id, to_user_name = :to_user_name, to_user_role = :to_user_role,
	 status = :status, priority = :priority,
	 auto_forwarded = :auto_forwarded, escalation_level = :escalation_level,
	 approved_at = :approved_at, approved_by = :approved_by, approved_by_name = :approved_by_name,
	 version = version + 1, updated_at = :updated_at
	 WHERE id = :id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, request)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	request.Version++
	return nil
}

// AddComment appends a comment and refreshes the request's updated_at.
func (r *RequestRepository) AddComment(ctx context.Context, comment *models.RequestComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const insert = `INSERT INTO request_comments (id, request_id, author_id, author_name, author_role, body, is_internal, created_at)
	VALUES (:id, :request_id, :author_id, :author_name, :author_role, :body, :is_internal, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, insert, comment); err != nil {
		return fmt.Errorf("add request comment: %w", err)
	}
	const touch = `UPDATE requests SET updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, touch, comment.RequestID, comment.CreatedAt); err != nil {
		return fmt.Errorf("touch request: %w", err)
	}
	return nil
}

// ListComments returns a request's comment thread in insertion order.
func (r *RequestRepository) ListComments(ctx context.Context, requestID string) ([]models.RequestComment, error) {
	const query = `SELECT id, request_id, author_id, author_name, author_role, body, is_internal, created_at
	FROM request_comments WHERE request_id = $1 ORDER BY created_at ASC, id ASC`
	var comments []models.RequestComment
	if err := r.db.SelectContext(ctx, &comments, query, requestID); err != nil {
		return nil, fmt.Errorf("list request comments: %w", err)
	}
	return comments, nil
}

// ListOpenWithDeadline returns undecided requests that carry a response
// window, oldest first, for the escalation sweep.
func (r *RequestRepository) ListOpenWithDeadline(ctx context.Context) ([]models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests
	WHERE status IN ($1, $2) AND max_response_time IS NOT NULL ORDER BY created_at ASC`
	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query, models.RequestStatusPending, models.RequestStatusForwarded); err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}
	return requests, nil
}

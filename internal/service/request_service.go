package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-erp-api/internal/dto"
	"github.com/noah-isme/campus-erp-api/internal/hierarchy"
	"github.com/noah-isme/campus-erp-api/internal/models"
	appErrors "github.com/noah-isme/campus-erp-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error)
	UpdateCAS(ctx context.Context, request *models.Request) error
	AddComment(ctx context.Context, comment *models.RequestComment) error
	ListComments(ctx context.Context, requestID string) ([]models.RequestComment, error)
	ListOpenWithDeadline(ctx context.Context) ([]models.Request, error)
}

type requestUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindFirstByRole(ctx context.Context, role models.Role) (*models.User, error)
	ListByRoles(ctx context.Context, roles []models.Role) ([]models.User, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// RequestServiceConfig tunes request workflow behaviour.
type RequestServiceConfig struct {
	StatsCacheTTL       time.Duration
	RecipientsCacheTTL  time.Duration
	DefaultResponseTime time.Duration
}

// RequestService owns every request mutation: creation with auto-forward,
// decisions, comments, stats, recipient resolution and the overdue sweep.
type RequestService struct {
	repo    requestStore
	users   requestUserStore
	audit   auditLogger
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
	cfg     RequestServiceConfig
}

// RequestServiceParams groups constructor dependencies.
type RequestServiceParams struct {
	Repo    requestStore
	Users   requestUserStore
	Audit   auditLogger
	Cache   *CacheService
	Metrics *MetricsService
	Logger  *zap.Logger
	Config  RequestServiceConfig
}

// NewRequestService constructs the service with sane defaults. Cache,
// metrics and audit are optional.
func NewRequestService(params RequestServiceParams) *RequestService {
	cfg := params.Config
	if cfg.StatsCacheTTL <= 0 {
		cfg.StatsCacheTTL = time.Minute
	}
	if cfg.RecipientsCacheTTL <= 0 {
		cfg.RecipientsCacheTTL = 10 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		repo:    params.Repo,
		users:   params.Users,
		audit:   params.Audit,
		cache:   params.Cache,
		metrics: params.Metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		cfg:     cfg,
	}
}

// Create validates the draft, persists it pending, then runs auto-forward
// once. The returned record reflects any forward that already happened.
func (s *RequestService) Create(ctx context.Context, req dto.CreateRequestRequest, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Description) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject and description are required")
	}
	if req.ToUserID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "toUserId is required")
	}
	chain, ok := hierarchy.ChainFor(req.RequestType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnknownRequestType, fmt.Sprintf("unknown request type: %s", req.RequestType))
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	switch priority {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported priority")
	}

	recipient, err := s.users.FindByID(ctx, req.ToUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recipient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recipient")
	}
	if !hierarchy.CanSendRequestTo(actor.Role, recipient.Role) {
		return nil, appErrors.Clone(appErrors.ErrRoutingViolation,
			fmt.Sprintf("%s may not send requests to %s", actor.Role, recipient.Role))
	}

	request := &models.Request{
		FromUserID:      actor.UserID,
		FromUserName:    actor.FullName,
		FromUserRole:    actor.Role,
		ToUserID:        recipient.ID,
		ToUserName:      recipient.FullName,
		ToUserRole:      recipient.Role,
		RequestType:     req.RequestType,
		Category:        chain.Category,
		Subject:         strings.TrimSpace(req.Subject),
		Description:     strings.TrimSpace(req.Description),
		Status:          models.RequestStatusPending,
		Priority:        priority,
		Tags:            pq.StringArray(req.Tags),
		MaxResponseTime: req.MaxResponseTime,
	}
	if dept := strings.TrimSpace(req.Department); dept != "" {
		request.Department = &dept
	}
	if request.MaxResponseTime == nil && s.cfg.DefaultResponseTime > 0 {
		hours := int(s.cfg.DefaultResponseTime / time.Hour)
		if hours > 0 {
			request.MaxResponseTime = &hours
		}
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.emitAudit(ctx, actor.UserID, models.AuditActionRequestCreate, request)

	if err := s.autoForward(ctx, request); err != nil {
		return nil, err
	}
	s.invalidateCaches(ctx)
	return request, nil
}

// autoForward passes a request on to the next role in its type's chain when
// the sender/recipient flow pair opts in. Missing flow, chain position, or
// target user all mean the request simply stays where it is.
func (s *RequestService) autoForward(ctx context.Context, request *models.Request) error {
	flow, ok := hierarchy.FlowFor(request.FromUserRole, request.ToUserRole)
	if !ok || !flow.AutoForward {
		return nil
	}
	chain, ok := hierarchy.ChainFor(request.RequestType)
	if !ok || !chain.AutoForward {
		return nil
	}
	next, ok := hierarchy.NextApprover(request.ToUserRole, request.RequestType)
	if !ok {
		return nil
	}
	target, err := s.users.FindFirstByRole(ctx, next)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("no user available for forward target",
				zap.String("request_id", request.ID), zap.String("role", string(next)))
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve forward target")
	}

	request.ToUserID = target.ID
	request.ToUserName = target.FullName
	request.ToUserRole = target.Role
	request.Status = models.RequestStatusForwarded
	request.AutoForwarded = true
	request.EscalationLevel++
	if err := s.repo.UpdateCAS(ctx, request); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "request was modified concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to forward request")
	}

	comment := &models.RequestComment{
		RequestID:  request.ID,
		AuthorID:   "system",
		AuthorName: "Request Router",
		AuthorRole: models.RoleSystem,
		Body:       fmt.Sprintf("Auto-forwarded to %s (%s)", target.FullName, target.Role),
		IsInternal: true,
	}
	if err := s.repo.AddComment(ctx, comment); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record forward note")
	}
	request.Comments = append(request.Comments, *comment)

	s.emitAudit(ctx, "system", models.AuditActionRequestForward, request)
	if s.metrics != nil {
		s.metrics.RecordForward()
	}
	return nil
}

// Incoming lists requests addressed to the user. Requests whose sender role
// the recipient's hierarchy entry does not accept are silently excluded.
func (s *RequestService) Incoming(ctx context.Context, userID string, role models.Role, query dto.RequestQuery) ([]models.Request, error) {
	filter := models.RequestFilter{
		RecipientID: userID,
		Status:      query.Status,
		RequestType: query.RequestType,
		Category:    query.Category,
		Limit:       query.Limit,
		Offset:      query.Offset,
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list incoming requests")
	}
	visible := make([]models.Request, 0, len(requests))
	for _, request := range requests {
		if hierarchy.CanReceiveFrom(role, request.FromUserRole) {
			visible = append(visible, request)
		}
	}
	return visible, nil
}

// Outgoing lists the user's own requests; senders always see what they sent.
func (s *RequestService) Outgoing(ctx context.Context, userID string, query dto.RequestQuery) ([]models.Request, error) {
	filter := models.RequestFilter{
		SenderID:    userID,
		Status:      query.Status,
		RequestType: query.RequestType,
		Category:    query.Category,
		Limit:       query.Limit,
		Offset:      query.Offset,
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list outgoing requests")
	}
	return requests, nil
}

// All returns the full request log for audit-visible roles.
func (s *RequestService) All(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery) ([]models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !hierarchy.HasAuditVisibility(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role lacks audit visibility")
	}
	requests, err := s.repo.List(ctx, models.RequestFilter{
		Status:      query.Status,
		RequestType: query.RequestType,
		Category:    query.Category,
		Limit:       query.Limit,
		Offset:      query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// Get returns one request with its comment thread. Only participants and
// audit-visible roles may read it.
func (s *RequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.FromUserID != actor.UserID && request.ToUserID != actor.UserID && !hierarchy.HasAuditVisibility(actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	comments, err := s.repo.ListComments(ctx, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comments")
	}
	request.Comments = comments
	return request, nil
}

// Decide applies an approve/reject verdict. The approver's role must be able
// to approve the original sender's role; a violation mutates nothing. An
// approval re-runs auto-forward so the request can continue up its chain.
func (s *RequestService) Decide(ctx context.Context, id string, req dto.DecisionRequest, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if req.Action != models.ActionApprove && req.Action != models.ActionReject {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be approve or reject")
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.RequestStatusPending && request.Status != models.RequestStatusForwarded {
		return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, fmt.Sprintf("request is already %s", request.Status))
	}
	if !hierarchy.CanApprove(actor.Role, request.FromUserRole) {
		return nil, appErrors.Clone(appErrors.ErrForbidden,
			fmt.Sprintf("%s may not approve requests from %s", actor.Role, request.FromUserRole))
	}

	now := s.now()
	if req.Action == models.ActionApprove {
		request.Status = models.RequestStatusApproved
	} else {
		request.Status = models.RequestStatusRejected
	}
	request.ApprovedAt = &now
	request.ApprovedBy = &actor.UserID
	approverName := actor.FullName
	request.ApprovedByName = &approverName

	if err := s.repo.UpdateCAS(ctx, request); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}

	if body := strings.TrimSpace(req.Comment); body != "" {
		comment := &models.RequestComment{
			RequestID:  request.ID,
			AuthorID:   actor.UserID,
			AuthorName: actor.FullName,
			AuthorRole: actor.Role,
			Body:       body,
		}
		if err := s.repo.AddComment(ctx, comment); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision comment")
		}
		request.Comments = append(request.Comments, *comment)
	}

	s.emitAudit(ctx, actor.UserID, models.AuditActionRequestDecision, request)

	if req.Action == models.ActionApprove {
		if err := s.autoForward(ctx, request); err != nil {
			return nil, err
		}
	}
	s.invalidateCaches(ctx)
	return request, nil
}

// AddComment appends a user-visible comment to the thread.
func (s *RequestService) AddComment(ctx context.Context, id string, req dto.AddCommentRequest, actor *models.JWTClaims) (*models.RequestComment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "comment body is required")
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.FromUserID != actor.UserID && request.ToUserID != actor.UserID && !hierarchy.HasAuditVisibility(actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	comment := &models.RequestComment{
		RequestID:  request.ID,
		AuthorID:   actor.UserID,
		AuthorName: actor.FullName,
		AuthorRole: actor.Role,
		Body:       strings.TrimSpace(req.Body),
	}
	if err := s.repo.AddComment(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add comment")
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionRequestComment, request)
	return comment, nil
}

// Stats aggregates request counts for the caller's visibility scope,
// deduplicated by request id.
func (s *RequestService) Stats(ctx context.Context, actor *models.JWTClaims) (*models.RequestStats, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	cacheKey := fmt.Sprintf("requests:stats:%s", actor.UserID)
	if s.cache != nil {
		var cached models.RequestStats
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	var scope []models.Request
	if hierarchy.HasAuditVisibility(actor.Role) {
		all, err := s.repo.List(ctx, models.RequestFilter{Limit: -1})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
		}
		scope = all
	} else {
		incoming, err := s.repo.List(ctx, models.RequestFilter{RecipientID: actor.UserID, Limit: -1})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list incoming requests")
		}
		outgoing, err := s.repo.List(ctx, models.RequestFilter{SenderID: actor.UserID, Limit: -1})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list outgoing requests")
		}
		scope = append(incoming, outgoing...)
	}

	now := s.now()
	seen := make(map[string]struct{}, len(scope))
	stats := &models.RequestStats{}
	for i := range scope {
		request := &scope[i]
		if _, dup := seen[request.ID]; dup {
			continue
		}
		seen[request.ID] = struct{}{}
		stats.Total++
		switch request.Status {
		case models.RequestStatusPending:
			stats.Pending++
		case models.RequestStatusApproved:
			stats.Approved++
		case models.RequestStatusRejected:
			stats.Rejected++
		case models.RequestStatusForwarded:
			stats.Forwarded++
		case models.RequestStatusCompleted:
			stats.Completed++
		}
		if request.Overdue(now) {
			stats.Overdue++
		}
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey, stats, s.cfg.StatsCacheTTL)
	}
	return stats, nil
}

// Recipients resolves the users the caller's role may address, expanding
// wildcard groups against the role directory.
func (s *RequestService) Recipients(ctx context.Context, role models.Role) ([]models.Recipient, error) {
	cacheKey := fmt.Sprintf("requests:recipients:%s", role)
	if s.cache != nil {
		var cached []models.Recipient
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	targets := hierarchy.SendTargets(role)
	if len(targets) == 0 {
		return nil, nil
	}
	users, err := s.users.ListByRoles(ctx, targets)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recipients")
	}
	recipients := make([]models.Recipient, 0, len(users))
	for _, user := range users {
		recipients = append(recipients, models.Recipient{
			UID:        user.ID,
			Name:       user.FullName,
			Role:       user.Role,
			Department: user.Department,
		})
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey, recipients, s.cfg.RecipientsCacheTTL)
	}
	return recipients, nil
}

// RoleProfile describes a role's routing capabilities for pickers.
func (s *RequestService) RoleProfile(role models.Role) dto.RoleProfile {
	return dto.RoleProfile{
		Role:         role,
		Level:        hierarchy.RoleLevel(role),
		Description:  hierarchy.RoleDescription(role),
		RequestTypes: hierarchy.RequestTypesForRole(role),
		Categories:   hierarchy.CategoriesForRole(role),
	}
}

// EscalateOverdue sweeps undecided requests past their response window and
// moves each to the next role in its chain, mirroring auto-forward. Returns
// the number of requests escalated.
func (s *RequestService) EscalateOverdue(ctx context.Context) (int, error) {
	open, err := s.repo.ListOpenWithDeadline(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list open requests")
	}

	now := s.now()
	escalated := 0
	for i := range open {
		request := &open[i]
		if !request.Overdue(now) {
			continue
		}
		next, ok := hierarchy.NextApprover(request.ToUserRole, request.RequestType)
		if !ok {
			continue
		}
		target, err := s.users.FindFirstByRole(ctx, next)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return escalated, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve escalation target")
		}

		request.ToUserID = target.ID
		request.ToUserName = target.FullName
		request.ToUserRole = target.Role
		request.Status = models.RequestStatusForwarded
		request.EscalationLevel++
		if err := s.repo.UpdateCAS(ctx, request); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// someone decided it mid-sweep; leave it be
				continue
			}
			return escalated, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to escalate request")
		}

		comment := &models.RequestComment{
			RequestID:  request.ID,
			AuthorID:   "system",
			AuthorName: "Request Router",
			AuthorRole: models.RoleSystem,
			Body:       fmt.Sprintf("Escalated to %s (%s) after response window expired", target.FullName, target.Role),
			IsInternal: true,
		}
		if err := s.repo.AddComment(ctx, comment); err != nil {
			return escalated, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record escalation note")
		}
		s.emitAudit(ctx, "system", models.AuditActionRequestEscalate, request)
		escalated++
	}

	if escalated > 0 {
		s.invalidateCaches(ctx)
	}
	if s.metrics != nil {
		s.metrics.RecordEscalationSweep(escalated)
	}
	return escalated, nil
}

func (s *RequestService) loadRequest(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *RequestService) invalidateCaches(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "requests:stats:*"); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
}

func (s *RequestService) emitAudit(ctx context.Context, actorID, action string, request *models.Request) {
	if s.audit == nil || request == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"status":          request.Status,
		"toUserRole":      request.ToUserRole,
		"escalationLevel": request.EscalationLevel,
	})
	log := &models.AuditLog{
		Action:     action,
		Resource:   "request",
		ResourceID: &request.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "request-service",
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

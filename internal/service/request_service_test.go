package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-erp-api/internal/dto"
	"github.com/noah-isme/campus-erp-api/internal/models"
	appErrors "github.com/noah-isme/campus-erp-api/pkg/errors"
)

type requestStoreStub struct {
	requests    map[string]*models.Request
	comments    map[string][]models.RequestComment
	nextID      int
	createCalls int
	updateCalls int
	casConflict bool
}

func newRequestStoreStub() *requestStoreStub {
	return &requestStoreStub{
		requests: make(map[string]*models.Request),
		comments: make(map[string][]models.RequestComment),
	}
}

func (s *requestStoreStub) Create(ctx context.Context, request *models.Request) error {
	s.createCalls++
	if request.ID == "" {
		s.nextID++
		request.ID = fmt.Sprintf("req-%d", s.nextID)
	}
	if request.Version == 0 {
		request.Version = 1
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	copy := *request
	s.requests[request.ID] = &copy
	return nil
}

func (s *requestStoreStub) GetByID(ctx context.Context, id string) (*models.Request, error) {
	if request, ok := s.requests[id]; ok {
		copy := *request
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *requestStoreStub) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	var result []models.Request
	for _, request := range s.requests {
		if filter.RecipientID != "" && request.ToUserID != filter.RecipientID {
			continue
		}
		if filter.SenderID != "" && request.FromUserID != filter.SenderID {
			continue
		}
		result = append(result, *request)
	}
	return result, nil
}

func (s *requestStoreStub) UpdateCAS(ctx context.Context, request *models.Request) error {
	s.updateCalls++
	if s.casConflict {
		return sql.ErrNoRows
	}
	stored, ok := s.requests[request.ID]
	if !ok || stored.Version != request.Version {
		return sql.ErrNoRows
	}
	request.Version++
	copy := *request
	s.requests[request.ID] = &copy
	return nil
}

func (s *requestStoreStub) AddComment(ctx context.Context, comment *models.RequestComment) error {
	if comment.ID == "" {
		s.nextID++
		comment.ID = fmt.Sprintf("comment-%d", s.nextID)
	}
	comment.CreatedAt = time.Now().UTC()
	s.comments[comment.RequestID] = append(s.comments[comment.RequestID], *comment)
	return nil
}

func (s *requestStoreStub) ListComments(ctx context.Context, requestID string) ([]models.RequestComment, error) {
	return s.comments[requestID], nil
}

func (s *requestStoreStub) ListOpenWithDeadline(ctx context.Context) ([]models.Request, error) {
	var result []models.Request
	for _, request := range s.requests {
		open := request.Status == models.RequestStatusPending || request.Status == models.RequestStatusForwarded
		if open && request.MaxResponseTime != nil {
			result = append(result, *request)
		}
	}
	return result, nil
}

type userStoreStub struct {
	byID   map[string]*models.User
	byRole map[models.Role]*models.User
}

func newUserStoreStub(users ...*models.User) *userStoreStub {
	stub := &userStoreStub{byID: make(map[string]*models.User), byRole: make(map[models.Role]*models.User)}
	for _, user := range users {
		stub.byID[user.ID] = user
		if _, taken := stub.byRole[user.Role]; !taken {
			stub.byRole[user.Role] = user
		}
	}
	return stub
}

func (s *userStoreStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.byID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) FindFirstByRole(ctx context.Context, role models.Role) (*models.User, error) {
	if user, ok := s.byRole[role]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) ListByRoles(ctx context.Context, roles []models.Role) ([]models.User, error) {
	var result []models.User
	for _, role := range roles {
		if user, ok := s.byRole[role]; ok {
			result = append(result, *user)
		}
	}
	return result, nil
}

type requestAuditStub struct {
	logs []*models.AuditLog
}

func (a *requestAuditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func testUser(id, name string, role models.Role) *models.User {
	return &models.User{ID: id, FullName: name, Role: role, Active: true}
}

func claimsFor(user *models.User) *models.JWTClaims {
	return &models.JWTClaims{UserID: user.ID, Role: user.Role, FullName: user.FullName}
}

func newTestRequestService(repo *requestStoreStub, users *userStoreStub, audit *requestAuditStub) *RequestService {
	return NewRequestService(RequestServiceParams{Repo: repo, Users: users, Audit: audit})
}

func TestCreateAutoForwardsAlongChain(t *testing.T) {
	clerk := testUser("clerk-1", "Asha Clerk", models.RoleClerk)
	registrar := testUser("reg-1", "Ravi Registrar", models.RoleRegistrar)
	principal := testUser("prin-1", "Meera Principal", models.RolePrincipal)
	repo := newRequestStoreStub()
	audit := &requestAuditStub{}
	svc := newTestRequestService(repo, newUserStoreStub(clerk, registrar, principal), audit)

	request, err := svc.Create(context.Background(), dto.CreateRequestRequest{
		ToUserID:    registrar.ID,
		RequestType: "certificate",
		Subject:     "Bonafide certificate",
		Description: "Needed for bank loan",
	}, claimsFor(clerk))
	require.NoError(t, err)

	require.Equal(t, models.RequestStatusForwarded, request.Status)
	require.Equal(t, principal.ID, request.ToUserID)
	require.Equal(t, models.RolePrincipal, request.ToUserRole)
	require.True(t, request.AutoForwarded)
	require.Equal(t, 1, request.EscalationLevel)
	require.EqualValues(t, 2, request.Version)

	comments := repo.comments[request.ID]
	require.Len(t, comments, 1)
	require.True(t, comments[0].IsInternal)
	require.Contains(t, comments[0].Body, "Auto-forwarded to Meera Principal")
	require.Equal(t, models.RoleSystem, comments[0].AuthorRole)
	require.Len(t, audit.logs, 2)
}

func TestCreateStaysPendingWithoutChainAutoForward(t *testing.T) {
	clerk := testUser("clerk-1", "Asha Clerk", models.RoleClerk)
	registrar := testUser("reg-1", "Ravi Registrar", models.RoleRegistrar)
	repo := newRequestStoreStub()
	svc := newTestRequestService(repo, newUserStoreStub(clerk, registrar), &requestAuditStub{})

	request, err := svc.Create(context.Background(), dto.CreateRequestRequest{
		ToUserID:    registrar.ID,
		RequestType: "leave",
		Subject:     "Casual leave",
		Description: "Two days next week",
	}, claimsFor(clerk))
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, request.Status)
	require.Equal(t, registrar.ID, request.ToUserID)
	require.Zero(t, request.EscalationLevel)
	require.Zero(t, repo.updateCalls)
}

func TestCreateForwardSkippedWhenTargetRoleVacant(t *testing.T) {
	clerk := testUser("clerk-1", "Asha Clerk", models.RoleClerk)
	registrar := testUser("reg-1", "Ravi Registrar", models.RoleRegistrar)
	repo := newRequestStoreStub()
	// no principal on staff
	svc := newTestRequestService(repo, newUserStoreStub(clerk, registrar), &requestAuditStub{})

	request, err := svc.Create(context.Background(), dto.CreateRequestRequest{
		ToUserID:    registrar.ID,
		RequestType: "certificate",
		Subject:     "Bonafide certificate",
		Description: "Needed for visa",
	}, claimsFor(clerk))
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, request.Status)
	require.Equal(t, registrar.ID, request.ToUserID)
	require.False(t, request.AutoForwarded)
}

func TestCreateRejectsUnknownRequestType(t *testing.T) {
	clerk := testUser("clerk-1", "Asha Clerk", models.RoleClerk)
	registrar := testUser("reg-1", "Ravi Registrar", models.RoleRegistrar)
	repo := newRequestStoreStub()
	svc := newTestRequestService(repo, newUserStoreStub(clerk, registrar), &requestAuditStub{})

	_, err := svc.Create(context.Background(), dto.CreateRequestRequest{
		ToUserID:    registrar.ID,
		RequestType: "teleportation",
		Subject:     "Beam me up",
		Description: "Urgently",
	}, claimsFor(clerk))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrUnknownRequestType.Code, appErr.Code)
	require.Zero(t, repo.createCalls)
}

func TestCreateRejectsRoutingViolation(t *testing.T) {
	student := testUser("stu-1", "Kiran Student", models.RoleStudent)
	principal := testUser("prin-1", "Meera Principal", models.RolePrincipal)
	repo := newRequestStoreStub()
	svc := newTestRequestService(repo, newUserStoreStub(student, principal), &requestAuditStub{})

	_, err := svc.Create(context.Background(), dto.CreateRequestRequest{
		ToUserID:    principal.ID,
		RequestType: "general",
		Subject:     "Direct appeal",
		Description: "Skipping the chain",
	}, claimsFor(student))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrRoutingViolation.Code, appErr.Code)
	require.Zero(t, repo.createCalls)
}

func TestDecideApproveContinuesChain(t *testing.T) {
	registrar := testUser("reg-1", "Ravi Registrar", models.RoleRegistrar)
	principal := testUser("prin-1", "Meera Principal", models.RolePrincipal)
	repo := newRequestStoreStub()
	repo.requests["req-1"] = &models.Request{
		ID:           "req-1",
		FromUserID:   "clerk-1",
		FromUserName: "Asha Clerk",
		FromUserRole: models.RoleClerk,
		ToUserID:     registrar.ID,
		ToUserName:   registrar.FullName,
		ToUserRole:   models.RoleRegistrar,
		RequestType:  "certificate",
		Status:       models.RequestStatusPending,
		Version:      1,
	}
	svc := newTestRequestService(repo, newUserStoreStub(registrar, principal), &requestAuditStub{})

	request, err := svc.Decide(context.Background(), "req-1", dto.DecisionRequest{
		Action:  models.ActionApprove,
		Comment: "Verified records",
	}, claimsFor(registrar))
	require.NoError(t, err)

	// approval at a mid-chain step hands the request to the next role
	require.Equal(t, models.RequestStatusForwarded, request.Status)
	require.Equal(t, principal.ID, request.ToUserID)
	require.NotNil(t, request.ApprovedAt)
	require.Equal(t, registrar.ID, *request.ApprovedBy)
	require.Len(t, repo.comments["req-1"], 2)
}

func TestDecideApproveAtChainEnd(t *testing.T) {
	principal := testUser("prin-1", "Meera Principal", models.RolePrincipal)
	repo := newRequestStoreStub()
	repo.requests["req-1"] = &models.Request{
		ID:           "req-1",
		FromUserID:   "clerk-1",
		FromUserRole: models.RoleClerk,
		ToUserID:     principal.ID,
		ToUserRole:   models.RolePrincipal,
		RequestType:  "certificate",
		Status:       models.RequestStatusForwarded,
		Version:      3,
	}
	svc := newTestRequestService(repo, newUserStoreStub(principal), &requestAuditStub{})

	request, err := svc.Decide(context.Background(), "req-1", dto.DecisionRequest{
		Action: models.ActionApprove,
	}, claimsFor(principal))
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, request.Status)
	require.EqualValues(t, 4, request.Version)
}

func TestDecideForbiddenMutatesNothing(t *testing.T) {
	clerk := testUser("clerk-2", "Binod Clerk", models.RoleClerk)
	repo := newRequestStoreStub()
	repo.requests["req-1"] = &models.Request{
		ID:           "req-1",
		FromUserID:   "teacher-1",
		FromUserRole: models.RoleTeacher,
		ToUserID:     clerk.ID,
		ToUserRole:   models.RoleClerk,
		RequestType:  "general",
		Status:       models.RequestStatusPending,
		Version:      1,
	}
	svc := newTestRequestService(repo, newUserStoreStub(clerk), &requestAuditStub{})

	_, err := svc.Decide(context.Background(), "req-1", dto.DecisionRequest{
		Action: models.ActionApprove,
	}, claimsFor(clerk))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	require.Zero(t, repo.updateCalls)
	require.Equal(t, models.RequestStatusPending, repo.requests["req-1"].Status)
}

func TestDecideAlreadyDecided(t *testing.T) {
	registrar := testUser("reg-1", "Ravi Registrar", models.RoleRegistrar)
	repo := newRequestStoreStub()
	repo.requests["req-1"] = &models.Request{
		ID:           "req-1",
		FromUserRole: models.RoleClerk,
		ToUserID:     registrar.ID,
		ToUserRole:   models.RoleRegistrar,
		RequestType:  "certificate",
		Status:       models.RequestStatusApproved,
		Version:      2,
	}
	svc := newTestRequestService(repo, newUserStoreStub(registrar), &requestAuditStub{})

	_, err := svc.Decide(context.Background(), "req-1", dto.DecisionRequest{
		Action: models.ActionReject,
	}, claimsFor(registrar))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrAlreadyDecided.Code, appErr.Code)
}

func TestDecideConcurrentConflict(t *testing.T) {
	registrar := testUser("reg-1", "Ravi Registrar", models.RoleRegistrar)
	repo := newRequestStoreStub()
	repo.requests["req-1"] = &models.Request{
		ID:           "req-1",
		FromUserRole: models.RoleClerk,
		ToUserID:     registrar.ID,
		ToUserRole:   models.RoleRegistrar,
		RequestType:  "leave",
		Status:       models.RequestStatusPending,
		Version:      1,
	}
	repo.casConflict = true
	svc := newTestRequestService(repo, newUserStoreStub(registrar), &requestAuditStub{})

	_, err := svc.Decide(context.Background(), "req-1", dto.DecisionRequest{
		Action: models.ActionApprove,
	}, claimsFor(registrar))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestIncomingFiltersUnrecognisedSenders(t *testing.T) {
	hod := testUser("hod-1", "Divya HOD", models.RoleHOD)
	repo := newRequestStoreStub()
	repo.requests["req-1"] = &models.Request{
		ID: "req-1", FromUserID: "teacher-1", FromUserRole: models.RoleTeacher,
		ToUserID: hod.ID, ToUserRole: models.RoleHOD,
		RequestType: "academic", Status: models.RequestStatusPending, Version: 1,
	}
	repo.requests["req-2"] = &models.Request{
		ID: "req-2", FromUserID: "plumber-1", FromUserRole: models.RolePlumber,
		ToUserID: hod.ID, ToUserRole: models.RoleHOD,
		RequestType: "plumbing", Status: models.RequestStatusPending, Version: 1,
	}
	svc := newTestRequestService(repo, newUserStoreStub(hod), &requestAuditStub{})

	incoming, err := svc.Incoming(context.Background(), hod.ID, hod.Role, dto.RequestQuery{})
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	require.Equal(t, "req-1", incoming[0].ID)
}

func TestStatsDeduplicatesAndCountsOverdue(t *testing.T) {
	hod := testUser("hod-1", "Divya HOD", models.RoleHOD)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	window := 2
	repo := newRequestStoreStub()
	// sent by the HOD and later escalated back to them: appears in both the
	// incoming and outgoing scans and must count once
	repo.requests["req-1"] = &models.Request{
		ID: "req-1", FromUserID: hod.ID, FromUserRole: models.RoleHOD,
		ToUserID: hod.ID, ToUserRole: models.RoleHOD,
		Status: models.RequestStatusPending, Version: 1,
		MaxResponseTime: &window, CreatedAt: now.Add(-5 * time.Hour),
	}
	repo.requests["req-2"] = &models.Request{
		ID: "req-2", FromUserID: "teacher-1", FromUserRole: models.RoleTeacher,
		ToUserID: hod.ID, ToUserRole: models.RoleHOD,
		Status: models.RequestStatusApproved, Version: 2,
		CreatedAt: now.Add(-1 * time.Hour),
	}
	svc := newTestRequestService(repo, newUserStoreStub(hod), &requestAuditStub{})
	svc.now = func() time.Time { return now }

	stats, err := svc.Stats(context.Background(), claimsFor(hod))
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Pending)
	require.Equal(t, 1, stats.Approved)
	require.Equal(t, 1, stats.Overdue)
}

func TestStatsCountsDecidedOverdue(t *testing.T) {
	clerk := testUser("clerk-1", "Asha Clerk", models.RoleClerk)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	window := 1
	repo := newRequestStoreStub()
	// decided late: no longer open but still counted overdue
	repo.requests["req-1"] = &models.Request{
		ID: "req-1", FromUserID: clerk.ID, FromUserRole: models.RoleClerk,
		ToUserID: "reg-1", ToUserRole: models.RoleRegistrar,
		Status: models.RequestStatusApproved, Version: 2,
		MaxResponseTime: &window, CreatedAt: now.Add(-3 * time.Hour),
	}
	svc := newTestRequestService(repo, newUserStoreStub(clerk), &requestAuditStub{})
	svc.now = func() time.Time { return now }

	stats, err := svc.Stats(context.Background(), claimsFor(clerk))
	require.NoError(t, err)
	require.Equal(t, 1, stats.Overdue)
	require.Equal(t, 1, stats.Approved)
}

func TestAllRequiresAuditVisibility(t *testing.T) {
	teacher := testUser("teacher-1", "Sunil Teacher", models.RoleTeacher)
	svc := newTestRequestService(newRequestStoreStub(), newUserStoreStub(teacher), &requestAuditStub{})

	_, err := svc.All(context.Background(), claimsFor(teacher), dto.RequestQuery{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestRecipientsResolvesSendTargets(t *testing.T) {
	clerk := testUser("clerk-1", "Asha Clerk", models.RoleClerk)
	registrar := testUser("reg-1", "Ravi Registrar", models.RoleRegistrar)
	admin := testUser("adm-1", "Vikram Admin", models.RoleAdmin)
	svc := newTestRequestService(newRequestStoreStub(), newUserStoreStub(clerk, registrar, admin), &requestAuditStub{})

	recipients, err := svc.Recipients(context.Background(), models.RoleClerk)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	roles := []models.Role{recipients[0].Role, recipients[1].Role}
	require.Contains(t, roles, models.RoleRegistrar)
	require.Contains(t, roles, models.RoleAdmin)
}

func TestEscalateOverdueReassignsUpChain(t *testing.T) {
	registrar := testUser("reg-1", "Ravi Registrar", models.RoleRegistrar)
	principal := testUser("prin-1", "Meera Principal", models.RolePrincipal)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	window := 2
	repo := newRequestStoreStub()
	repo.requests["req-1"] = &models.Request{
		ID: "req-1", FromUserID: "clerk-1", FromUserRole: models.RoleClerk,
		ToUserID: registrar.ID, ToUserName: registrar.FullName, ToUserRole: models.RoleRegistrar,
		RequestType: "certificate", Status: models.RequestStatusPending, Version: 1,
		MaxResponseTime: &window, CreatedAt: now.Add(-6 * time.Hour),
	}
	repo.requests["req-2"] = &models.Request{
		ID: "req-2", FromUserID: "clerk-1", FromUserRole: models.RoleClerk,
		ToUserID: registrar.ID, ToUserRole: models.RoleRegistrar,
		RequestType: "certificate", Status: models.RequestStatusPending, Version: 1,
		MaxResponseTime: &window, CreatedAt: now.Add(-1 * time.Hour),
	}
	audit := &requestAuditStub{}
	svc := newTestRequestService(repo, newUserStoreStub(registrar, principal), audit)
	svc.now = func() time.Time { return now }

	escalated, err := svc.EscalateOverdue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, escalated)

	moved := repo.requests["req-1"]
	require.Equal(t, models.RequestStatusForwarded, moved.Status)
	require.Equal(t, principal.ID, moved.ToUserID)
	require.Equal(t, 1, moved.EscalationLevel)
	require.Len(t, repo.comments["req-1"], 1)
	require.Contains(t, repo.comments["req-1"][0].Body, "Escalated to Meera Principal")

	untouched := repo.requests["req-2"]
	require.Equal(t, models.RequestStatusPending, untouched.Status)
	require.Empty(t, repo.comments["req-2"])
	require.Len(t, audit.logs, 1)
}

func TestAddCommentRequiresParticipation(t *testing.T) {
	outsider := testUser("teacher-9", "Nisha Teacher", models.RoleTeacher)
	repo := newRequestStoreStub()
	repo.requests["req-1"] = &models.Request{
		ID: "req-1", FromUserID: "clerk-1", FromUserRole: models.RoleClerk,
		ToUserID: "reg-1", ToUserRole: models.RoleRegistrar,
		Status: models.RequestStatusPending, Version: 1,
	}
	svc := newTestRequestService(repo, newUserStoreStub(outsider), &requestAuditStub{})

	_, err := svc.AddComment(context.Background(), "req-1", dto.AddCommentRequest{Body: "me too"}, claimsFor(outsider))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	require.Empty(t, repo.comments["req-1"])
}

func TestGetLoadsCommentThread(t *testing.T) {
	registrar := testUser("reg-1", "Ravi Registrar", models.RoleRegistrar)
	repo := newRequestStoreStub()
	repo.requests["req-1"] = &models.Request{
		ID: "req-1", FromUserID: "clerk-1", FromUserRole: models.RoleClerk,
		ToUserID: registrar.ID, ToUserRole: models.RoleRegistrar,
		Status: models.RequestStatusPending, Version: 1,
	}
	repo.comments["req-1"] = []models.RequestComment{
		{ID: "c-1", RequestID: "req-1", Body: "On it"},
	}
	svc := newTestRequestService(repo, newUserStoreStub(registrar), &requestAuditStub{})

	request, err := svc.Get(context.Background(), "req-1", claimsFor(registrar))
	require.NoError(t, err)
	require.Len(t, request.Comments, 1)
	require.Equal(t, "On it", request.Comments[0].Body)
}

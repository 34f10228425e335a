package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-erp-api/internal/dto"
	"github.com/noah-isme/campus-erp-api/internal/hierarchy"
	"github.com/noah-isme/campus-erp-api/internal/middleware"
	"github.com/noah-isme/campus-erp-api/internal/models"
	"github.com/noah-isme/campus-erp-api/internal/service"
	appErrors "github.com/noah-isme/campus-erp-api/pkg/errors"
)

type stubRequestService struct {
	created      *models.Request
	createErr    error
	createdWith  dto.CreateRequestRequest
	incoming     []models.Request
	incomingWith dto.RequestQuery
	decided      *models.Request
	decideErr    error
	stats        *models.RequestStats
}

func (s *stubRequestService) Create(ctx context.Context, req dto.CreateRequestRequest, actor *models.JWTClaims) (*models.Request, error) {
	s.createdWith = req
	return s.created, s.createErr
}

func (s *stubRequestService) Incoming(ctx context.Context, userID string, role models.Role, query dto.RequestQuery) ([]models.Request, error) {
	s.incomingWith = query
	return s.incoming, nil
}

func (s *stubRequestService) Outgoing(ctx context.Context, userID string, query dto.RequestQuery) ([]models.Request, error) {
	return nil, nil
}

func (s *stubRequestService) All(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery) ([]models.Request, error) {
	return nil, nil
}

func (s *stubRequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error) {
	return nil, appErrors.ErrNotFound
}

func (s *stubRequestService) Decide(ctx context.Context, id string, req dto.DecisionRequest, actor *models.JWTClaims) (*models.Request, error) {
	return s.decided, s.decideErr
}

func (s *stubRequestService) AddComment(ctx context.Context, id string, req dto.AddCommentRequest, actor *models.JWTClaims) (*models.RequestComment, error) {
	return &models.RequestComment{ID: "c-1", RequestID: id, Body: req.Body}, nil
}

func (s *stubRequestService) Stats(ctx context.Context, actor *models.JWTClaims) (*models.RequestStats, error) {
	return s.stats, nil
}

func (s *stubRequestService) Recipients(ctx context.Context, role models.Role) ([]models.Recipient, error) {
	return []models.Recipient{{UID: "u1", Name: "Ravi Registrar", Role: models.RoleRegistrar}}, nil
}

func (s *stubRequestService) RoleProfile(role models.Role) dto.RoleProfile {
	return dto.RoleProfile{Role: role, Level: hierarchy.RoleLevel(role)}
}

func testContext(t *testing.T, method, target string, body interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, recorder
}

func TestRequestHandlerCreate(t *testing.T) {
	svc := &stubRequestService{created: &models.Request{ID: "req-1", Status: models.RequestStatusForwarded}}
	h := NewRequestHandler(svc, nil)

	claims := &models.JWTClaims{UserID: "clerk-1", Role: models.RoleClerk}
	c, recorder := testContext(t, http.MethodPost, "/requests", dto.CreateRequestRequest{
		ToUserID:    "reg-1",
		RequestType: "certificate",
		Subject:     "Bonafide certificate",
		Description: "Needed for bank loan",
	}, claims)

	h.Create(c)
	require.Equal(t, http.StatusCreated, recorder.Code)
	require.Equal(t, "certificate", svc.createdWith.RequestType)
	require.Contains(t, recorder.Body.String(), "req-1")
}

func TestRequestHandlerCreateUnauthorized(t *testing.T) {
	h := NewRequestHandler(&stubRequestService{}, nil)
	c, recorder := testContext(t, http.MethodPost, "/requests", dto.CreateRequestRequest{}, nil)

	h.Create(c)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRequestHandlerCreateServiceError(t *testing.T) {
	svc := &stubRequestService{createErr: appErrors.ErrRoutingViolation}
	h := NewRequestHandler(svc, nil)
	claims := &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}
	c, recorder := testContext(t, http.MethodPost, "/requests", dto.CreateRequestRequest{
		ToUserID: "prin-1", RequestType: "general", Subject: "x", Description: "y",
	}, claims)

	h.Create(c)
	require.Equal(t, http.StatusForbidden, recorder.Code)
	require.Contains(t, recorder.Body.String(), "ROUTING_VIOLATION")
}

func TestRequestHandlerIncomingParsesQuery(t *testing.T) {
	svc := &stubRequestService{incoming: []models.Request{{ID: "req-1"}}}
	h := NewRequestHandler(svc, nil)
	claims := &models.JWTClaims{UserID: "hod-1", Role: models.RoleHOD}
	c, recorder := testContext(t, http.MethodGet, "/requests/incoming?status=pending,forwarded&type=academic&limit=10", nil, claims)

	h.Incoming(c)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, []models.RequestStatus{models.RequestStatusPending, models.RequestStatusForwarded}, svc.incomingWith.Status)
	require.Equal(t, "academic", svc.incomingWith.RequestType)
	require.Equal(t, 10, svc.incomingWith.Limit)
}

func TestRequestHandlerDecideConflict(t *testing.T) {
	svc := &stubRequestService{decideErr: appErrors.ErrAlreadyDecided}
	h := NewRequestHandler(svc, nil)
	claims := &models.JWTClaims{UserID: "reg-1", Role: models.RoleRegistrar}
	c, recorder := testContext(t, http.MethodPost, "/requests/req-1/decision", dto.DecisionRequest{Action: models.ActionApprove}, claims)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	h.Decide(c)
	require.Equal(t, http.StatusConflict, recorder.Code)
}

func TestRequestHandlerStats(t *testing.T) {
	svc := &stubRequestService{stats: &models.RequestStats{Total: 3, Pending: 1, Overdue: 1}}
	h := NewRequestHandler(svc, nil)
	claims := &models.JWTClaims{UserID: "reg-1", Role: models.RoleRegistrar}
	c, recorder := testContext(t, http.MethodGet, "/requests/stats", nil, claims)

	h.Stats(c)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), `"total":3`)
}

func TestRequestHandlerTypes(t *testing.T) {
	h := NewRequestHandler(&stubRequestService{}, nil)
	c, recorder := testContext(t, http.MethodGet, "/requests/types", nil, nil)

	h.Types(c)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "certificate")
}

type stubExportService struct {
	result *service.ExportResult
	err    error
}

func (s *stubExportService) Export(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery, format service.ExportFormat) (*service.ExportResult, error) {
	return s.result, s.err
}

func TestRequestHandlerExport(t *testing.T) {
	exports := &stubExportService{result: &service.ExportResult{
		Filename:    "requests_20250610_120000.csv",
		ContentType: "text/csv",
		Payload:     []byte("ID,Type\n"),
	}}
	h := NewRequestHandler(&stubRequestService{}, exports)
	claims := &models.JWTClaims{UserID: "reg-1", Role: models.RoleRegistrar}
	c, recorder := testContext(t, http.MethodGet, "/requests/export?format=csv", nil, claims)

	h.Export(c)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "text/csv", recorder.Header().Get("Content-Type"))
	require.Contains(t, recorder.Header().Get("Content-Disposition"), "attachment")
}

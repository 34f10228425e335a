package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-erp-api/internal/dto"
	"github.com/noah-isme/campus-erp-api/internal/models"
	appErrors "github.com/noah-isme/campus-erp-api/pkg/errors"
)

type exportListerStub struct {
	requests []models.Request
	filter   models.RequestFilter
}

func (s *exportListerStub) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	s.filter = filter
	return s.requests, nil
}

func exportSample() models.Request {
	approver := "Meera Principal"
	return models.Request{
		ID:           "req-1",
		FromUserName: "Asha Clerk",
		FromUserRole: models.RoleClerk,
		ToUserName:   "Ravi Registrar",
		ToUserRole:   models.RoleRegistrar,
		RequestType:  "certificate",
		Category:     "administrative",
		Subject:      "Bonafide certificate",
		Status:       models.RequestStatusApproved,
		Priority:     models.PriorityMedium,
		CreatedAt:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		ApprovedByName: &approver,
	}
}

func TestExportCSVContainsRequestRows(t *testing.T) {
	lister := &exportListerStub{requests: []models.Request{exportSample()}}
	audit := &requestAuditStub{}
	svc := NewExportService(lister, audit, ExportConfig{}, nil, nil, nil)
	actor := &models.JWTClaims{UserID: "reg-1", Role: models.RoleRegistrar}

	result, err := svc.Export(context.Background(), actor, dto.RequestQuery{}, ExportFormatCSV)
	require.NoError(t, err)
	require.Equal(t, "text/csv", result.ContentType)
	require.True(t, strings.HasSuffix(result.Filename, ".csv"))
	require.Equal(t, -1, lister.filter.Limit)

	body := string(result.Payload)
	require.Contains(t, body, "Bonafide certificate")
	require.Contains(t, body, "Asha Clerk (clerk)")
	require.Contains(t, body, "Meera Principal")
	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionRequestExport, audit.logs[0].Action)
}

func TestExportPDFRenders(t *testing.T) {
	lister := &exportListerStub{requests: []models.Request{exportSample()}}
	svc := NewExportService(lister, nil, ExportConfig{Title: "Campus Requests"}, nil, nil, nil)
	actor := &models.JWTClaims{UserID: "prin-1", Role: models.RolePrincipal}

	result, err := svc.Export(context.Background(), actor, dto.RequestQuery{}, ExportFormatPDF)
	require.NoError(t, err)
	require.Equal(t, "application/pdf", result.ContentType)
	require.NotEmpty(t, result.Payload)
	require.Contains(t, result.ContentDisposition(), "attachment; filename=")
}

func TestExportForbiddenForNonAuditRoles(t *testing.T) {
	lister := &exportListerStub{}
	svc := NewExportService(lister, nil, ExportConfig{}, nil, nil, nil)
	actor := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}

	_, err := svc.Export(context.Background(), actor, dto.RequestQuery{}, ExportFormatCSV)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	lister := &exportListerStub{}
	svc := NewExportService(lister, nil, ExportConfig{}, nil, nil, nil)
	actor := &models.JWTClaims{UserID: "adm-1", Role: models.RoleAdmin}

	_, err := svc.Export(context.Background(), actor, dto.RequestQuery{}, ExportFormat("xlsx"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

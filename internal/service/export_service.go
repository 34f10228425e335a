package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-erp-api/internal/dto"
	"github.com/noah-isme/campus-erp-api/internal/hierarchy"
	"github.com/noah-isme/campus-erp-api/internal/models"
	appErrors "github.com/noah-isme/campus-erp-api/pkg/errors"
	"github.com/noah-isme/campus-erp-api/pkg/export"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type exportRequestLister interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Title string
}

// ExportResult is a rendered export ready to stream to the client.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders the request log as downloadable CSV or PDF files.
// Only audit-visible roles may export.
type ExportService struct {
	requests exportRequestLister
	audit    auditLogger
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(requests exportRequestLister, audit auditLogger, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Title == "" {
		cfg.Title = "Request Log"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{requests: requests, audit: audit, csv: csv, pdf: pdf, logger: logger, cfg: cfg}
}

// Export renders every request matching the query.
func (s *ExportService) Export(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery, format ExportFormat) (*ExportResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !hierarchy.HasAuditVisibility(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role lacks audit visibility")
	}

	requests, err := s.requests.List(ctx, models.RequestFilter{
		Status:      query.Status,
		RequestType: query.RequestType,
		Category:    query.Category,
		Limit:       -1,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests for export")
	}

	dataset := buildRequestDataset(requests)
	var payload []byte
	var contentType string
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, s.cfg.Title)
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format: %s", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:    &actor.UserID,
			Action:    models.AuditActionRequestExport,
			Resource:  "request",
			NewValues: []byte(fmt.Sprintf(`{"format":%q,"rows":%d}`, format, len(requests))),
		}); err != nil {
			s.logger.Warn("failed to record export audit log", zap.Error(err))
		}
	}

	return &ExportResult{
		Filename:    buildExportFilename(format),
		ContentType: contentType,
		Payload:     payload,
	}, nil
}

func buildExportFilename(format ExportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("requests_%s.%s", timestamp, format)
}

func buildRequestDataset(requests []models.Request) export.Dataset {
	headers := []string{"ID", "Type", "Category", "Subject", "From", "To", "Status", "Priority", "Escalations", "Created At", "Decided By"}
	rows := make([]map[string]string, 0, len(requests))
	for _, request := range requests {
		decidedBy := ""
		if request.ApprovedByName != nil {
			decidedBy = *request.ApprovedByName
		}
		rows = append(rows, map[string]string{
			"ID":          request.ID,
			"Type":        request.RequestType,
			"Category":    request.Category,
			"Subject":     request.Subject,
			"From":        fmt.Sprintf("%s (%s)", request.FromUserName, request.FromUserRole),
			"To":          fmt.Sprintf("%s (%s)", request.ToUserName, request.ToUserRole),
			"Status":      string(request.Status),
			"Priority":    string(request.Priority),
			"Escalations": fmt.Sprintf("%d", request.EscalationLevel),
			"Created At":  request.CreatedAt.UTC().Format(time.RFC3339),
			"Decided By":  decidedBy,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// ContentDisposition builds the download header value for a result.
func (r *ExportResult) ContentDisposition() string {
	return fmt.Sprintf("attachment; filename=%q", strings.ReplaceAll(r.Filename, `"`, ""))
}

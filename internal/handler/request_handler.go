package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-erp-api/internal/dto"
	"github.com/noah-isme/campus-erp-api/internal/hierarchy"
	"github.com/noah-isme/campus-erp-api/internal/models"
	"github.com/noah-isme/campus-erp-api/internal/service"
	appErrors "github.com/noah-isme/campus-erp-api/pkg/errors"
	"github.com/noah-isme/campus-erp-api/pkg/response"
)

type requestService interface {
	Create(ctx context.Context, req dto.CreateRequestRequest, actor *models.JWTClaims) (*models.Request, error)
	Incoming(ctx context.Context, userID string, role models.Role, query dto.RequestQuery) ([]models.Request, error)
	Outgoing(ctx context.Context, userID string, query dto.RequestQuery) ([]models.Request, error)
	All(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery) ([]models.Request, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Request, error)
	Decide(ctx context.Context, id string, req dto.DecisionRequest, actor *models.JWTClaims) (*models.Request, error)
	AddComment(ctx context.Context, id string, req dto.AddCommentRequest, actor *models.JWTClaims) (*models.RequestComment, error)
	Stats(ctx context.Context, actor *models.JWTClaims) (*models.RequestStats, error)
	Recipients(ctx context.Context, role models.Role) ([]models.Recipient, error)
	RoleProfile(role models.Role) dto.RoleProfile
}

type exportService interface {
	Export(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery, format service.ExportFormat) (*service.ExportResult, error)
}

// RequestHandler exposes REST endpoints for the request workflow.
type RequestHandler struct {
	service requestService
	exports exportService
}

// NewRequestHandler constructs the handler. Exports may be nil when the
// export module is disabled.
func NewRequestHandler(svc requestService, exports exportService) *RequestHandler {
	return &RequestHandler{service: svc, exports: exports}
}

// Create godoc
// @Summary Submit a request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequestRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	request, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// Incoming godoc
// @Summary List requests addressed to the caller
// @Tags Requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param type query string false "Request type"
// @Param category query string false "Category"
// @Success 200 {object} response.Envelope
// @Router /requests/incoming [get]
func (h *RequestHandler) Incoming(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	requests, err := h.service.Incoming(c.Request.Context(), claims.UserID, claims.Role, parseRequestQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Outgoing godoc
// @Summary List requests sent by the caller
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests/outgoing [get]
func (h *RequestHandler) Outgoing(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	requests, err := h.service.Outgoing(c.Request.Context(), claims.UserID, parseRequestQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// All godoc
// @Summary List every request (audit-visible roles only)
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) All(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	requests, err := h.service.All(c.Request.Context(), claims, parseRequestQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get one request with its comment thread
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Decide godoc
// @Summary Approve or reject a request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/decision [post]
func (h *RequestHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	request, err := h.service.Decide(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// AddComment godoc
// @Summary Comment on a request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.AddCommentRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Router /requests/{id}/comments [post]
func (h *RequestHandler) AddComment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid comment payload"))
		return
	}
	comment, err := h.service.AddComment(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, comment, nil)
}

// Stats godoc
// @Summary Request counts for the caller's visibility scope
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests/stats [get]
func (h *RequestHandler) Stats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Recipients godoc
// @Summary Users the caller's role may address
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests/recipients [get]
func (h *RequestHandler) Recipients(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	recipients, err := h.service.Recipients(c.Request.Context(), claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, recipients, nil)
}

// Profile godoc
// @Summary Routing capabilities of the caller's role
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests/profile [get]
func (h *RequestHandler) Profile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, h.service.RoleProfile(claims.Role), nil)
}

// Types godoc
// @Summary List configured request types
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests/types [get]
func (h *RequestHandler) Types(c *gin.Context) {
	types := hierarchy.RequestTypes()
	chains := make([]hierarchy.Chain, 0, len(types))
	for _, requestType := range types {
		if chain, ok := hierarchy.ChainFor(requestType); ok {
			chains = append(chains, chain)
		}
	}
	response.JSON(c, http.StatusOK, chains, nil)
}

// Export godoc
// @Summary Download the request log as CSV or PDF
// @Tags Requests
// @Produce octet-stream
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /requests/export [get]
func (h *RequestHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
	result, err := h.exports.Export(c.Request.Context(), claims, parseRequestQuery(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", result.ContentDisposition())
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}

func parseRequestQuery(c *gin.Context) dto.RequestQuery {
	query := dto.RequestQuery{
		RequestType: strings.TrimSpace(c.Query("type")),
		Category:    strings.TrimSpace(c.Query("category")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.RequestStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.RequestStatus(part))
		}
		query.Status = statuses
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			query.Limit = limit
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			query.Offset = offset
		}
	}
	return query
}

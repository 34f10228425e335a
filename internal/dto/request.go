package dto

import "github.com/noah-isme/campus-erp-api/internal/models"

// CreateRequestRequest is the payload for submitting a new request.
type CreateRequestRequest struct {
	ToUserID        string                 `json:"toUserId"`
	RequestType     string                 `json:"requestType"`
	Subject         string                 `json:"subject"`
	Description     string                 `json:"description"`
	Priority        models.RequestPriority `json:"priority"`
	Department      string                 `json:"department"`
	Tags            []string               `json:"tags"`
	MaxResponseTime *int                   `json:"maxResponseTime"`
}

// DecisionRequest captures the approver verdict and optional comment.
type DecisionRequest struct {
	Action  models.DecisionAction `json:"action"`
	Comment string                `json:"comment"`
}

// AddCommentRequest appends a user-visible comment to a request thread.
type AddCommentRequest struct {
	Body string `json:"body"`
}

// RequestQuery mirrors supported listing filters.
type RequestQuery struct {
	Status      []models.RequestStatus
	RequestType string
	Category    string
	Limit       int
	Offset      int
}

// RoleProfile describes what a role may do, for the routing picker.
type RoleProfile struct {
	Role         models.Role `json:"role"`
	Level        int         `json:"level"`
	Description  string      `json:"description"`
	RequestTypes []string    `json:"requestTypes"`
	Categories   []string    `json:"categories"`
}

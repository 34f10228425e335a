package models

import (
	"time"

	"github.com/lib/pq"
)

// RequestStatus captures workflow states for staff requests.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusForwarded RequestStatus = "forwarded"
	RequestStatusCompleted RequestStatus = "completed"
)

// RequestPriority enumerates urgency levels.
type RequestPriority string

const (
	PriorityLow    RequestPriority = "low"
	PriorityMedium RequestPriority = "medium"
	PriorityHigh   RequestPriority = "high"
	PriorityUrgent RequestPriority = "urgent"
)

// DecisionAction is the reviewer verdict on a request.
type DecisionAction string

const (
	ActionApprove DecisionAction = "approve"
	ActionReject  DecisionAction = "reject"
)

// Request is one routed staff request. Version is a monotonic counter used
// for compare-and-swap updates; every successful mutation bumps it.
type Request struct {
	ID              string          `db:"id" json:"id"`
	FromUserID      string          `db:"from_user_id" json:"fromUserId"`
	FromUserName    string          `db:"from_user_name" json:"fromUserName"`
	FromUserRole    Role            `db:"from_user_role" json:"fromUserRole"`
	ToUserID        string          `db:"to_user_id" json:"toUserId"`
	ToUserName      string          `db:"to_user_name" json:"toUserName"`
	ToUserRole      Role            `db:"to_user_role" json:"toUserRole"`
	RequestType     string          `db:"request_type" json:"requestType"`
	Category        string          `db:"category" json:"category"`
	Subject         string          `db:"subject" json:"subject"`
	Description     string          `db:"description" json:"description"`
	Status          RequestStatus   `db:"status" json:"status"`
	Priority        RequestPriority `db:"priority" json:"priority"`
	Department      *string         `db:"department" json:"department,omitempty"`
	Tags            pq.StringArray  `db:"tags" json:"tags,omitempty"`
	AutoForwarded   bool            `db:"auto_forwarded" json:"autoForwarded"`
	EscalationLevel int             `db:"escalation_level" json:"escalationLevel"`
	MaxResponseTime *int            `db:"max_response_time" json:"maxResponseTime,omitempty"`
	ApprovedAt      *time.Time      `db:"approved_at" json:"approvedAt,omitempty"`
	ApprovedBy      *string         `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedByName  *string         `db:"approved_by_name" json:"approvedByName,omitempty"`
	Version         int64           `db:"version" json:"version"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`

	Comments []RequestComment `db:"-" json:"comments,omitempty"`
}

// Overdue reports whether the request has outlived its response window at
// the given instant. Requests without a window never become overdue.
func (r *Request) Overdue(now time.Time) bool {
	if r.MaxResponseTime == nil || *r.MaxResponseTime <= 0 {
		return false
	}
	deadline := r.CreatedAt.Add(time.Duration(*r.MaxResponseTime) * time.Hour)
	return now.After(deadline)
}

// RequestComment is one append-only entry in a request's thread. Internal
// comments are system notes (forwards, escalations) hidden from end users.
type RequestComment struct {
	ID         string    `db:"id" json:"id"`
	RequestID  string    `db:"request_id" json:"requestId"`
	AuthorID   string    `db:"author_id" json:"authorId"`
	AuthorName string    `db:"author_name" json:"authorName"`
	AuthorRole Role      `db:"author_role" json:"authorRole"`
	Body       string    `db:"body" json:"body"`
	IsInternal bool      `db:"is_internal" json:"isInternal"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// RequestFilter constrains listing queries.
type RequestFilter struct {
	RecipientID string
	SenderID    string
	Status      []RequestStatus
	RequestType string
	Category    string
	Limit       int
	Offset      int
}

// RequestStats aggregates counts over a visibility scope, deduplicated by
// request id.
type RequestStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Forwarded int `json:"forwarded"`
	Completed int `json:"completed"`
	Overdue   int `json:"overdue"`
}

// Recipient is an addressable user surfaced by the recipient picker.
type Recipient struct {
	UID        string  `json:"uid"`
	Name       string  `json:"name"`
	Role       Role    `json:"role"`
	Department *string `json:"department,omitempty"`
}

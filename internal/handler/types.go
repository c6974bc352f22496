package handler

import (
	"time"

	"mail-digest-go/internal/model"
)

// DigestResponse represents the response structure for digests
type DigestResponse struct {
	ID            uint               `json:"id"`
	Status        model.DigestStatus `json:"status"`
	StatusLabel   string             `json:"status_label"`
	CreatedAt     time.Time          `json:"created_at"`
	SentAt        *time.Time         `json:"sent_at"`
	FailureReason *string            `json:"failure_reason"`
	Items         []model.DigestItem `json:"items"`
}

// PrepareResponse represents the outcome of a prepare request
type PrepareResponse struct {
	Empty  bool            `json:"empty"`
	Digest *DigestResponse `json:"digest,omitempty"`
}

// MailingResponse represents one mailing log record
type MailingResponse struct {
	ID          uint      `json:"id"`
	MailingID   string    `json:"mailing_id"`
	ContentID   string    `json:"content_id"`
	ContentType string    `json:"content_type"`
	Language    string    `json:"language"`
	SentAt      time.Time `json:"sent_at"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Digest    string            `json:"digest"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func toDigestResponse(d *model.Digest) *DigestResponse {
	return &DigestResponse{
		ID:            d.ID,
		Status:        d.Status,
		StatusLabel:   d.Status.Label(),
		CreatedAt:     d.CreatedAt,
		SentAt:        d.SentAt,
		FailureReason: d.FailureReason,
		Items:         d.Items,
	}
}

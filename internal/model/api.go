package model

import (
	"fmt"
	"time"
)

// MaxDomainsPerRequest bounds a single category-mapping batch so one request
// cannot fan out into an unbounded number of classifier calls.
const MaxDomainsPerRequest = 500

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every error response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeMissingFields      = "MISSING_FIELDS"
	ErrCodeInvalidTimestamp   = "INVALID_TIMESTAMP"
	ErrCodeInvalidDate        = "INVALID_DATE"
	ErrCodeInvalidUsage       = "INVALID_USAGE"
	ErrCodePersistenceFailure = "PERSISTENCE_FAILURE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// CategoryMappingRequest is the request body for POST /get-category-mapping.
type CategoryMappingRequest struct {
	Domains []string `json:"domains"`
}

// Validate checks the batch size limit.
func (r CategoryMappingRequest) Validate() error {
	if len(r.Domains) > MaxDomainsPerRequest {
		return fmt.Errorf("domains exceeds maximum of %d entries", MaxDomainsPerRequest)
	}
	return nil
}

// SubmitSummaryRequest is the request body for POST /submit-category-summary.
type SubmitSummaryRequest struct {
	Timestamp       string             `json:"timestamp"`
	UserID          string             `json:"userId"`
	CategorySummary map[string]float64 `json:"categorySummary"`
}

// SummaryHistoryItem is one element of the GET /get-summary-history response.
type SummaryHistoryItem struct {
	Timestamp string             `json:"timestamp"`
	UserID    string             `json:"userId"`
	Summary   map[string]float64 `json:"summary"`
}

// TrackUsageRequest is the request body for POST /track-usage.
// Timestamp is the event time in Unix milliseconds.
type TrackUsageRequest struct {
	UserID    string      `json:"userId"`
	Timestamp int64       `json:"timestamp"`
	Usage     *UsageDelta `json:"usage"`
}

// UsageDelta carries the increments for one tracked usage event.
type UsageDelta struct {
	LLMCall int64   `json:"llmCall"`
	Cost    float64 `json:"cost"`
}

// StatusResponse is the acknowledgement body for write endpoints.
type StatusResponse struct {
	Status string `json:"status"`
	UserID string `json:"userId,omitempty"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Storage string `json:"storage"`
	Uptime  int64  `json:"uptime_seconds"`
}

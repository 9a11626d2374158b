// Package models defines the core data structures for the Smart Inclusion service.
//
// It includes the USSD session input, the record types collected by the menu
// flows, and the JSON envelope shared by the HTTP API.
package models

import (
	"errors"
	"time"
	"unicode/utf8"
)

// Validation constants for input validation
const (
	// MaxBroadcastLength is the maximum broadcast length in characters, matching
	// the dashboard form's maxlength.
	MaxBroadcastLength = 1600
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage       = errors.New("broadcast message cannot be empty")
	ErrMessageTooLong     = errors.New("broadcast message exceeds maximum length")
	ErrUnknownRecordKind  = errors.New("unknown record kind")
	ErrIncompleteDraft    = errors.New("draft does not carry every required field")
	ErrStoreNotConfigured = errors.New("record store not configured")
)

// SessionInput is one inbound USSD request. Every field may be empty.
type SessionInput struct {
	SessionID   string `json:"sessionId"`
	ServiceCode string `json:"serviceCode"`
	PhoneNumber string `json:"phoneNumber"`
	Text        string `json:"text"`
}

// RecordKind identifies which record a completed flow produces.
type RecordKind string

const (
	// RecordKindFarmer is a farmer registration.
	RecordKindFarmer RecordKind = "farmer"
	// RecordKindCropReport is a crop production report.
	RecordKindCropReport RecordKind = "crop_report"
	// RecordKindLivestockReport is a livestock report.
	RecordKindLivestockReport RecordKind = "livestock_report"
)

// FieldCount returns how many field tokens a draft of this kind carries.
func (k RecordKind) FieldCount() int {
	switch k {
	case RecordKindFarmer:
		return 5
	case RecordKindCropReport, RecordKindLivestockReport:
		return 2
	default:
		return 0
	}
}

// IsValidRecordKind checks if the given record kind is supported.
func IsValidRecordKind(k RecordKind) bool {
	return k.FieldCount() > 0
}

// FarmerRecord is a registered farmer.
type FarmerRecord struct {
	ID        int64  `json:"id"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	FarmSize  string `json:"farm_size"`
	Crops     string `json:"crops"`
	Livestock string `json:"livestock"`
}

// CropReport is one reported harvest.
type CropReport struct {
	ID       int64     `json:"id"`
	Phone    string    `json:"phone"`
	Crop     string    `json:"crop"`
	Quantity string    `json:"quantity"`
	Date     time.Time `json:"date"`
}

// LivestockReport is one reported herd count.
type LivestockReport struct {
	ID     int64     `json:"id"`
	Phone  string    `json:"phone"`
	Animal string    `json:"animal"`
	Count  string    `json:"count"`
	Date   time.Time `json:"date"`
}

// Draft is the in-flight form assembled from the step tokens of one request.
// Fields are kept in prompt order and are never trimmed or validated.
type Draft struct {
	Kind   RecordKind `json:"kind"`
	Phone  string     `json:"phone"`
	Fields []string   `json:"fields"`
}

// Validate reports whether the draft has exactly the fields its kind requires.
func (d Draft) Validate() error {
	if !IsValidRecordKind(d.Kind) {
		return ErrUnknownRecordKind
	}
	if len(d.Fields) != d.Kind.FieldCount() {
		return ErrIncompleteDraft
	}
	return nil
}

// Farmer converts a farmer draft into a FarmerRecord. The draft must be valid.
func (d Draft) Farmer() FarmerRecord {
	return FarmerRecord{
		Phone:     d.Phone,
		Name:      d.Fields[0],
		Location:  d.Fields[1],
		FarmSize:  d.Fields[2],
		Crops:     d.Fields[3],
		Livestock: d.Fields[4],
	}
}

// CropReport converts a crop report draft into a CropReport. The draft must be valid.
func (d Draft) CropReport() CropReport {
	return CropReport{Phone: d.Phone, Crop: d.Fields[0], Quantity: d.Fields[1]}
}

// LivestockReport converts a livestock draft into a LivestockReport. The draft must be valid.
func (d Draft) LivestockReport() LivestockReport {
	return LivestockReport{Phone: d.Phone, Animal: d.Fields[0], Count: d.Fields[1]}
}

// PersistResult is what a record sink reports back for one persist call.
// The zero value is a success.
type PersistResult struct {
	Reason string
	failed bool
}

// Persisted returns a successful PersistResult.
func Persisted() PersistResult {
	return PersistResult{}
}

// PersistFailed returns a failed PersistResult carrying the reason for logs.
func PersistFailed(reason string) PersistResult {
	return PersistResult{Reason: reason, failed: true}
}

// OK reports whether the record was stored.
func (r PersistResult) OK() bool {
	return !r.failed
}

// BroadcastRequest is the payload accepted by the broadcast endpoint.
type BroadcastRequest struct {
	Message string `json:"message"`
}

// Validate checks the broadcast message.
func (r BroadcastRequest) Validate() error {
	if r.Message == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(r.Message) > MaxBroadcastLength {
		return ErrMessageTooLong
	}
	return nil
}

// BroadcastAck acknowledges a broadcast. Recipients counts queued sends, not deliveries.
type BroadcastAck struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	Recipients int       `json:"recipients"`
	QueuedAt   time.Time `json:"queued_at"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusQueued indicates work was accepted for later processing.
	APIStatusQueued APIStatus = "queued"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// QueuedWithMessage creates a queued API response with a message and result.
func QueuedWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusQueued).
		WithMessage(message).
		WithResult(result).
		Build()
}

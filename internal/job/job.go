// ABOUTME: Job record type, status lifecycle, and the sink contract for persistence.
// ABOUTME: Defines the failure taxonomy shared by the sqlite and sheets backends.

package job

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Backend failure taxonomy. Implementations wrap one of these sentinels so
// callers can distinguish transience from contract violations.
var (
	// ErrTransport means the backend was unreachable (network-level failure).
	ErrTransport = errors.New("backend unreachable")

	// ErrBackendLogic means the backend was reachable but reported a domain
	// error for the request.
	ErrBackendLogic = errors.New("backend rejected request")

	// ErrMalformedResponse means the backend returned a payload that does
	// not conform to its contract. This is logged distinctly from transport
	// failures because it indicates a bug, not transience.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// Status is the lifecycle tag of a job record. The intake core only ever
// assigns StatusLead and StatusScheduled at creation; later transitions are
// owned by the staff-facing tooling.
type Status string

const (
	StatusLead       Status = "LEAD"
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReady      Status = "READY"
	StatusDelivered  Status = "DELIVERED"
)

// Display returns the status as staff-friendly text ("IN_PROGRESS" -> "IN PROGRESS").
func (s Status) Display() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// Record is a persisted service request: either a full scheduled intake or a
// lightweight quote lead.
type Record struct {
	// ID is assigned by the sink on save; empty before persistence.
	ID string

	// ChatID is an opaque reference to the originating conversation, used
	// for correlation and staff notification, not access control.
	ChatID string

	ClientName  string
	VehicleInfo string
	Notes       string

	Status   Status
	Progress int
	IsLead   bool

	CreatedAt time.Time
}

// Validate reports whether the record is complete enough to persist. Every
// field required by its creation stage must be populated and non-empty.
func (r *Record) Validate() error {
	if r.ChatID == "" {
		return errors.New("job record missing chat identity")
	}
	if strings.TrimSpace(r.ClientName) == "" {
		return errors.New("job record missing client name")
	}
	if strings.TrimSpace(r.VehicleInfo) == "" {
		return errors.New("job record missing vehicle info")
	}
	if !r.IsLead && strings.TrimSpace(r.Notes) == "" {
		return errors.New("job record missing notes")
	}
	switch r.Status {
	case StatusLead, StatusScheduled:
	default:
		return errors.New("job record created with staff-owned status " + string(r.Status))
	}
	return nil
}

// Sink durably stores job records and answers status queries.
type Sink interface {
	// Save persists the record and returns the assigned identifier.
	Save(ctx context.Context, rec *Record) (string, error)

	// Query returns the records for a chat identity ordered by insertion,
	// most-recent-last. Status lookups pick the last element; "latest by
	// insertion order" is the defined contract.
	Query(ctx context.Context, chatID string) ([]*Record, error)

	// Close releases any resources held by the sink.
	Close() error
}

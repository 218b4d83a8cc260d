// Package rejection classifies pipeline failures into per-record rejections.
package rejection

import (
	"errors"
	"fmt"
)

// Kind is the failure taxonomy a rejection belongs to.
type Kind int

const (
	KindUnexpected Kind = iota
	KindStructural
	KindInputDomain
	KindExternalTransport
	KindExternalData
	KindResolutionConflict
)

// String returns the metric/log label of the kind.
func (k Kind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindInputDomain:
		return "input_domain"
	case KindExternalTransport:
		return "external_transport"
	case KindExternalData:
		return "external_data"
	case KindResolutionConflict:
		return "resolution_conflict"
	default:
		return "unexpected"
	}
}

// Retryable reports whether resubmitting the same record later may succeed.
func (k Kind) Retryable() bool {
	return k == KindExternalTransport
}

// Messages shared by the classifier and its callers.
const (
	MsgUnexpected = "An unexpected error occurred while processing this observation."
	MsgSaveFailed = "Observation could not be saved - try again later."
)

// Rejection is the error value every pipeline stage returns for a record it refuses.
type Rejection struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates a rejection with a human-readable message.
func New(kind Kind, msg string) *Rejection {
	return &Rejection{Kind: kind, Message: msg}
}

// Newf creates a rejection with a formatted message.
func Newf(kind Kind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches the underlying cause, kept for logs only.
func Wrap(kind Kind, msg string, err error) *Rejection {
	return &Rejection{Kind: kind, Message: msg, Err: err}
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return r.Message + ": " + r.Err.Error()
	}
	return r.Message
}

func (r *Rejection) Unwrap() error { return r.Err }

// Is matches rejections of the same kind, so errors.Is(err, &Rejection{Kind: k}) works.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == r.Kind
}

// Classify maps any error to the rejection recorded for the offending record.
// Errors that are not already rejections become KindUnexpected.
func Classify(err error) *Rejection {
	if err == nil {
		return nil
	}
	var r *Rejection
	if errors.As(err, &r) {
		return r
	}
	return Wrap(KindUnexpected, MsgUnexpected, err)
}

// Entry is one rejected record in a batch result.
type Entry struct {
	Index      int    `json:"index"`
	SatName    string `json:"sat_name"`
	SatNumber  *int   `json:"sat_number"`
	ObsTimeUTC string `json:"obs_time_utc"`
	Error      string `json:"error"`
	Kind       string `json:"kind"`
}

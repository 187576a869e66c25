// Package outcome defines the result of a generation task and the error
// taxonomy shared by the worker, the executor and every caller.
//
// Failures cross the process boundary as data: a worker never propagates a
// raw error to its parent, it serializes an Outcome.
package outcome

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Status is the stable discriminator of a TaskOutcome.
type Status string

const (
	StatusSuccess           Status = "success"
	StatusValidationFailure Status = "validation_failure"
	StatusTimeout           Status = "timeout"
	StatusFault             Status = "fault"
)

// HTTPCode maps a status to the code callers see: invalid input, retry, or bug.
func (s Status) HTTPCode() int {
	switch s {
	case StatusSuccess:
		return http.StatusOK
	case StatusValidationFailure:
		return http.StatusUnprocessableEntity
	case StatusTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Reason is the closed set of validation failure causes.
type Reason string

const (
	ReasonEmptyShape           Reason = "empty_shape"
	ReasonUnretrievable        Reason = "unretrievable_shape"
	ReasonTopologyInvalid      Reason = "topology_invalid"
	ReasonNoShells             Reason = "no_shells"
	ReasonOpenShell            Reason = "open_shell"
	ReasonCompoundNoShells     Reason = "compound_solid_no_shells"
	ReasonCompoundOpenShell    Reason = "compound_solid_open_shell"
	ReasonNonPositiveVolume    Reason = "non_positive_volume"
	ReasonParameter            Reason = "parameter"
	ReasonUnsupportedShapeKind Reason = "unsupported_shape_kind"
)

// Dimensions is the bounding-box summary returned on success.
type Dimensions struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%.2fx%.2fx%.2f", d.X, d.Y, d.Z)
}

// Result is a successful generation.
type Result struct {
	Dims         Dimensions `json:"dims"`
	ExportedPath string     `json:"exported_path,omitempty"`
}

// Outcome is the serializable TaskOutcome.
type Outcome struct {
	Status  Status        `json:"status"`
	Result  *Result       `json:"result,omitempty"`
	Reason  Reason        `json:"reason,omitempty"`
	Message string        `json:"message,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns,omitempty"`
}

// Success wraps a result.
func Success(r Result) Outcome {
	return Outcome{Status: StatusSuccess, Result: &r}
}

// FromError classifies err into an Outcome. A nil error is a fault: success
// must always carry a Result.
func FromError(err error) Outcome {
	if err == nil {
		return Outcome{Status: StatusFault, Message: "no result produced"}
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return Outcome{Status: StatusValidationFailure, Reason: ve.Reason, Message: err.Error()}
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return Outcome{Status: StatusTimeout, Message: err.Error()}
	}
	return Outcome{Status: StatusFault, Message: err.Error()}
}

// Err converts a non-success outcome back to a typed error; nil on success.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusSuccess:
		return nil
	case StatusValidationFailure:
		return &ValidationError{Reason: o.Reason, Detail: o.Message}
	case StatusTimeout:
		return &TimeoutError{After: o.Elapsed}
	default:
		return &Fault{Message: o.Message}
	}
}

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// ValidationError is a client fault: invalid geometry or parameters.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Reason, e.Detail)
}

// Invalid builds a ValidationError.
func Invalid(reason Reason, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ParameterError is the ValidationError for a violated parameter relationship.
func ParameterError(format string, args ...interface{}) *ValidationError {
	return Invalid(ReasonParameter, format, args...)
}

// TimeoutError reports an isolated unit that missed its deadline.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("generation timed out after %v", e.After)
}

// Fault is an unexpected kernel, arithmetic or process failure.
type Fault struct {
	Message string
}

func (e *Fault) Error() string {
	return "generation fault: " + e.Message
}

// Faultf builds a Fault.
func Faultf(format string, args ...interface{}) *Fault {
	return &Fault{Message: fmt.Sprintf(format, args...)}
}

// StatusOf classifies an arbitrary error.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	return FromError(err).Status
}

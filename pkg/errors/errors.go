// Package errors provides structured error handling and the warning system
// used across croptrain. Errors carry stack traces via cockroachdb/errors and
// implement zerolog's object marshaler so training drivers can emit them as
// structured log events.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Global warning handling
//
// ===========================================================================

var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("croptrain-warning: %v\n", w)
	}
	// zerolog sink, injected lazily to avoid an import cycle with pkg/log.
	zerologWarnFunc func(warning error)
)

// SetWarningHandler sets the library-wide warning handler. Warnings report
// degraded-but-survivable conditions (failed checkpoint writes, restore with
// no snapshot) that must not abort a multi-hour training run.
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc routes warnings to a zerolog-backed sink.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn raises a warning through the configured handler. The zerolog sink
// takes precedence when one has been installed.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Structured error types
//
// ===========================================================================

// ValidationError reports an invalid construction parameter. Controllers are
// never partially constructed: validation failures are fatal at New time.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("croptrain: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds the structured validation failure to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a ValidationError with a stack trace attached.
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// UsageError reports a contract violation by the surrounding training loop:
// epochs supplied out of order, a configured metric missing from the epoch's
// values, a restore before any evaluation. These indicate a caller bug and
// fail the offending call without mutating controller state.
type UsageError struct {
	Op      string
	Message string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("croptrain: %s: %s", e.Op, e.Message)
}

// MarshalZerologObject adds the structured usage failure to a zerolog event.
func (e *UsageError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("message", e.Message).
		Str("type", "UsageError")
}

// NewUsageError creates a UsageError with a stack trace attached.
func NewUsageError(op, message string) error {
	err := &UsageError{Op: op, Message: message}
	return errors.WithStack(err)
}

// NewUsageErrorf creates a UsageError from a format string.
func NewUsageErrorf(op, format string, args ...interface{}) error {
	return NewUsageError(op, fmt.Sprintf(format, args...))
}

// NumericalInstabilityError reports NaN or Inf in a monitored metric. These
// are never coerced into "no improvement": a non-finite validation loss means
// the optimization itself is diverging, and masking it as a plateau would
// hide the real failure from the operator.
type NumericalInstabilityError struct {
	Metric string
	Value  float64
	Epoch  int
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("croptrain: numerical instability in metric '%s' at epoch %d: value %v is not finite",
		e.Metric, e.Epoch, e.Value)
}

// MarshalZerologObject adds the structured instability report to a zerolog event.
func (e *NumericalInstabilityError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("metric", e.Metric).
		Float64("value", e.Value).
		Int("epoch", e.Epoch).
		Str("type", "NumericalInstabilityError")
}

// NewNumericalInstabilityError creates a NumericalInstabilityError with a
// stack trace attached.
func NewNumericalInstabilityError(metric string, value float64, epoch int) error {
	err := &NumericalInstabilityError{Metric: metric, Value: value, Epoch: epoch}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Warning types
//
// ===========================================================================

// ConvergenceWarning is raised when a computation finishes without meaningful
// convergence, such as a degenerate metric score or a run where the monitored
// value never improved.
type ConvergenceWarning struct {
	Monitor string
	Epochs  int
	Message string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("'%s' showed no convergence after %d epochs: %s", w.Monitor, w.Epochs, w.Message)
	}
	return fmt.Sprintf("'%s' showed no convergence after %d epochs", w.Monitor, w.Epochs)
}

// MarshalZerologObject adds the structured warning to a zerolog event.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("monitor", w.Monitor).
		Int("epochs", w.Epochs).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning creates a new ConvergenceWarning.
func NewConvergenceWarning(monitor string, epochs int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Monitor: monitor, Epochs: epochs, Message: message}
}

// RestoreWarning is raised when best-weights restoration is requested but no
// snapshot was ever captured (zero epochs run, or no metric ever improved).
// Restoring becomes a no-op; the warning keeps that visible instead of
// letting it look like a silent success.
type RestoreWarning struct {
	Epochs int
	Reason string
}

func (w *RestoreWarning) Error() string {
	return fmt.Sprintf("restore requested but no best snapshot available after %d epochs: %s", w.Epochs, w.Reason)
}

// MarshalZerologObject adds the structured warning to a zerolog event.
func (w *RestoreWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("epochs", w.Epochs).
		Str("reason", w.Reason).
		Str("type", "RestoreWarning")
}

// NewRestoreWarning creates a new RestoreWarning.
func NewRestoreWarning(epochs int, reason string) *RestoreWarning {
	return &RestoreWarning{Epochs: epochs, Reason: reason}
}

// PersistenceWarning is raised when a checkpoint, run log, or plot could not
// be written. The in-memory decision logic never depends on successful I/O,
// so these degrade the run's artifacts rather than its control decisions.
type PersistenceWarning struct {
	Artifact string
	Path     string
	Err      error
}

func (w *PersistenceWarning) Error() string {
	return fmt.Sprintf("failed to persist %s to %s: %v", w.Artifact, w.Path, w.Err)
}

func (w *PersistenceWarning) Unwrap() error {
	return w.Err
}

// MarshalZerologObject adds the structured warning to a zerolog event.
func (w *PersistenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("artifact", w.Artifact).
		Str("path", w.Path).
		AnErr("cause", w.Err).
		Str("type", "PersistenceWarning")
}

// NewPersistenceWarning creates a new PersistenceWarning.
func NewPersistenceWarning(artifact, path string, err error) *PersistenceWarning {
	return &PersistenceWarning{Artifact: artifact, Path: path, Err: err}
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As reports whether err can be assigned to target's type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack attaches a stack trace to an error.
func WithStack(err error) error {
	return errors.WithStack(err)
}

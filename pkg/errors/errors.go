package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTypeMismatch is returned when two ports with different data types are connected.
	ErrTypeMismatch = errors.New("port data types do not match")
	// ErrCapacityExceeded is returned when an input port is connected a second time.
	ErrCapacityExceeded = errors.New("input port is already connected")
	// ErrPortDirection is returned when two inputs or two outputs are joined.
	ErrPortDirection = errors.New("ports must join an output to an input")
	// ErrCyclicPipeline marks pipelines whose connections form a cycle.
	ErrCyclicPipeline = errors.New("cyclic pipeline")
	// ErrPageBusy is returned when a page is already being processed.
	ErrPageBusy = errors.New("page is being processed")
	// ErrNestedWait is returned when a pool worker waits on a task of its own pool.
	ErrNestedWait = errors.New("pool worker cannot wait on its own pool")
	// ErrNotSupported is returned by processors lacking a capability.
	ErrNotSupported = errors.New("operation not supported by processor")
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutionError represents a runtime failure while executing a processor of a page.
type ExecutionError struct {
	PageID    int
	Processor string
	Err       error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(pageID int, processor string, err error) error {
	return &ExecutionError{PageID: pageID, Processor: processor, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Processor != "" && e.PageID > 0:
		return fmt.Sprintf("execution error on page %d, processor %s: %v", e.PageID, e.Processor, e.Err)
	case e.Processor != "":
		return fmt.Sprintf("execution error on processor %s: %v", e.Processor, e.Err)
	case e.PageID > 0:
		return fmt.Sprintf("execution error on page %d: %v", e.PageID, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PortError describes a rejected port connection.
type PortError struct {
	From string
	To   string
	Err  error
}

// NewPortError constructs a PortError wrapping one of the port sentinels.
func NewPortError(from, to string, err error) error {
	return &PortError{From: from, To: to, Err: err}
}

func (e *PortError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("port error: %s -> %s: %v", e.From, e.To, e.Err)
}

// Unwrap exposes the port sentinel.
func (e *PortError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CycleError reports the processors participating in a dependency cycle.
type CycleError struct {
	Path []string
}

// NewCycleError constructs a CycleError for the given path.
func NewCycleError(path []string) error {
	return &CycleError{Path: append([]string(nil), path...)}
}

func (e *CycleError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Path) == 0 {
		return "cyclic pipeline"
	}
	return fmt.Sprintf("cyclic pipeline: %s", strings.Join(e.Path, " -> "))
}

// Unwrap allows errors.Is(err, ErrCyclicPipeline).
func (e *CycleError) Unwrap() error {
	return ErrCyclicPipeline
}

// ServiceError indicates issues within processor service registration or instantiation.
type ServiceError struct {
	Service string
	Message string
	Err     error
}

// NewServiceError constructs a ServiceError for the given service name.
func NewServiceError(service string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ServiceError{Service: service, Message: message, Err: err}
}

func (e *ServiceError) Error() string {
	if e == nil {
		return ""
	}
	if e.Service != "" {
		return fmt.Sprintf("service error [%s]: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("service error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ServiceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FaultError wraps a recovered panic. Faults are unrecoverable for the task
// that raised them but never for the host process.
type FaultError struct {
	Value any
	Stack []byte
}

// NewFaultError constructs a FaultError from a recovered value.
func NewFaultError(value any, stack []byte) error {
	return &FaultError{Value: value, Stack: stack}
}

func (e *FaultError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("unrecoverable fault: %v", e.Value)
}

// Unwrap exposes the recovered value when it is itself an error.
func (e *FaultError) Unwrap() error {
	if e == nil {
		return nil
	}
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsFault reports whether err is, or wraps, a FaultError.
func IsFault(err error) bool {
	var fault *FaultError
	return errors.As(err, &fault)
}

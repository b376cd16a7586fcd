package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrNetwork        = errors.New("network error")
	ErrTimeout        = errors.New("invocation timed out")
	ErrRejected       = errors.New("rejected by admission")
	ErrCircuitOpen    = errors.New("circuit open")
	ErrRetryExhausted = errors.New("retry exhausted")
	ErrNoEndpoint     = errors.New("no endpoint available")
)

// ServiceError is the uniform failure returned by transports for
// application-level failures. It either wraps a live error or carries a
// pre-serialized descriptor (message plus exception names) received from a
// remote peer.
type ServiceError struct {
	Err         error
	Message     string
	Exceptions  []string
	Code        string
	ServerError bool
}

func (e *ServiceError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	case len(e.Exceptions) > 0:
		return strings.Join(e.Exceptions, ", ")
	default:
		return "service error"
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ErrorCode returns the code reported by the peer, if any.
func (e *ServiceError) ErrorCode() string { return e.Code }

// Remote reports whether the error is a descriptor without a live error.
func (e *ServiceError) Remote() bool {
	return e.Err == nil && len(e.Exceptions) > 0
}

// InvocationError is a generic wrapper with no semantic value of its own
// (executor or dispatch wrapping). The classifier skips it.
type InvocationError struct {
	Op  string
	Err error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s: %v", e.Op, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// InvocationWrapper marks the type as a wrapper for the classifier.
func (e *InvocationError) InvocationWrapper() bool { return true }

// NetworkError is a transport-level failure reaching an endpoint.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error on %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// TimeoutError is raised when a call's deadline passes. Stage names the state
// in which the deadline was observed. LastCause is the failure of the last
// attempt when the deadline passed between retries.
type TimeoutError struct {
	Stage     string
	Err       error
	LastCause error
}

func (e *TimeoutError) Error() string {
	msg := "timeout while " + e.Stage
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.LastCause != nil {
		msg += " (last error: " + e.LastCause.Error() + ")"
	}
	return msg
}

func (e *TimeoutError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.Err, e.LastCause} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Timeout satisfies the net.Error style timeout check.
func (e *TimeoutError) Timeout() bool { return true }

// RejectedError is returned when an admission gate refuses a call.
// It is never retried by the engine.
type RejectedError struct {
	Gate   string // concurrency, rate, load
	Key    string
	Reason string
}

func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("%s rejected by %s gate", e.Key, e.Gate)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// CircuitOpenError is returned when every routed endpoint is blocked by an
// open circuit.
type CircuitOpenError struct {
	Key       string
	Endpoints []string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s on %d endpoint(s)", e.Key, len(e.Endpoints))
}

func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// RetryExhaustedError is returned when a failover call used its whole retry
// budget and still failed.
type RetryExhaustedError struct {
	Attempts  int
	LastCause error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastCause)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastCause }

func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

// NoEndpointAvailableError is returned when routing leaves no candidate.
type NoEndpointAvailableError struct {
	Key       string
	Attempted int
}

func (e *NoEndpointAvailableError) Error() string {
	if e.Attempted > 0 {
		return fmt.Sprintf("no endpoint available for %s (%d already attempted)", e.Key, e.Attempted)
	}
	return "no endpoint available for " + e.Key
}

func (e *NoEndpointAvailableError) Is(target error) bool { return target == ErrNoEndpoint }

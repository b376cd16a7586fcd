// Package transport implements reference transports for the live cluster.
//
// This package contains:
//   - HTTPTransport: REST over HTTP using resty
//   - GRPCTransport: gRPC with per-endpoint connections and registered handlers
//   - Mux: per-service dispatch between transports
//
// gRPC calls go through handlers that wrap generated clients, so the
// embedding application registers them with GRPCTransport.Handle.
//   - StatusError: the application error carried inside domain.ServiceError
package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// StatusError is a non-success status returned by an endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// ErrorCode exposes the status code to the error classifier.
func (e *StatusError) ErrorCode() string {
	return strconv.Itoa(e.StatusCode)
}

// splitMethod parses "VERB /path" method names. A bare name is posted to
// "/name".
func splitMethod(method string) (verb, path string) {
	if v, p, ok := strings.Cut(method, " "); ok {
		return strings.ToUpper(v), ensureSlash(p)
	}
	return "POST", ensureSlash(method)
}

func ensureSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

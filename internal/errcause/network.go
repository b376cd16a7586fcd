package errcause

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/vietddude/livecluster/internal/core/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// IsTimeout reports whether err signals a transport or deadline timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.DeadlineExceeded {
		return true
	}
	return false
}

// IsNetwork reports whether err signals a failure to reach the endpoint.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrNetwork) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.Unavailable {
		return true
	}
	return false
}

// IsTransport reports a network or timeout signal.
func IsTransport(err error) bool {
	return IsNetwork(err) || IsTimeout(err)
}

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vietddude/livecluster/internal/core/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// GRPCHandler performs one method call on conn, typically by wrapping a
// generated client.
type GRPCHandler func(ctx context.Context, conn grpc.ClientConnInterface, req *domain.Request) (any, error)

// ErrNoHandler is returned for a method without a registered handler.
var ErrNoHandler = errors.New("no grpc handler registered")

// GRPCTransport invokes registered handlers over one connection per
// endpoint.
type GRPCTransport struct {
	mu       sync.RWMutex
	conns    map[string]*grpc.ClientConn
	handlers map[string]GRPCHandler
}

// NewGRPCTransport creates an empty transport.
func NewGRPCTransport() *GRPCTransport {
	return &GRPCTransport{
		conns:    make(map[string]*grpc.ClientConn),
		handlers: make(map[string]GRPCHandler),
	}
}

// Handle registers h for method.
func (t *GRPCTransport) Handle(method string, h GRPCHandler) {
	t.mu.Lock()
	t.handlers[method] = h
	t.mu.Unlock()
}

// Invoke implements cluster.Transport. Unavailable, DeadlineExceeded and
// Canceled statuses are returned as is; other statuses are application
// failures wrapped in domain.ServiceError. Protobuf results are also
// rendered as JSON into Response.Body.
func (t *GRPCTransport) Invoke(ctx context.Context, req *domain.Request, ep domain.Endpoint) (*domain.Response, error) {
	t.mu.RLock()
	h, ok := t.handlers[req.Method]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoHandler, req.Method)
	}

	conn, err := t.conn(ep)
	if err != nil {
		return nil, &domain.NetworkError{Endpoint: ep.ID(), Err: err}
	}

	v, err := h(ctx, conn, req)
	if err != nil {
		st, isStatus := status.FromError(err)
		if !isStatus {
			return nil, err
		}
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
			return nil, err
		}
		return nil, &domain.ServiceError{
			Err:         err,
			Message:     st.Message(),
			ServerError: st.Code() == codes.Internal || st.Code() == codes.Unknown,
		}
	}
	resp := &domain.Response{Value: v, Endpoint: ep.ID()}
	if msg, ok := v.(proto.Message); ok {
		body, err := protojson.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s response: %w", req.Method, err)
		}
		resp.Body = body
		resp.ContentType = "application/json"
	}
	return resp, nil
}

// Close closes every connection.
func (t *GRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for id, conn := range t.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(t.conns, id)
	}
	return errors.Join(errs...)
}

func (t *GRPCTransport) conn(ep domain.Endpoint) (*grpc.ClientConn, error) {
	t.mu.RLock()
	conn, ok := t.conns[ep.ID()]
	t.mu.RUnlock()
	if ok {
		return conn, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if conn, ok := t.conns[ep.ID()]; ok {
		return conn, nil
	}
	conn, err := dial(ep.Address())
	if err != nil {
		return nil, err
	}
	t.conns[ep.ID()] = conn
	return conn, nil
}

// dial creates a lazily connecting client; https:// and :443 targets use TLS.
func dial(endpoint string) (*grpc.ClientConn, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}
	return conn, nil
}

package errcause

import (
	"reflect"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Named errors report a name that differs from their Go type, typically
// errors decoded from a remote peer.
type Named interface {
	ErrorName() string
}

// Ancestry errors declare the names of the types they specialize. Go has no
// class hierarchy, so the raising collaborator precomputes this list.
type Ancestry interface {
	ErrorAncestors() []string
}

// Coded errors carry an application or status code.
type Coded interface {
	ErrorCode() string
}

type grpcStatus interface {
	GRPCStatus() *status.Status
}

type invocationWrapper interface {
	InvocationWrapper() bool
}

// Resolver maps a single chain node to its resolved name and code. An empty
// name means the node contributes nothing to the name set.
type Resolver func(err error) (name, code string)

// rootNames are never recorded as ancestors.
var rootNames = map[string]struct{}{
	"error":            {},
	"java.lang.Object": {},
}

// opaque wrapper types from the standard library carry no semantic type.
var opaqueTypes = map[string]struct{}{
	"fmt.wrapError":    {},
	"fmt.wrapErrors":   {},
	"errors.joinError": {},
}

// TypeName returns the declared, package-qualified Go type name of err.
func TypeName(err error) string {
	if err == nil {
		return ""
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// DefaultResolver names a node by ErrorName() or its Go type and extracts a
// code from ErrorCode(), gRPC ErrorInfo reason or gRPC status code.
func DefaultResolver(err error) (string, string) {
	declared := TypeName(err)

	name := declared
	if n, ok := err.(Named); ok && n.ErrorName() != "" {
		name = n.ErrorName()
	} else if _, opaque := opaqueTypes[declared]; opaque {
		name = ""
	}

	return name, nodeCode(err)
}

func nodeCode(err error) string {
	if c, ok := err.(Coded); ok && c.ErrorCode() != "" {
		return c.ErrorCode()
	}
	if s, ok := err.(grpcStatus); ok {
		st := s.GRPCStatus()
		if st == nil || st.Code() == codes.OK {
			return ""
		}
		for _, d := range st.Details() {
			if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetReason() != "" {
				return info.GetReason()
			}
		}
		return st.Code().String()
	}
	return ""
}

func ancestorsOf(err error) []string {
	a, ok := err.(Ancestry)
	if !ok {
		return nil
	}
	return a.ErrorAncestors()
}

func isWrapper(err error) bool {
	w, ok := err.(invocationWrapper)
	return ok && w.InvocationWrapper()
}

// unwrapOne follows a single cause link. For joined errors the first branch
// is followed.
func unwrapOne(err error) error {
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return u.Unwrap()
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if e != nil {
				return e
			}
		}
	}
	return nil
}

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/vietddude/livecluster/internal/cluster"
	"github.com/vietddude/livecluster/internal/core/domain"
	"github.com/vietddude/livecluster/internal/errcause"
	"github.com/vietddude/livecluster/internal/policy"
)

func instance(t *testing.T, server *httptest.Server, id string) *domain.Instance {
	t.Helper()
	host, port, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	p, _ := strconv.Atoi(port)
	return &domain.Instance{InstanceID: id, Host: host, Port: p}
}

func TestHTTPTransport_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/42" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing request id header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":42,"status":"paid"}`)
	}))
	defer server.Close()

	tr := NewHTTPTransport(5 * time.Second)
	req := domain.NewRequest("orders", "GET /orders/42")
	resp, err := tr.Invoke(context.Background(), req, instance(t, server, "a"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.StatusCode != 200 || resp.Endpoint != "a" {
		t.Errorf("response = %+v", resp)
	}
	body, ok := resp.Value.(map[string]any)
	if !ok || body["status"] != "paid" {
		t.Errorf("value = %#v", resp.Value)
	}
}

func TestHTTPTransport_PostsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost || r.URL.Path != "/create" || string(b) != `{"qty":1}` {
			t.Errorf("unexpected request %s %s %s", r.Method, r.URL.Path, b)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	req := domain.NewRequest("orders", "create")
	req.Body = []byte(`{"qty":1}`)
	resp, err := NewHTTPTransport(time.Second).Invoke(context.Background(), req, &domain.Instance{URL: server.URL + "/"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHTTPTransport_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPTransport(time.Second).Invoke(context.Background(),
		domain.NewRequest("orders", "GET /"), instance(t, server, "a"))

	var se *domain.ServiceError
	if !errors.As(err, &se) || !se.ServerError {
		t.Fatalf("expected server ServiceError, got %v", err)
	}
	cause := errcause.Classify(err)
	if cause.Code != "503" {
		t.Errorf("classified code = %q, want 503", cause.Code)
	}
	if !cause.HasName("github.com/vietddude/livecluster/internal/infra/transport.StatusError") {
		t.Errorf("names = %v", cause.Names)
	}
}

func TestHTTPTransport_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ep := instance(t, server, "dead")
	server.Close()

	_, err := NewHTTPTransport(time.Second).Invoke(context.Background(), domain.NewRequest("orders", "GET /"), ep)
	if !errors.Is(err, domain.ErrNetwork) || !errcause.IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestHTTPTransport_FailoverThroughCluster(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer up.Close()

	set := &policy.Set{Cluster: &policy.ClusterPolicy{
		Invoker: policy.InvokerFailover,
		Retry:   &policy.RetryPolicy{ErrorPolicy: policy.ErrorPolicy{ErrorCodes: []string{"503"}}, MaxRetries: 1},
	}}
	src, err := policy.NewStaticSource(set)
	if err != nil {
		t.Fatal(err)
	}
	router := routeTo{instance(t, down, "down"), instance(t, up, "up")}
	c := cluster.New(router, NewHTTPTransport(time.Second), src)

	resp, err := c.Invoke(context.Background(), domain.NewRequest("orders", "GET /health"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Endpoint != "up" {
		t.Errorf("served by %s, want up", resp.Endpoint)
	}
}

type routeTo []domain.Endpoint

func (r routeTo) Route(context.Context, *domain.Request) ([]domain.Endpoint, error) {
	return r, nil
}

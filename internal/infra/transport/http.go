package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"
	"github.com/vietddude/livecluster/internal/core/domain"
)

// HTTPTransport invokes endpoints over HTTP. Request.Method is either
// "VERB /path" or a bare path that is POSTed.
type HTTPTransport struct {
	client *resty.Client
}

// NewHTTPTransport creates an HTTP transport with a per-attempt timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	client := resty.New().
		SetTimeout(timeout).
		SetTransport(&http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		})
	return &HTTPTransport{client: client}
}

// Invoke implements cluster.Transport.
func (t *HTTPTransport) Invoke(ctx context.Context, req *domain.Request, ep domain.Endpoint) (*domain.Response, error) {
	verb, path := splitMethod(req.Method)

	r := t.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers).
		SetHeader("X-Request-Id", req.ID)
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
		if _, ok := req.Headers["Content-Type"]; !ok {
			r.SetHeader("Content-Type", "application/json")
		}
	}

	resp, err := r.Execute(verb, baseURL(ep)+path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &domain.NetworkError{Endpoint: ep.ID(), Err: err}
	}

	body := resp.Body()
	if resp.StatusCode() >= http.StatusBadRequest {
		statusErr := &StatusError{StatusCode: resp.StatusCode(), Body: string(body)}
		return nil, &domain.ServiceError{
			Err:         statusErr,
			Message:     statusErr.Error(),
			ServerError: resp.StatusCode() >= http.StatusInternalServerError,
		}
	}

	out := &domain.Response{
		Body:        body,
		ContentType: resp.Header().Get("Content-Type"),
		Headers:     make(map[string]string, len(resp.Header())),
		StatusCode:  resp.StatusCode(),
		Endpoint:    ep.ID(),
	}
	for k := range resp.Header() {
		out.Headers[k] = resp.Header().Get(k)
	}
	if strings.HasPrefix(out.ContentType, "application/json") && len(body) > 0 {
		if parsed, err := gabs.ParseJSON(body); err == nil {
			out.Value = parsed.Data()
		}
	}
	return out, nil
}

func baseURL(ep domain.Endpoint) string {
	addr := strings.TrimSuffix(ep.Address(), "/")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

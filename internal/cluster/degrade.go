package cluster

import (
	"fmt"
	"maps"

	"github.com/Jeffail/gabs/v2"
	"github.com/vietddude/livecluster/internal/core/domain"
	"github.com/vietddude/livecluster/internal/policy"
	"gopkg.in/yaml.v2"
)

// degradeResponse synthesizes the configured static response. The body is
// parsed according to its content type so callers receive a decoded value
// just as they would from a real call.
func degradeResponse(d *policy.DegradeConfig, endpoint string) (*domain.Response, error) {
	resp := &domain.Response{
		Body:        []byte(d.Body),
		ContentType: d.ContentType,
		Headers:     maps.Clone(d.Headers),
		StatusCode:  d.StatusCode,
		Endpoint:    endpoint,
		Degraded:    true,
	}
	if d.Body == "" {
		return resp, nil
	}

	switch d.ContentType {
	case policy.ContentTypeJSON:
		parsed, err := gabs.ParseJSON([]byte(d.Body))
		if err != nil {
			return nil, fmt.Errorf("invalid json degrade body: %w", err)
		}
		resp.Value = parsed.Data()
	case policy.ContentTypeYAML:
		var v any
		if err := yaml.Unmarshal([]byte(d.Body), &v); err != nil {
			return nil, fmt.Errorf("invalid yaml degrade body: %w", err)
		}
		resp.Value = v
	default:
		resp.Value = d.Body
	}
	return resp, nil
}

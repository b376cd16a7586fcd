package policy

import (
	"fmt"
	"net/http"

	"github.com/vietddude/livecluster/internal/errcause"
)

// Degrade content types understood by the cluster.
const (
	ContentTypeJSON = "application/json"
	ContentTypeYAML = "application/yaml"
	ContentTypeText = "text/plain"
)

// DegradeConfig describes a static response returned in place of a failure.
// The embedded ErrorPolicy selects the failures it applies to; a config with
// no criteria applies to every failure.
type DegradeConfig struct {
	ErrorPolicy `yaml:",inline" mapstructure:",squash"`

	ContentType string            `yaml:"content_type" mapstructure:"content_type"`
	Body        string            `yaml:"body"         mapstructure:"body"`
	StatusCode  int               `yaml:"status_code"  mapstructure:"status_code"`
	Headers     map[string]string `yaml:"headers"      mapstructure:"headers"`
}

// Validate fills defaults and compiles the matcher.
func (d *DegradeConfig) Validate() error {
	switch d.ContentType {
	case "":
		d.ContentType = ContentTypeJSON
	case ContentTypeJSON, ContentTypeYAML, ContentTypeText:
	default:
		return fmt.Errorf("unsupported degrade content type %q", d.ContentType)
	}
	if d.StatusCode == 0 {
		d.StatusCode = http.StatusOK
	}
	return d.ErrorPolicy.Compile()
}

// Applies reports whether the degrade config covers err.
func (d *DegradeConfig) Applies(err error, base *errcause.Cause) bool {
	if !d.IsEnabled() {
		return false
	}
	if d.Empty() {
		return true
	}
	return d.ErrorPolicy.Match(err, base)
}

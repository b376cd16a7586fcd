package policy

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Document is a loosely typed policy description as read from YAML config or
// from the policy store.
type Document map[string]any

// ServiceDocuments holds the service-level document and per-method overrides
// of one service.
type ServiceDocuments struct {
	Policy  Document
	Methods map[string]Document
}

// Decode converts doc into an uncompiled Set.
func Decode(doc Document) (*Set, error) {
	set := &Set{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: set,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(normalize(map[string]any(doc))); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	return set, nil
}

// Merge deep-merges override onto base. Neither input is modified.
func Merge(base, override Document) Document {
	out := make(Document, len(base)+len(override))
	for k, v := range normalize(map[string]any(base)).(map[string]any) {
		out[k] = v
	}
	for k, v := range normalize(map[string]any(override)).(map[string]any) {
		if bm, ok := out[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				out[k] = map[string]any(Merge(bm, om))
				continue
			}
		}
		out[k] = v
	}
	return out
}

// Build decodes the documents of every service into sets keyed by Key.
// Method documents are merged over their service document, which is merged
// over defaults.
func Build(defaults Document, services map[string]ServiceDocuments) (map[string]*Set, error) {
	sets := make(map[string]*Set)
	for service, docs := range services {
		serviceDoc := Merge(defaults, docs.Policy)
		set, err := Decode(serviceDoc)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", service, err)
		}
		sets[Key(service, "")] = set

		for method, methodDoc := range docs.Methods {
			set, err := Decode(Merge(serviceDoc, methodDoc))
			if err != nil {
				return nil, fmt.Errorf("service %s method %s: %w", service, method, err)
			}
			sets[Key(service, method)] = set
		}
	}
	return sets, nil
}

// normalize converts the map[interface{}]interface{} values produced by
// yaml.v2 into map[string]any so documents can be merged.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case Document:
		return normalize(map[string]any(t))
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

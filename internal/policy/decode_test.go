package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"gopkg.in/yaml.v2"
)

const servicesYAML = `
defaults:
  cluster:
    invoker: failover
    retry:
      max_retries: 2
      interval: 50ms
      error_codes: ["503"]
services:
  orders:
    policy:
      concurrency:
        max_concurrency: 10
        max_wait: 200ms
      rate:
        threshold: 100
        window: 1s
      load:
        cpu: 70
        throttles:
          - ratio: 50
          - cpu: 90
            ratio: 90
      degrades:
        - error_codes: ["503"]
          content_type: application/json
          body: '{"items":[]}'
    methods:
      Create:
        cluster:
          retry:
            max_retries: 0
            methods: Create,Update
`

type testDocs struct {
	Defaults map[string]any `yaml:"defaults"`
	Services map[string]struct {
		Policy  map[string]any            `yaml:"policy"`
		Methods map[string]map[string]any `yaml:"methods"`
	} `yaml:"services"`
}

func buildFromYAML(t *testing.T) map[string]*Set {
	t.Helper()
	var docs testDocs
	if err := yaml.Unmarshal([]byte(servicesYAML), &docs); err != nil {
		t.Fatal(err)
	}
	services := make(map[string]ServiceDocuments)
	for name, svc := range docs.Services {
		methods := make(map[string]Document)
		for m, d := range svc.Methods {
			methods[m] = d
		}
		services[name] = ServiceDocuments{Policy: svc.Policy, Methods: methods}
	}
	sets, err := Build(docs.Defaults, services)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return sets
}

func TestBuild_FromYAML(t *testing.T) {
	sets := buildFromYAML(t)

	svc, ok := sets["orders"]
	if !ok {
		t.Fatal("missing service set")
	}
	if err := svc.Compile(); err != nil {
		t.Fatal(err)
	}
	if svc.Cluster.Retry.MaxRetries != 2 || svc.Cluster.Retry.Interval != 50*time.Millisecond {
		t.Errorf("defaults not inherited: %+v", svc.Cluster.Retry)
	}
	if !svc.Cluster.Retry.MatchCode("503") {
		t.Error("retry error codes not decoded")
	}
	if svc.Concurrency.MaxWait != 200*time.Millisecond {
		t.Errorf("max_wait = %s", svc.Concurrency.MaxWait)
	}
	if svc.Rate.PermitIntervalMicros() != 10_000 {
		t.Errorf("permit interval = %d", svc.Rate.PermitIntervalMicros())
	}
	if got := svc.Load.Compiled()[0].Ratio; got != 90 {
		t.Errorf("first throttle ratio = %d, want 90", got)
	}
	if len(svc.Degrades) != 1 || svc.Degrades[0].Body != `{"items":[]}` {
		t.Errorf("degrades = %+v", svc.Degrades)
	}

	create := sets["orders/Create"]
	if err := create.Compile(); err != nil {
		t.Fatal(err)
	}
	if create.Cluster.Retry.MaxRetries != 0 {
		t.Errorf("method override lost: %d", create.Cluster.Retry.MaxRetries)
	}
	if create.Cluster.Retry.Interval != 50*time.Millisecond {
		t.Error("method set should keep inherited interval")
	}
	if !create.Cluster.Retry.AllowsMethod("Update") || create.Cluster.Retry.AllowsMethod("Delete") {
		t.Error("comma separated methods not decoded")
	}
	if create.Concurrency == nil {
		t.Error("method set should inherit service concurrency")
	}
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode(Document{"clusterr": map[string]any{}})
	if err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	base := Document{"cluster": map[string]any{"invoker": "failover"}}
	override := Document{"cluster": map[string]any{"invoker": "failfast"}}
	merged := Merge(base, override)

	if merged["cluster"].(map[string]any)["invoker"] != "failfast" {
		t.Error("override not applied")
	}
	if base["cluster"].(map[string]any)["invoker"] != "failover" {
		t.Error("base modified")
	}
}

type stubLoader struct {
	sets map[string]*Set
	err  error
}

func (s *stubLoader) Load(ctx context.Context) (map[string]*Set, error) {
	return s.sets, s.err
}

func TestReloader_Reload(t *testing.T) {
	src, err := NewStaticSource(nil)
	if err != nil {
		t.Fatal(err)
	}
	loader := &stubLoader{sets: map[string]*Set{
		"orders": {Cluster: &ClusterPolicy{Invoker: InvokerFailsafe}},
	}}
	r, err := NewReloader(src, loader, "*/5 * * * *")
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := src.Policies("orders", "Get").Cluster.Invoker; got != InvokerFailsafe {
		t.Errorf("invoker = %s, want failsafe", got)
	}

	loader.err = errors.New("db down")
	if err := r.Reload(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if src.Len() != 1 {
		t.Error("failed reload should keep current policies")
	}

	if _, err := NewReloader(src, loader, "not a schedule"); err == nil {
		t.Error("expected invalid schedule error")
	}
}

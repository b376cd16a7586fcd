package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/vietddude/livecluster/internal/policy"
)

func TestBuildSets(t *testing.T) {
	rows := []PolicyRow{
		{Service: DefaultsService, Enabled: true, Document: `
cluster:
  invoker: failover
  retry:
    max_retries: 1
    interval: 20ms
`},
		{Service: "orders", Enabled: true, Document: `
concurrency:
  max_concurrency: 4
`},
		{Service: "orders", Method: "Create", Enabled: true, Document: `
cluster:
  invoker: failfast
`},
		{Service: "billing", Method: "Charge", Enabled: false, Document: `cluster: {invoker: failsafe}`},
	}

	sets, err := BuildSets(rows)
	if err != nil {
		t.Fatalf("BuildSets: %v", err)
	}
	if _, ok := sets["billing/Charge"]; ok {
		t.Error("disabled row should be skipped")
	}

	svc := sets["orders"]
	if err := svc.Compile(); err != nil {
		t.Fatal(err)
	}
	if svc.Cluster.Retry.Interval != 20*time.Millisecond || svc.Concurrency.MaxConcurrency != 4 {
		t.Errorf("service set = %+v / %+v", svc.Cluster.Retry, svc.Concurrency)
	}

	create := sets[policy.Key("orders", "Create")]
	if err := create.Compile(); err != nil {
		t.Fatal(err)
	}
	if create.Cluster.Invoker != policy.InvokerFailfast || create.Concurrency == nil {
		t.Errorf("method set = %+v", create)
	}
}

func TestBuildSets_InvalidDocument(t *testing.T) {
	_, err := BuildSets([]PolicyRow{{Service: "orders", Enabled: true, Document: "cluster: ["}})
	if err == nil {
		t.Fatal("expected yaml error")
	}
}

func TestPolicyRepo_Integration(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	db, err := NewDB(ctx, Config{URL: url})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := Migrate(ctx, db); err != nil {
		t.Fatal(err)
	}

	repo := NewPolicyRepo(db)
	row := &PolicyRow{
		Service:  "it-orders",
		Method:   "Get",
		Document: "cluster: {invoker: failsafe}",
		Enabled:  true,
		Tags:     []string{"integration"},
	}
	if err := repo.Save(ctx, row); err != nil {
		t.Fatal(err)
	}
	defer repo.Delete(ctx, row.Service, row.Method)

	row.Document = "cluster: {invoker: failfast}"
	if err := repo.Save(ctx, row); err != nil {
		t.Fatal(err)
	}

	sets, err := repo.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	set, ok := sets["it-orders/Get"]
	if !ok {
		t.Fatal("saved policy not loaded")
	}
	if set.Cluster.Invoker != policy.InvokerFailfast {
		t.Errorf("upsert not applied: %s", set.Cluster.Invoker)
	}

	rows, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range rows {
		if r.Service == "it-orders" && (len(r.Tags) != 1 || r.Tags[0] != "integration") {
			t.Errorf("tags = %v", r.Tags)
		}
	}
}

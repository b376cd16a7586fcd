package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/vietddude/livecluster/internal/core/config"
	"github.com/vietddude/livecluster/internal/infra/storage/postgres"
	"github.com/vietddude/livecluster/internal/policy"
	"gopkg.in/yaml.v2"
)

// Copies the policy documents of a config file into the policy store so a
// postgres-sourced deployment starts from the same policies.
func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if cfg.Database.URL == "" {
		panic("database.url is not set")
	}

	// Reject documents the engine would refuse before writing anything.
	if _, err := policy.Build(cfg.Cluster.DefaultPolicy, cfg.PolicyDocuments()); err != nil {
		panic(err)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		panic(err)
	}
	repo := postgres.NewPolicyRepo(db)

	count := 0
	save := func(service, method string, doc policy.Document) {
		out, err := yaml.Marshal(doc)
		if err != nil {
			panic(err)
		}
		row := &postgres.PolicyRow{Service: service, Method: method, Document: string(out), Enabled: true}
		if err := repo.Save(ctx, row); err != nil {
			panic(err)
		}
		count++
	}

	if len(cfg.Cluster.DefaultPolicy) > 0 {
		save(postgres.DefaultsService, "", cfg.Cluster.DefaultPolicy)
	}
	for name, svc := range cfg.Services {
		save(name, "", svc.Policy)
		for method, doc := range svc.Methods {
			save(name, method, doc)
		}
	}

	fmt.Fprintf(os.Stdout, "Successfully seeded %d policy documents from %s\n", count, *configPath)
}

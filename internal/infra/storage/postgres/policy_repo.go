package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/vietddude/livecluster/internal/policy"
	"gopkg.in/yaml.v2"
)

// DefaultsService is the service name of the row holding the document every
// service inherits from.
const DefaultsService = "*"

// PolicyRow is one stored policy document. Method is empty for the
// service-level document.
type PolicyRow struct {
	Service   string         `db:"service"`
	Method    string         `db:"method"`
	Document  string         `db:"document"`
	Enabled   bool           `db:"enabled"`
	Tags      pq.StringArray `db:"tags"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// PolicyRepo stores YAML policy documents and serves them as policy sets.
type PolicyRepo struct {
	db *DB
}

// NewPolicyRepo creates a new PostgreSQL policy repository.
func NewPolicyRepo(db *DB) *PolicyRepo {
	return &PolicyRepo{db: db}
}

// Save inserts or replaces a policy document.
func (r *PolicyRepo) Save(ctx context.Context, row *PolicyRow) error {
	if row.Tags == nil {
		row.Tags = pq.StringArray{}
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO resilience_policies (service, method, document, enabled, tags, updated_at)
		VALUES (:service, :method, :document, :enabled, :tags, NOW())
		ON CONFLICT (service, method) DO UPDATE
		SET document = EXCLUDED.document,
		    enabled = EXCLUDED.enabled,
		    tags = EXCLUDED.tags,
		    updated_at = NOW()`, row)
	if err != nil {
		return fmt.Errorf("failed to save policy %s: %w", policy.Key(row.Service, row.Method), err)
	}
	return nil
}

// Delete removes a policy document.
func (r *PolicyRepo) Delete(ctx context.Context, service, method string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM resilience_policies WHERE service = $1 AND method = $2`, service, method)
	if err != nil {
		return fmt.Errorf("failed to delete policy %s: %w", policy.Key(service, method), err)
	}
	return nil
}

// List returns every stored document ordered by service and method.
func (r *PolicyRepo) List(ctx context.Context) ([]PolicyRow, error) {
	var rows []PolicyRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT service, method, document, enabled, tags, updated_at
		FROM resilience_policies
		ORDER BY service, method`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	return rows, nil
}

// Load implements policy.Loader.
func (r *PolicyRepo) Load(ctx context.Context) (map[string]*policy.Set, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return BuildSets(rows)
}

// BuildSets decodes enabled rows into policy sets keyed by policy.Key.
func BuildSets(rows []PolicyRow) (map[string]*policy.Set, error) {
	var defaults policy.Document
	services := make(map[string]policy.ServiceDocuments)

	for _, row := range rows {
		if !row.Enabled {
			continue
		}
		doc := make(policy.Document)
		if err := yaml.Unmarshal([]byte(row.Document), &doc); err != nil {
			return nil, fmt.Errorf("invalid document for %s: %w", policy.Key(row.Service, row.Method), err)
		}

		if row.Service == DefaultsService {
			defaults = doc
			continue
		}
		docs := services[row.Service]
		if row.Method == "" {
			docs.Policy = doc
		} else {
			if docs.Methods == nil {
				docs.Methods = make(map[string]policy.Document)
			}
			docs.Methods[row.Method] = doc
		}
		services[row.Service] = docs
	}

	return policy.Build(defaults, services)
}

package trace

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresStore is the production Store, backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool against databaseUrl and applies any pending
// migrations before returning, so the process never serves traffic against
// a schema it hasn't fully migrated.
func NewPostgresStore(ctx context.Context, databaseUrl string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := runMigrations(databaseUrl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func runMigrations(databaseUrl string) error {
	db, err := sql.Open("pgx", databaseUrl)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	defer sourceDriver.Close()

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

const insertTraceQuery = `
	INSERT INTO request_traces (
	  request_id, tenant_id, endpoint, model, status_code,
	  request_hash, latency_ms, backend_latency_ms, queue_wait_ms, backend_ttft_ms,
	  prompt_tokens, completion_tokens, total_tokens,
	  request_json, response_json, error_json,
	  policy_version, plan_json, decision_trace_json, cache_json
	)
	VALUES (
	  $1, $2, $3, $4, $5,
	  $6, $7, $8, $9, $10,
	  $11, $12, $13,
	  $14, $15, $16,
	  $17, $18, $19, $20
	)
`

func (s *PostgresStore) Insert(ctx context.Context, record Record) error {
	_, err := s.pool.Exec(ctx, insertTraceQuery,
		record.RequestID, record.TenantID, record.Endpoint, record.Model, record.StatusCode,
		record.RequestHash, record.LatencyMs, record.BackendLatencyMs, record.QueueWaitMs, record.BackendTtftMs,
		record.PromptTokens, record.CompletionTokens, record.TotalTokens,
		record.RequestJson, record.ResponseJson, record.ErrorJson,
		record.PolicyVersion, record.PlanJson, record.DecisionTraceJson, record.CacheJson,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trace: %w", err)
	}
	return nil
}

const listTracesQuery = `
	SELECT
	  request_id, tenant_id, created_at::text, status_code, model,
	  latency_ms, backend_latency_ms, queue_wait_ms, request_hash,
	  policy_version, cache_json, plan_json
	FROM request_traces
	ORDER BY created_at DESC
	LIMIT $1
`

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, listTracesQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var summary Summary
		if err := rows.Scan(
			&summary.RequestID, &summary.TenantID, &summary.CreatedAt, &summary.StatusCode, &summary.Model,
			&summary.LatencyMs, &summary.BackendLatencyMs, &summary.QueueWaitMs, &summary.RequestHash,
			&summary.PolicyVersion, &summary.CacheJson, &summary.PlanJson,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trace summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

const getTraceQuery = `
	SELECT
	  request_id, tenant_id, endpoint, model, status_code,
	  request_hash, latency_ms, backend_latency_ms, queue_wait_ms, backend_ttft_ms,
	  prompt_tokens, completion_tokens, total_tokens,
	  policy_version, plan_json, decision_trace_json, cache_json,
	  request_json, response_json, error_json
	FROM request_traces
	WHERE request_id = $1
	LIMIT 1
`

func (s *PostgresStore) Get(ctx context.Context, requestID string) (*Record, error) {
	row := s.pool.QueryRow(ctx, getTraceQuery, requestID)

	var record Record
	err := row.Scan(
		&record.RequestID, &record.TenantID, &record.Endpoint, &record.Model, &record.StatusCode,
		&record.RequestHash, &record.LatencyMs, &record.BackendLatencyMs, &record.QueueWaitMs, &record.BackendTtftMs,
		&record.PromptTokens, &record.CompletionTokens, &record.TotalTokens,
		&record.PolicyVersion, &record.PlanJson, &record.DecisionTraceJson, &record.CacheJson,
		&record.RequestJson, &record.ResponseJson, &record.ErrorJson,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trace: %w", err)
	}
	return &record, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

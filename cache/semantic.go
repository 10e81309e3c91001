package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// SemanticMatch is a semantic-cache hit: the stored response and the
// cosine similarity it was found at.
type SemanticMatch struct {
	Id           string
	ResponseJson []byte
	Similarity   float64
}

// SemanticCache is the nearest-neighbor tier, backed by Postgres + pgvector.
// Entries are partitioned by tenant and plan signature so a lookup never
// crosses either boundary. Grounded on
// original_source/relay/app/db/semantic_cache_pg.py.
type SemanticCache struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

func NewSemanticCache(pool *pgxpool.Pool, logger *zap.SugaredLogger) *SemanticCache {
	return &SemanticCache{pool: pool, logger: logger}
}

// vecLiteral formats a vector the way pgvector's text input format expects:
// "[1.000000,2.000000,...]"::vector.
func vecLiteral(vector []float32) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Lookup returns the nearest stored entry for (tenantID, planSig) whose
// TTL has not expired, regardless of similarity — the caller (the cache
// layer orchestrator) is responsible for comparing Similarity against the
// tenant's configured threshold before treating this as a hit.
func (c *SemanticCache) Lookup(ctx context.Context, tenantID string, planSig string, queryVector []float32) (*SemanticMatch, error) {
	const query = `
		SELECT
		  id::text AS id,
		  response_json,
		  (1 - (embedding <=> $3::vector)) AS similarity
		FROM semantic_cache_entries
		WHERE tenant_id = $1
		  AND plan_sig = $2
		  AND expires_at > now()
		ORDER BY embedding <=> $3::vector
		LIMIT 1
	`

	row := c.pool.QueryRow(ctx, query, tenantID, planSig, vecLiteral(queryVector))

	var match SemanticMatch
	if err := row.Scan(&match.Id, &match.ResponseJson, &match.Similarity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("semantic cache lookup failed: %w", err)
	}

	return &match, nil
}

// Store inserts a new semantic-cache entry, expiring after ttl.
func (c *SemanticCache) Store(ctx context.Context, tenantID string, planSig string, requestHash string, promptText string, vector []float32, responseJson []byte, ttl time.Duration) (string, error) {
	const query = `
		INSERT INTO semantic_cache_entries
		  (tenant_id, plan_sig, request_hash, prompt_text, embedding, response_json, expires_at)
		VALUES
		  ($1, $2, $3, $4, $5::vector, $6::jsonb, now() + $7::interval)
		RETURNING id::text AS id
	`

	var id string
	err := c.pool.QueryRow(ctx, query,
		tenantID, planSig, requestHash, promptText, vecLiteral(vector), responseJson,
		fmt.Sprintf("%d seconds", int(ttl.Seconds())),
	).Scan(&id)

	if err != nil {
		return "", fmt.Errorf("semantic cache store failed: %w", err)
	}
	return id, nil
}

// Package trace persists one row per terminal request outcome — hit,
// miss-served, degraded, rejected, queue-full, or backend-error — and
// serves the admin trace browser's reads. Grounded on
// original_source/relay/app/db/postgres.py (insert_trace's exact column
// list) and app/db/traces_read.py (list_traces/get_trace).
//
// The teacher's equivalent (tarsy's pkg/database) wraps entgo.io/ent;
// ent requires `go generate`/entc codegen, which the toolchain-free
// constraint this repository was built under rules out, so this package
// talks to Postgres directly through jackc/pgx/v5 with hand-written SQL,
// keeping golang-migrate/migrate/v4 and its go:embed migration-loading
// idiom from the teacher's stack.
package trace

import "context"

// Record is one terminal outcome of a request, the unit a Store persists.
type Record struct {
	RequestID         string
	TenantID          string
	Endpoint          string
	Model             string
	StatusCode        int
	RequestHash       string
	LatencyMs         int
	BackendLatencyMs  *int
	QueueWaitMs       *int
	BackendTtftMs     *int
	PromptTokens      *int
	CompletionTokens  *int
	TotalTokens       *int
	RequestJson       []byte
	ResponseJson      []byte
	ErrorJson         []byte
	PolicyVersion     string
	PlanJson          []byte
	DecisionTraceJson []byte
	CacheJson         []byte
}

// Summary is the projection list_traces returns: enough to render the
// admin dashboard's table without shipping full request/response bodies.
type Summary struct {
	RequestID        string
	TenantID         string
	CreatedAt        string
	StatusCode       int
	Model            string
	LatencyMs        int
	BackendLatencyMs *int
	QueueWaitMs      *int
	RequestHash      string
	PolicyVersion    string
	CacheJson        []byte
	PlanJson         []byte
}

// Store persists and retrieves trace records. Exactly one Insert call is
// made per terminal request outcome.
type Store interface {
	Insert(ctx context.Context, record Record) error
	List(ctx context.Context, limit int) ([]Summary, error)
	Get(ctx context.Context, requestID string) (*Record, error)
	Close()
}

// Package admin serves the relay's trace browser: a recent-traces list and
// a per-trace detail view, each with a JSON sibling. Grounded on the
// teacher's admin/admin.go (html/template.Must dashboard, AdminServer
// wrapping a manager, mux.HandleFunc registration) and on
// original_source/relay/app/api/admin_routes.py, whose list/detail/JSON
// endpoint set this package reproduces against trace.Store instead of
// reading Postgres rows directly.
package admin

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/relaycore/llmrelay/trace"
)

// Server serves the /admin/traces routes against a trace.Store.
type Server struct {
	Store trace.Store
}

func NewServer(store trace.Store) *Server {
	return &Server{Store: store}
}

// RegisterRoutes registers the trace browser on router. The ".json" detail
// route is registered before the HTML one: mux matches routes in order, and
// a bare {request_id} would otherwise also match "<id>.json".
func (a *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/traces", a.handleList).Methods(http.MethodGet)
	router.HandleFunc("/admin/traces.json", a.handleListJson).Methods(http.MethodGet)
	router.HandleFunc("/admin/traces/{request_id}.json", a.handleDetailJson).Methods(http.MethodGet)
	router.HandleFunc("/admin/traces/{request_id}", a.handleDetail).Methods(http.MethodGet)
}

func limitFromQuery(r *http.Request) int {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 1 && parsed <= 500 {
			limit = parsed
		}
	}
	return limit
}

func (a *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := limitFromQuery(r)
	summaries, err := a.Store.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to load traces: "+err.Error(), http.StatusInternalServerError)
		return
	}

	tmpl := template.Must(template.New("traces").Funcs(template.FuncMap{
		"truncate": truncateJson,
	}).Parse(tracesListTemplate))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, struct {
		Limit     int
		Summaries []trace.Summary
	}{Limit: limit, Summaries: summaries}); err != nil {
		http.Error(w, "Template execution failed: "+err.Error(), http.StatusInternalServerError)
	}
}

func (a *Server) handleListJson(w http.ResponseWriter, r *http.Request) {
	limit := limitFromQuery(r)
	summaries, err := a.Store.List(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

func (a *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]
	record, err := a.Store.Get(r.Context(), requestID)
	if err != nil {
		http.Error(w, "Failed to load trace: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if record == nil {
		w.WriteHeader(http.StatusNotFound)
		template.Must(template.New("notfound").Parse(traceNotFoundTemplate)).Execute(w, requestID)
		return
	}

	tmpl := template.Must(template.New("trace").Funcs(template.FuncMap{
		"pretty": prettyJson,
	}).Parse(traceDetailTemplate))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, record); err != nil {
		http.Error(w, "Template execution failed: "+err.Error(), http.StatusInternalServerError)
	}
}

func (a *Server) handleDetailJson(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]
	record, err := a.Store.Get(r.Context(), requestID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if record == nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not_found"})
		return
	}
	json.NewEncoder(w).Encode(record)
}

// prettyJson re-indents a stored JSON blob for display, falling back to the
// raw bytes (as a string) if it isn't valid JSON — trace fields are
// optional and may be empty.
func prettyJson(raw []byte) string {
	if len(raw) == 0 {
		return "null"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(pretty)
}

// truncateJson renders a short single-line preview for the list table.
func truncateJson(raw []byte) string {
	pretty := prettyJson(raw)
	pretty = strings.ReplaceAll(pretty, "\n", " ")
	if len(pretty) > 120 {
		return pretty[:120] + "..."
	}
	return pretty
}

const tracesListTemplate = `<!DOCTYPE html>
<html><head><title>Relay Traces</title>
<style>body{font-family:ui-sans-serif,system-ui; padding:16px;}
table{border-collapse:collapse; width:100%;}
th,td{border:1px solid #ddd; padding:8px; font-size:14px;}
th{background:#f6f6f6; text-align:left;}
code{font-family:ui-monospace,Menlo,monospace; font-size:12px;}</style>
</head><body>
<h2>Recent Traces (limit={{.Limit}})</h2>
<p>Tip: open a trace to see routing, cache provenance, scheduler lane, and timings.</p>
<table>
<tr><th>created_at</th><th>request_id</th><th>tenant</th><th>status</th>
<th>latency_ms</th><th>queue_wait_ms</th><th>backend_ms</th><th>cache</th><th>plan</th></tr>
{{range .Summaries}}<tr>
<td>{{.CreatedAt}}</td>
<td><a href="/admin/traces/{{.RequestID}}">{{.RequestID}}</a></td>
<td>{{.TenantID}}</td>
<td>{{.StatusCode}}</td>
<td>{{.LatencyMs}}</td>
<td>{{.QueueWaitMs}}</td>
<td>{{.BackendLatencyMs}}</td>
<td><code>{{truncate .CacheJson}}</code></td>
<td><code>{{truncate .PlanJson}}</code></td>
</tr>
{{end}}</table>
<p>JSON endpoints: <code>/admin/traces.json</code>, <code>/admin/traces/{request_id}.json</code></p>
</body></html>`

const traceDetailTemplate = `<!DOCTYPE html>
<html><head><title>Trace Detail</title>
<style>body{font-family:ui-sans-serif,system-ui; padding:16px;} a{color:#0366d6;}
pre{font-family:ui-monospace,Menlo,monospace; font-size:12px; background:#f6f6f6; padding:12px; overflow:auto; border-radius:8px;}</style>
</head><body>
<p><a href="/admin/traces">&larr; Back to list</a></p>
<h2>Trace: {{.RequestID}}</h2>
<ul>
<li><b>tenant_id</b>: {{.TenantID}}</li>
<li><b>endpoint</b>: {{.Endpoint}}</li>
<li><b>model</b>: {{.Model}}</li>
<li><b>status_code</b>: {{.StatusCode}}</li>
<li><b>latency_ms</b>: {{.LatencyMs}}</li>
<li><b>queue_wait_ms</b>: {{.QueueWaitMs}}</li>
<li><b>backend_latency_ms</b>: {{.BackendLatencyMs}}</li>
</ul>
<h3>Plan (plan_json)</h3><pre>{{pretty .PlanJson}}</pre>
<h3>Decision Trace (decision_trace_json)</h3><pre>{{pretty .DecisionTraceJson}}</pre>
<h3>Cache Provenance (cache_json)</h3><pre>{{pretty .CacheJson}}</pre>
<h3>Request (request_json)</h3><pre>{{pretty .RequestJson}}</pre>
<h3>Response (response_json)</h3><pre>{{pretty .ResponseJson}}</pre>
<h3>Error (error_json)</h3><pre>{{pretty .ErrorJson}}</pre>
<p>JSON endpoint: <code>/admin/traces/{{.RequestID}}.json</code></p>
</body></html>`

const traceNotFoundTemplate = `<!DOCTYPE html><html><body><h3>Not found</h3><p>{{.}}</p></body></html>`

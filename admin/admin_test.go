package admin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/llmrelay/admin"
	"github.com/relaycore/llmrelay/trace"
)

func newTestRouter(t *testing.T, store trace.Store) *mux.Router {
	t.Helper()
	server := admin.NewServer(store)
	router := mux.NewRouter()
	server.RegisterRoutes(router)
	return router
}

func TestHandleList_RendersHtmlTable(t *testing.T) {
	store := trace.NewMemoryStore()
	require.NoError(t, store.Insert(context.Background(), trace.Record{RequestID: "req-1", TenantID: "acme", StatusCode: 200}))

	router := newTestRouter(t, store)
	req := httptest.NewRequest(http.MethodGet, "/admin/traces", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "req-1")
	assert.Contains(t, recorder.Body.String(), "acme")
}

func TestHandleListJson_ReturnsSummaries(t *testing.T) {
	store := trace.NewMemoryStore()
	require.NoError(t, store.Insert(context.Background(), trace.Record{RequestID: "req-1", TenantID: "acme"}))

	router := newTestRouter(t, store)
	req := httptest.NewRequest(http.MethodGet, "/admin/traces.json", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	var summaries []trace.Summary
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "req-1", summaries[0].RequestID)
}

func TestHandleDetail_NotFoundReturns404(t *testing.T) {
	store := trace.NewMemoryStore()
	router := newTestRouter(t, store)

	req := httptest.NewRequest(http.MethodGet, "/admin/traces/missing", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHandleDetailJson_ReturnsRecord(t *testing.T) {
	store := trace.NewMemoryStore()
	require.NoError(t, store.Insert(context.Background(), trace.Record{
		RequestID:  "req-1",
		TenantID:   "acme",
		PlanJson:   []byte(`{"plan_name":"short"}`),
		StatusCode: 200,
	}))

	router := newTestRouter(t, store)
	req := httptest.NewRequest(http.MethodGet, "/admin/traces/req-1.json", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	var record trace.Record
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &record))
	assert.Equal(t, "acme", record.TenantID)
}

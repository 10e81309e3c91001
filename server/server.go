// Package server wires normalize, plan, cache, admission, scheduler, backend
// and trace into the relay's two HTTP endpoints: POST /v1/chat/completions
// and GET /health. Grounded on original_source/relay/app/api/routes.py for
// the orchestration sequence and on the teacher's main.go for the
// ModelProxy/handleError request-handling idiom.
//
// Three deliberate departures from the original routes.py, each resolving
// an Open Question from the spec:
//   - the admission-reject retry-after value is read directly from
//     admission.Result.RetryAfterSeconds (itself sourced from policy), never
//     from an ambiguous identifier;
//   - semantic-cache-hit latency is measured with a clock.Clock, so it is
//     monotonic under a real clock and controllable under a fake one in
//     tests, rather than wall-clock subtraction;
//   - queue_wait_ms is computed once, after the job finishes, and written to
//     exactly one trace field.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/relaycore/llmrelay/admission"
	"github.com/relaycore/llmrelay/backend"
	"github.com/relaycore/llmrelay/cache"
	"github.com/relaycore/llmrelay/config"
	"github.com/relaycore/llmrelay/normalize"
	"github.com/relaycore/llmrelay/openai"
	"github.com/relaycore/llmrelay/plan"
	"github.com/relaycore/llmrelay/relayerr"
	"github.com/relaycore/llmrelay/scheduler"
	"github.com/relaycore/llmrelay/trace"
)

const (
	chatCompletionsEndpoint = "/v1/chat/completions"
	tenantHeader            = "X-Tenant-Id"
	defaultTenant           = "default"
)

var (
	errStreamingUnsupported = errors.New("streaming is not supported by this relay")
	errAdmissionRejected    = errors.New("admission controller predicted an slo miss")
)

// Server holds every collaborator handleChatCompletions needs. All fields
// are required; Server does not construct its own collaborators.
type Server struct {
	Policy     *config.PolicyConfig
	Scheduler  *scheduler.Scheduler
	Cache      *cache.Layer
	Backend    backend.Adapter
	TraceStore trace.Store
	Settings   config.Settings
	Logger     *zap.SugaredLogger
	Clock      clock.Clock
}

// Router builds the mux.Router the teacher's main() hands to http.Server.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc(chatCompletionsEndpoint, s.handleChatCompletions).Methods(http.MethodPost)
	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func tenantFromHeader(r *http.Request) string {
	tenantID := r.Header.Get(tenantHeader)
	if tenantID == "" {
		return defaultTenant
	}
	return tenantID
}

// traceInput is the subset of request-scoped state insertTrace needs to
// build a trace.Record; it exists so handleChatCompletions' many exit
// points can each supply only what they know at that point.
type traceInput struct {
	requestID     string
	tenantID      string
	model         string
	statusCode    int
	requestHash   string
	latencyMs     int
	backendLatMs  *int
	queueWaitMs   *int
	backendTtftMs *int
	promptTokens  *int
	compTokens    *int
	totalTokens   *int
	requestJson   []byte
	responseJson  []byte
	errorJson     []byte
	policyVersion string
	planJson      []byte
	decisionJson  []byte
	cacheJson     []byte
}

func (s *Server) insertTrace(ctx context.Context, in traceInput) {
	if s.TraceStore == nil {
		return
	}
	err := s.TraceStore.Insert(ctx, trace.Record{
		RequestID:         in.requestID,
		TenantID:          in.tenantID,
		Endpoint:          chatCompletionsEndpoint,
		Model:             in.model,
		StatusCode:        in.statusCode,
		RequestHash:       in.requestHash,
		LatencyMs:         in.latencyMs,
		BackendLatencyMs:  in.backendLatMs,
		QueueWaitMs:       in.queueWaitMs,
		BackendTtftMs:     in.backendTtftMs,
		PromptTokens:      in.promptTokens,
		CompletionTokens:  in.compTokens,
		TotalTokens:       in.totalTokens,
		RequestJson:       in.requestJson,
		ResponseJson:      in.responseJson,
		ErrorJson:         in.errorJson,
		PolicyVersion:     in.policyVersion,
		PlanJson:          in.planJson,
		DecisionTraceJson: in.decisionJson,
		CacheJson:         in.cacheJson,
	})
	if err != nil {
		s.Logger.Warnw("Failed to write trace", "request_id", in.requestID, "error", err)
	}
}

func errorJson(errType, detail string) []byte {
	body, _ := json.Marshal(map[string]string{"type": errType, "detail": detail})
	return body
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func intPtr(v int) *int { return &v }

func (s *Server) elapsedMs(start time.Time) int {
	return int(s.Clock.Now().Sub(start) / time.Millisecond)
}

func (s *Server) writeResponse(w http.ResponseWriter, response openai.ChatCompletionResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.Logger.Errorw("Failed to encode response", "error", err)
	}
}

func buildResponse(requestID, model string, result backend.GenerationResult, now time.Time) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Id:      requestID,
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   model,
		Choices: []openai.Choice{
			{
				Index: 0,
				Message: openai.Message{
					Role:    "assistant",
					Content: result.Text,
				},
				FinishReason: "stop",
			},
		},
		Usage: openai.Usage{
			PromptTokens:     derefInt(result.PromptTokens),
			CompletionTokens: derefInt(result.CompletionTokens),
			TotalTokens:      derefInt(result.TotalTokens),
		},
	}
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := s.Clock.Now()

	var request openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		relayerr.WriteError(w, relayerr.NewBadRequest(err))
		return
	}
	defer r.Body.Close()

	if request.Stream {
		relayerr.WriteError(w, relayerr.NewBadRequest(errStreamingUnsupported))
		return
	}

	requestID := uuid.New().String()
	tenantID := tenantFromHeader(r)
	tenantPolicy := s.Policy.Tenant(tenantID)

	normalized := normalize.Messages(request.Messages)
	promptChars := len(normalized.CanonicalText)

	var overrideTemperature *float64
	if request.Temperature != nil {
		overrideTemperature = request.Temperature
	}
	var overrideMaxTokens *int
	if request.MaxTokens != nil {
		overrideMaxTokens = request.MaxTokens
	}

	executionPlan, decisionTrace := plan.BuildPlan(s.Policy, tenantID, promptChars, overrideTemperature, overrideMaxTokens)
	planSig, err := plan.Signature(executionPlan)
	if err != nil {
		relayerr.WriteError(w, relayerr.NewBadRequest(err))
		return
	}

	requestJson, _ := json.Marshal(request)
	requestHash := normalized.RequestHash

	lookup := s.Cache.Lookup(ctx, tenantID, planSig, requestHash, normalized.CanonicalText, tenantPolicy.Caching)
	provenance := lookup.Provenance
	if lookup.Hit {
		var response openai.ChatCompletionResponse
		if err := json.Unmarshal(lookup.ResponseJson, &response); err == nil {
			response.Id = requestID
			provenanceJson, _ := json.Marshal(provenance)
			planJson, _ := json.Marshal(executionPlan)
			decisionJson, _ := json.Marshal(decisionTrace)
			s.writeResponse(w, response)
			s.insertTrace(ctx, traceInput{
				requestID:     requestID,
				tenantID:      tenantID,
				model:         request.Model,
				statusCode:    http.StatusOK,
				requestHash:   requestHash,
				latencyMs:     s.elapsedMs(start),
				promptTokens:  intPtr(response.Usage.PromptTokens),
				compTokens:    intPtr(response.Usage.CompletionTokens),
				totalTokens:   intPtr(response.Usage.TotalTokens),
				requestJson:   requestJson,
				responseJson:  lookup.ResponseJson,
				policyVersion: s.Policy.PolicyVersion,
				planJson:      planJson,
				decisionJson:  decisionJson,
				cacheJson:     provenanceJson,
			})
			return
		}
	}

	lane := s.Scheduler.LaneForPromptChars(promptChars)
	depth := s.Scheduler.QueueDepth(lane)
	admissionResult, predictedWaitMs := admission.Check(s.Policy.Scheduler.Admission, s.Policy.Scheduler.Workers, lane, tenantPolicy.LatencySloMs, depth)
	s.Logger.Debugw("admission decision", "request_id", requestID, "lane", lane, "depth", depth, "predicted_wait_ms", predictedWaitMs, "reason", admissionResult.Reason)
	provenance.Scheduler = cache.SchedulerProvenance{Lane: lane, PredictedWaitMs: predictedWaitMs}

	if admissionResult.Degraded {
		decisionTrace.AppendReason(admissionResult.Reason)
		executionPlan.MaxTokens = admission.DegradeMaxTokens(s.Policy.Scheduler.Admission.Degrade, executionPlan.MaxTokens)
	}

	if admissionResult.Rejected {
		decisionTrace.AppendReason(admissionResult.Reason)
		planJson, _ := json.Marshal(executionPlan)
		decisionJson, _ := json.Marshal(decisionTrace)
		rejectErr := relayerr.NewRateLimited(errAdmissionRejected, admissionResult.RetryAfterSeconds)
		relayerr.WriteError(w, rejectErr)
		provenanceJson, _ := json.Marshal(provenance)
		s.insertTrace(ctx, traceInput{
			requestID:     requestID,
			tenantID:      tenantID,
			model:         request.Model,
			statusCode:    http.StatusTooManyRequests,
			requestHash:   requestHash,
			latencyMs:     s.elapsedMs(start),
			requestJson:   requestJson,
			errorJson:     errorJson("rate_limited", rejectErr.Error()),
			policyVersion: s.Policy.PolicyVersion,
			planJson:      planJson,
			decisionJson:  decisionJson,
			cacheJson:     provenanceJson,
		})
		return
	}

	queueEnteredAt := s.Clock.Now()
	job := &scheduler.Job{
		RequestID: requestID,
		TenantID:  tenantID,
		Lane:      lane,
		SloMs:     tenantPolicy.LatencySloMs,
		Plan:      executionPlan,
		CreatedAt: queueEnteredAt,
		Ctx:       ctx,
		Run: func(jobCtx context.Context) (backend.GenerationResult, error) {
			return s.Backend.Generate(jobCtx, request.Model, normalized.CanonicalText, executionPlan.Temperature, executionPlan.MaxTokens)
		},
	}

	if err := s.Scheduler.Submit(job); err != nil {
		planJson, _ := json.Marshal(executionPlan)
		decisionJson, _ := json.Marshal(decisionTrace)
		queueFullErr := relayerr.NewQueueFull(err)
		relayerr.WriteError(w, queueFullErr)
		provenanceJson, _ := json.Marshal(provenance)
		s.insertTrace(ctx, traceInput{
			requestID:     requestID,
			tenantID:      tenantID,
			model:         request.Model,
			statusCode:    http.StatusServiceUnavailable,
			requestHash:   requestHash,
			latencyMs:     s.elapsedMs(start),
			requestJson:   requestJson,
			errorJson:     errorJson("queue_full", err.Error()),
			policyVersion: s.Policy.PolicyVersion,
			planJson:      planJson,
			decisionJson:  decisionJson,
			cacheJson:     provenanceJson,
		})
		return
	}

	result, err := job.Wait(ctx)
	if err != nil {
		planJson, _ := json.Marshal(executionPlan)
		decisionJson, _ := json.Marshal(decisionTrace)
		backendErr := relayerr.NewBackendError(err)
		relayerr.WriteError(w, backendErr)
		queueWaitMs := int(s.Clock.Now().Sub(queueEnteredAt) / time.Millisecond)
		provenance.Scheduler.QueueWaitMs = &queueWaitMs
		provenanceJson, _ := json.Marshal(provenance)
		s.insertTrace(ctx, traceInput{
			requestID:     requestID,
			tenantID:      tenantID,
			model:         request.Model,
			statusCode:    http.StatusBadGateway,
			requestHash:   requestHash,
			latencyMs:     s.elapsedMs(start),
			requestJson:   requestJson,
			errorJson:     errorJson("backend_error", err.Error()),
			policyVersion: s.Policy.PolicyVersion,
			planJson:      planJson,
			decisionJson:  decisionJson,
			cacheJson:     provenanceJson,
		})
		return
	}

	queueWaitMs := int(s.Clock.Now().Sub(queueEnteredAt)/time.Millisecond) - result.BackendLatencyMs
	if queueWaitMs < 0 {
		queueWaitMs = 0
	}

	response := buildResponse(requestID, request.Model, result, s.Clock.Now())
	responseJson, _ := json.Marshal(response)

	exactTtl := time.Duration(s.Settings.ExactCacheTtlSeconds) * time.Second
	semanticTtl := time.Duration(s.Settings.SemanticCacheTtlSeconds) * time.Second
	s.Cache.Store(ctx, tenantID, planSig, requestHash, normalized.CanonicalText, responseJson, tenantPolicy.Caching, exactTtl, semanticTtl, &provenance)

	provenance.Scheduler.QueueWaitMs = &queueWaitMs
	planJson, _ := json.Marshal(executionPlan)
	decisionJson, _ := json.Marshal(decisionTrace)
	provenanceJson, _ := json.Marshal(provenance)

	s.writeResponse(w, response)
	s.insertTrace(ctx, traceInput{
		requestID:     requestID,
		tenantID:      tenantID,
		model:         request.Model,
		statusCode:    http.StatusOK,
		requestHash:   requestHash,
		latencyMs:     s.elapsedMs(start),
		backendLatMs:  intPtr(result.BackendLatencyMs),
		queueWaitMs:   intPtr(queueWaitMs),
		backendTtftMs: result.BackendTtftMs,
		promptTokens:  result.PromptTokens,
		compTokens:    result.CompletionTokens,
		totalTokens:   result.TotalTokens,
		requestJson:   requestJson,
		responseJson:  responseJson,
		policyVersion: s.Policy.PolicyVersion,
		planJson:      planJson,
		decisionJson:  decisionJson,
		cacheJson:     provenanceJson,
	})
}

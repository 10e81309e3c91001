// Package plan implements the policy engine: it turns a tenant identifier
// and a normalized request into an immutable ExecutionPlan plus the
// DecisionTrace explaining how the plan was chosen. Grounded on
// original_source/relay/app/core/policy_engine.py.
package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/relaycore/llmrelay/config"
)

// ExecutionPlan is the immutable output of BuildPlan. Invariant: MaxTokens
// >= 1 and 0 <= Temperature <= 2; callers that apply admission-controller
// degrade must preserve this invariant.
type ExecutionPlan struct {
	PlanName        string `json:"plan_name"`
	Tier            string `json:"tier"`
	DecodingProfile string `json:"decoding_profile"`
	MaxTokens       int    `json:"max_tokens"`
	Temperature     float64 `json:"temperature"`
	Cache           config.TenantCaching `json:"cache"`
}

// DecisionTrace records how a plan was chosen. Reasons is append-only:
// later components (the admission controller) append further entries.
type DecisionTrace struct {
	Reasons       []string `json:"reasons"`
	Bucket        string   `json:"bucket"`
	TenantID      string   `json:"tenant_id"`
	PolicyVersion string   `json:"policy_version"`
}

// AppendReason appends a reason string to the trace, in place.
func (t *DecisionTrace) AppendReason(reason string) {
	t.Reasons = append(t.Reasons, reason)
}

var lengthBucketOrder = []string{"short", "medium", "long"}

func pickLengthBucket(policy *config.PolicyConfig, promptChars int) string {
	for _, name := range lengthBucketOrder {
		bucket, ok := policy.Routing.LengthBuckets[name]
		if !ok {
			continue
		}
		if promptChars <= bucket.MaxChars {
			return name
		}
	}
	return "long"
}

var defaultPlanConfig = config.PlanConfig{
	Tier:            "standard",
	DecodingProfile: "standard",
	MaxTokens:       256,
	Temperature:     0.7,
}

// BuildPlan resolves the tenant (falling back to the policy's mandatory
// "default" tenant), buckets the request by prompt length, and selects a
// plan from policy.plans[bucket], falling back to policy.plans["short"]
// and finally a hard-coded default. Caller-supplied overrideTemperature and
// overrideMaxTokens, when non-nil, replace the policy's values verbatim —
// no clamping happens here; clamping is the admission controller's job.
func BuildPlan(policy *config.PolicyConfig, tenantID string, promptChars int, overrideTemperature *float64, overrideMaxTokens *int) (ExecutionPlan, DecisionTrace) {
	tenant := policy.Tenant(tenantID)
	bucket := pickLengthBucket(policy, promptChars)

	planCfg, ok := policy.Plans[bucket]
	if !ok {
		planCfg, ok = policy.Plans["short"]
	}
	if !ok {
		planCfg = defaultPlanConfig
	}

	temperature := planCfg.Temperature
	if overrideTemperature != nil {
		temperature = *overrideTemperature
	}

	maxTokens := planCfg.MaxTokens
	if overrideMaxTokens != nil {
		maxTokens = *overrideMaxTokens
	}

	executionPlan := ExecutionPlan{
		PlanName:        bucket,
		Tier:            planCfg.Tier,
		DecodingProfile: planCfg.DecodingProfile,
		MaxTokens:       maxTokens,
		Temperature:     temperature,
		Cache:           tenant.Caching,
	}

	trace := DecisionTrace{
		Reasons: []string{
			fmt.Sprintf("bucket=%s (prompt_chars=%d)", bucket, promptChars),
			fmt.Sprintf("tenant=%s", tenantID),
			"plan selected from policy.plans[bucket]",
		},
		Bucket:        bucket,
		TenantID:      tenantID,
		PolicyVersion: policy.PolicyVersion,
	}

	return executionPlan, trace
}

// Signature computes the plan signature: the plan marshaled with sorted
// object keys, hashed with SHA-256 and truncated to 16 hex characters.
// Grounded on utils/cache_keys.py::plan_signature, whose orjson.OPT_SORT_KEYS
// behavior is reproduced here by marshaling through a map[string]any —
// encoding/json always emits map keys in sorted order, giving the same
// canonical byte sequence orjson's sort option guarantees.
func Signature(executionPlan ExecutionPlan) (string, error) {
	asMap, err := toMap(executionPlan)
	if err != nil {
		return "", fmt.Errorf("failed to convert plan to map: %w", err)
	}

	canonical, err := marshalSorted(asMap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16], nil
}

// toMap round-trips v through JSON into a map[string]any so that the
// subsequent marshal emits keys in sorted order regardless of v's original
// struct field order.
func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}
	return asMap, nil
}

// marshalSorted marshals a map[string]any, relying on encoding/json's
// documented guarantee that object keys are emitted in sorted order.
func marshalSorted(asMap map[string]any) ([]byte, error) {
	return json.Marshal(asMap)
}

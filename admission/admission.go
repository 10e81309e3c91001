// Package admission implements the admission controller: a pure function
// over the scheduler's current queue depth and the tenant's SLO. Grounded
// on original_source/relay/app/core/scheduler.py::admission_check; the
// reject reason keeps the original's "reject_predicted_slo_miss" name.
package admission

import (
	"github.com/relaycore/llmrelay/config"
)

// Result is the admission decision for one request.
type Result struct {
	Accepted bool
	Degraded bool
	Rejected bool
	Reason   string

	// RetryAfterSeconds is set only when Rejected.
	RetryAfterSeconds int
}

// Check runs the decision ladder (first matching rule wins) and returns the
// decision plus the predicted queue wait in milliseconds. It performs no
// I/O; depth must already have been read under the scheduler's lock.
func Check(admissionCfg config.SchedulerAdmission, workers int, lane string, tenantSloMs int, depth int) (Result, int) {
	if !admissionCfg.Enabled {
		return Result{Accepted: true, Reason: "admission_disabled"}, 0
	}

	if workers < 1 {
		workers = 1
	}

	avgCompute := admissionCfg.DefaultComputeMs.Long
	if lane == "short" {
		avgCompute = admissionCfg.DefaultComputeMs.Short
	}

	predictedWaitMs := (depth * avgCompute) / workers
	predictedTotalMs := predictedWaitMs + avgCompute

	if predictedTotalMs <= tenantSloMs {
		return Result{Accepted: true, Reason: "within_slo"}, predictedWaitMs
	}

	if admissionCfg.Degrade.Enabled {
		return Result{Accepted: true, Degraded: true, Reason: "degrade_to_meet_slo"}, predictedWaitMs
	}

	if admissionCfg.Reject.Enabled {
		return Result{
			Rejected: true,
			Reason:   "reject_predicted_slo_miss",
			// Taken directly from policy, not from a derived/ambiguous
			// identifier — see the admission-rejected Open Question.
			RetryAfterSeconds: admissionCfg.Reject.RetryAfterSeconds,
		}, predictedWaitMs
	}

	return Result{Accepted: true, Reason: "accept_even_if_slo_miss"}, predictedWaitMs
}

// DegradeMaxTokens applies the degrade scaling rule: max(floor, floor(maxTokens*scale)).
func DegradeMaxTokens(degradeCfg config.SchedulerDegrade, maxTokens int) int {
	scaled := int(float64(maxTokens) * degradeCfg.MaxTokensScale)
	if scaled < degradeCfg.MaxTokensFloor {
		return degradeCfg.MaxTokensFloor
	}
	return scaled
}

package admission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaycore/llmrelay/admission"
	"github.com/relaycore/llmrelay/config"
)

func baseAdmissionConfig() config.SchedulerAdmission {
	return config.SchedulerAdmission{
		Enabled: true,
		DefaultComputeMs: config.SchedulerAdmissionComputeMs{Short: 1200, Long: 3500},
		Degrade:          config.SchedulerDegrade{Enabled: true, MaxTokensFloor: 128, MaxTokensScale: 0.5},
		Reject:           config.SchedulerReject{Enabled: true, RetryAfterSeconds: 2},
	}
}

func TestCheck_AdmissionDisabled(t *testing.T) {
	cfg := baseAdmissionConfig()
	cfg.Enabled = false

	result, wait := admission.Check(cfg, 2, "short", 1000, 100)
	assert.True(t, result.Accepted)
	assert.Equal(t, "admission_disabled", result.Reason)
	assert.Equal(t, 0, wait)
}

func TestCheck_WithinSlo(t *testing.T) {
	cfg := baseAdmissionConfig()
	result, _ := admission.Check(cfg, 2, "short", 8000, 0)
	assert.True(t, result.Accepted)
	assert.False(t, result.Degraded)
	assert.Equal(t, "within_slo", result.Reason)
}

// Seed scenario 4: degrade.
func TestCheck_DegradesToMeetSlo(t *testing.T) {
	cfg := baseAdmissionConfig()
	cfg.Reject.Enabled = false

	// depth chosen so predicted_total_ms exceeds tenant_slo_ms=1000:
	// predicted_wait = depth*1200/2, predicted_total = predicted_wait+1200.
	result, predictedWaitMs := admission.Check(cfg, 2, "short", 1000, 1)
	assert.True(t, result.Accepted)
	assert.True(t, result.Degraded)
	assert.Equal(t, "degrade_to_meet_slo", result.Reason)
	assert.Equal(t, 600, predictedWaitMs)

	maxTokens := admission.DegradeMaxTokens(cfg.Degrade, 400)
	assert.Equal(t, 200, maxTokens)
}

// Seed scenario 5: reject.
func TestCheck_RejectsWithRetryAfter(t *testing.T) {
	cfg := baseAdmissionConfig()
	cfg.Degrade.Enabled = false

	result, _ := admission.Check(cfg, 2, "short", 1000, 1)
	assert.True(t, result.Rejected)
	assert.Equal(t, 2, result.RetryAfterSeconds)
}

func TestCheck_AcceptsEvenIfSloMissWhenDegradeAndRejectDisabled(t *testing.T) {
	cfg := baseAdmissionConfig()
	cfg.Degrade.Enabled = false
	cfg.Reject.Enabled = false

	result, _ := admission.Check(cfg, 2, "short", 1000, 1)
	assert.True(t, result.Accepted)
	assert.False(t, result.Degraded)
	assert.False(t, result.Rejected)
	assert.Equal(t, "accept_even_if_slo_miss", result.Reason)
}

// Admission monotonicity: increasing depth never flips reject/degrade back to accepted.
func TestCheck_MonotonicWithIncreasingDepth(t *testing.T) {
	cfg := baseAdmissionConfig()

	sawNonAccepted := false
	for depth := 0; depth <= 50; depth++ {
		result, _ := admission.Check(cfg, 2, "short", 1000, depth)
		if result.Degraded || result.Rejected {
			sawNonAccepted = true
		} else if sawNonAccepted {
			t.Fatalf("depth=%d flipped back to plain accepted after a degrade/reject was seen", depth)
		}
	}
}

func TestCheck_WorkersFloorsAtOne(t *testing.T) {
	cfg := baseAdmissionConfig()
	result, wait := admission.Check(cfg, 0, "short", 8000, 0)
	assert.True(t, result.Accepted)
	assert.Equal(t, 0, wait)
}

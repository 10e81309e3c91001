package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaycore/llmrelay/backend"
	"github.com/relaycore/llmrelay/config"
	"github.com/relaycore/llmrelay/scheduler"
)

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		ShortMaxPromptChars:  1200,
		Workers:              1,
		MaxQueueDepthPerLane: 10,
	}
}

func newJob(tenant string, order *[]string, mu *sync.Mutex, name string) *scheduler.Job {
	return &scheduler.Job{
		TenantID: tenant,
		Lane:     scheduler.LaneShort,
		Run: func(ctx context.Context) (backend.GenerationResult, error) {
			mu.Lock()
			*order = append(*order, name)
			mu.Unlock()
			return backend.GenerationResult{Text: name}, nil
		},
	}
}

func TestScheduler_FairInterleaving(t *testing.T) {
	var mu sync.Mutex
	var order []string

	logger := zap.NewNop().Sugar()
	sched := scheduler.New(testConfig(), clock.New(), logger)

	jobA1 := newJob("A", &order, &mu, "A1")
	jobB1 := newJob("B", &order, &mu, "B1")
	jobA2 := newJob("A", &order, &mu, "A2")

	require.NoError(t, sched.Submit(jobA1))
	require.NoError(t, sched.Submit(jobA2))
	require.NoError(t, sched.Submit(jobB1))

	sched.Start()
	defer sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := jobA1.Wait(ctx)
	require.NoError(t, err)
	_, err = jobB1.Wait(ctx)
	require.NoError(t, err)
	_, err = jobA2.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"A1", "B1", "A2"}, order)
}

func TestScheduler_SubmitRejectsWhenQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueDepthPerLane = 1

	logger := zap.NewNop().Sugar()
	sched := scheduler.New(cfg, clock.New(), logger)

	var mu sync.Mutex
	var order []string

	require.NoError(t, sched.Submit(newJob("A", &order, &mu, "A1")))

	err := sched.Submit(newJob("A", &order, &mu, "A2"))
	require.Error(t, err)

	var queueFullErr *scheduler.QueueFullError
	assert.ErrorAs(t, err, &queueFullErr)
}

func TestScheduler_LaneForPromptChars(t *testing.T) {
	logger := zap.NewNop().Sugar()
	sched := scheduler.New(testConfig(), clock.New(), logger)

	assert.Equal(t, scheduler.LaneShort, sched.LaneForPromptChars(100))
	assert.Equal(t, scheduler.LaneLong, sched.LaneForPromptChars(1300))
}

func TestScheduler_QueueDepthReflectsSubmissions(t *testing.T) {
	logger := zap.NewNop().Sugar()
	sched := scheduler.New(testConfig(), clock.New(), logger)

	var mu sync.Mutex
	var order []string

	require.NoError(t, sched.Submit(newJob("A", &order, &mu, "A1")))
	require.NoError(t, sched.Submit(newJob("B", &order, &mu, "B1")))

	assert.Equal(t, 2, sched.QueueDepth(scheduler.LaneShort))
	assert.Equal(t, 0, sched.QueueDepth(scheduler.LaneLong))
}

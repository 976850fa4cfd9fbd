package ctxmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_SetContextState_OnlyActiveStateIsOne(t *testing.T) {
	r := NewRecorder()
	r.SetContextState("warning")

	assert.InDelta(t, 0.0, testutil.ToFloat64(r.contextState.WithLabelValues("healthy")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(r.contextState.WithLabelValues("warning")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(r.contextState.WithLabelValues("critical")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(r.contextState.WithLabelValues("overflow")), 0)

	r.SetContextState("overflow")
	assert.InDelta(t, 0.0, testutil.ToFloat64(r.contextState.WithLabelValues("warning")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(r.contextState.WithLabelValues("overflow")), 0)
}

func TestRecorder_IncActionPipelineRun(t *testing.T) {
	r := NewRecorder()
	r.IncActionPipelineRun("prune")
	r.IncActionPipelineRun("prune")
	r.IncActionPipelineRun("truncate")

	assert.InDelta(t, 2.0, testutil.ToFloat64(r.actionPipelineRunsTotal.WithLabelValues("prune")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(r.actionPipelineRunsTotal.WithLabelValues("truncate")), 0)
}

func TestRecorder_IncFallbackAttempt(t *testing.T) {
	r := NewRecorder()
	r.IncFallbackAttempt("model-a", "success")
	r.IncFallbackAttempt("model-a", "timeout")
	r.IncFallbackAttempt("model-a", "timeout")

	assert.InDelta(t, 1.0, testutil.ToFloat64(r.fallbackAttemptsTotal.WithLabelValues("model-a", "success")), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(r.fallbackAttemptsTotal.WithLabelValues("model-a", "timeout")), 0)
}

func TestRecorder_StoreSizeGauges(t *testing.T) {
	r := NewRecorder()
	r.SetCheckpointStoreSize(3)
	r.SetSnapshotStoreSize(7)

	assert.InDelta(t, 3.0, testutil.ToFloat64(r.checkpointStoreSize), 0)
	assert.InDelta(t, 7.0, testutil.ToFloat64(r.snapshotStoreSize), 0)
}

func TestRecorder_IncCompaction(t *testing.T) {
	r := NewRecorder()
	r.IncCompaction()
	r.IncCompaction()

	assert.InDelta(t, 2.0, testutil.ToFloat64(r.compactionCountTotal), 0)
}

func TestRecorder_RegistryGatherable(t *testing.T) {
	r := NewRecorder()
	r.IncCompaction()

	families, err := r.Registry().Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

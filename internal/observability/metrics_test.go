package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestTrackQueryObservesLatency(t *testing.T) {
	done := TrackQuery("get", "metrics_test")
	done()

	assert.GreaterOrEqual(t, testutil.CollectAndCount(DocumentQueryLatency, "webcarros_document_query_latency_seconds"), 1)
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "webcarros-test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	ctx, span := StartSpan(context.Background(), "test", "noop")
	assert.NotNil(t, ctx)
	EndSpan(span, errors.New("ignored"))
}

package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlabs/pricewatch/internal/progress"
)

func TestPrometheusSinkCountsJobLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	jobID := "0190f5a2-7b6e-7c1d-9f3a-2b4c6d8e0f12"
	batch := []progress.Event{
		{JobID: jobID, TS: now, Stage: progress.StageJobStart},
		{JobID: jobID, TS: now, Stage: progress.StageLocationDone, Group: "PL1", Succeeded: 1, Total: 3},
		{JobID: jobID, TS: now, Stage: progress.StageLocationDone, Group: "PL1", Failed: 1, Total: 3},
		{JobID: jobID, TS: now, Stage: progress.StageGroupDone, Group: "PL1", Succeeded: 2, Failed: 1, Total: 3},
		{JobID: jobID, TS: now, Stage: progress.StageJobDone, Dur: 42 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, float64(1), testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, float64(0), testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("success")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.locationsDone.WithLabelValues("PL1", "success")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.locationsDone.WithLabelValues("PL1", "failure")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.groupsCompleted.WithLabelValues("PL1")))
}

func TestPrometheusSinkRunningGaugeIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	jobID := "0190f5a2-7b6e-7c1d-9f3a-2b4c6d8e0f13"
	batch := []progress.Event{
		{JobID: jobID, TS: now, Stage: progress.StageJobStart},
		{JobID: jobID, TS: now, Stage: progress.StageJobStart},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.jobsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: jobID, TS: now, Stage: progress.StageJobError},
		{JobID: jobID, TS: now, Stage: progress.StageJobError},
	}))
	require.Equal(t, float64(0), testutil.ToFloat64(sink.jobsRunning))
}

func TestPublisherSinkForwardsEvents(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	sink := NewPublisherSink(pub, "pricewatch-progress", nil)

	now := time.Now()
	batch := []progress.Event{
		{JobID: "0190f5a2-7b6e-7c1d-9f3a-2b4c6d8e0f14", TS: now, Stage: progress.StageGroupDone, Group: "PL2", Succeeded: 3, Total: 3},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Len(t, pub.payloads, 1)
	require.Equal(t, "pricewatch-progress", pub.topics[0])

	msg, ok := pub.payloads[0].(eventMessage)
	require.True(t, ok)
	require.Equal(t, "GROUP_DONE", msg.Stage)
	require.Equal(t, "PL2", msg.Group)
}

type capturePublisher struct {
	topics   []string
	payloads []any
}

func (p *capturePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

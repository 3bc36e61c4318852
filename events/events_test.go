package events_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-schedules/events"
	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/schedule"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func sampleSet() *schedule.GeneratedScheduleSet {
	d := generic.MustParseDate
	return &schedule.GeneratedScheduleSet{
		LegalEntityID: "le-1",
		Frequency:     schedule.Monthly,
		Range:         generic.Range{Start: d("2024-01-01"), End: d("2024-01-31")},
		Schedules: []schedule.GeneratedSchedule{{
			ID: "s-1", LegalEntityID: "le-1", Name: "January",
			Date: d("2024-01-01"), End: d("2024-01-31"), TargetDate: d("2024-01-31"),
			ScheduleDates: []schedule.GeneratedScheduleDate{
				{MilestoneID: "pay", Date: d("2024-01-31"), Target: true},
			},
		}},
	}
}

func TestNotifier_GeneratedOverKafka(t *testing.T) {
	// GIVEN: A Kafka publisher over a recording writer
	// WHEN: A set is reported as generated
	// THEN: One message keyed by legal entity carries the period summary

	w := &recordingWriter{}
	at := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	n := events.NewNotifier(events.NewKafkaPublisherWithWriter(w))
	n.Now = func() time.Time { return at }

	require.NoError(t, n.ScheduleSetGenerated(context.Background(), sampleSet()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "le-1", string(w.msgs[0].Key))
	assert.Equal(t, "type", w.msgs[0].Headers[0].Key)

	var e events.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &e))
	assert.Equal(t, events.TypeGenerated, e.Type)
	assert.Equal(t, at, e.OccurredAt)
	assert.Equal(t, "2024-01-01", e.RangeStart)
	require.Len(t, e.Periods, 1)
	assert.Equal(t, "2024-01-31", e.Periods[0].Milestones["pay"])
}

func TestNotifier_FailedCarriesReason(t *testing.T) {
	pub := &events.MemoryPublisher{}
	n := events.NewNotifier(pub)

	cause := fmt.Errorf("load: %w", &schedule.FrequencyError{Value: "daily"})
	require.NoError(t, n.ScheduleGenerationFailed(context.Background(), "le-2", cause))

	got := pub.Events()
	require.Len(t, got, 1)
	assert.Equal(t, events.TypeFailed, got[0].Type)
	assert.Equal(t, "invalid_frequency", got[0].Reason)
	assert.Contains(t, got[0].Error, "daily")
}

func TestKafkaPublisher_WrapsWriteErrors(t *testing.T) {
	w := &recordingWriter{err: kafka.LeaderNotAvailable}
	p := events.NewKafkaPublisherWithWriter(w)

	err := p.Publish(context.Background(), events.Event{Type: events.TypeFailed, LegalEntityID: "le-1"})
	assert.ErrorIs(t, err, kafka.LeaderNotAvailable)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewPublisher_NopWithoutBrokers(t *testing.T) {
	assert.IsType(t, events.NopPublisher{}, events.NewPublisher(nil, "schedules"))
	assert.IsType(t, events.NopPublisher{}, events.NewPublisher([]string{"localhost:9092"}, ""))
	assert.IsType(t, &events.KafkaPublisher{}, events.NewPublisher([]string{"localhost:9092"}, "schedules"))
}

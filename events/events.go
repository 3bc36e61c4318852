/*
Package events publishes schedule generation outcomes.

PURPOSE:
  Downstream systems (payroll processing, calendars, notifications) learn
  about new or regenerated schedules from events instead of polling the
  store. Every GenerateAndSave outcome produces exactly one event.

EVENT TYPES:
  schedule_set.generated: The set was persisted; carries every period
  schedule_set.failed:    Generation or persistence failed; carries the reason

TRANSPORT:
  KafkaPublisher writes JSON messages to one topic, keyed by legal entity id
  so all events of one entity land on the same partition in order.
  NopPublisher is used when no brokers are configured.

SEE ALSO:
  - schedule/store.go: The Notifier interface this package implements
  - schedule/errors.go: FailureReason
*/
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/warp/payroll-schedules/schedule"
)

// Type of an event.
type Type string

const (
	TypeGenerated Type = "schedule_set.generated"
	TypeFailed    Type = "schedule_set.failed"
)

// Event is the message body.
type Event struct {
	Type          Type            `json:"type"`
	LegalEntityID string          `json:"legal_entity_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Frequency     string          `json:"frequency,omitempty"`
	RangeStart    string          `json:"range_start,omitempty"`
	RangeEnd      string          `json:"range_end,omitempty"`
	Periods       []PeriodSummary `json:"periods,omitempty"`
	Warnings      int             `json:"warnings,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// PeriodSummary is one schedule inside a generated event.
type PeriodSummary struct {
	ScheduleID string            `json:"schedule_id"`
	Name       string            `json:"name"`
	Date       string            `json:"date"`
	TargetDate string            `json:"target_date"`
	Milestones map[string]string `json:"milestones"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// =============================================================================
// NOTIFIER - schedule.Notifier over a Publisher
// =============================================================================

// Notifier turns generation outcomes into events.
type Notifier struct {
	Publisher Publisher
	Now       func() time.Time
}

var _ schedule.Notifier = (*Notifier)(nil)

func NewNotifier(p Publisher) *Notifier {
	return &Notifier{Publisher: p, Now: time.Now}
}

// ScheduleSetGenerated publishes a generated event.
func (n *Notifier) ScheduleSetGenerated(ctx context.Context, set *schedule.GeneratedScheduleSet) error {
	return n.Publisher.Publish(ctx, GeneratedEvent(set, n.now()))
}

// ScheduleGenerationFailed publishes a failed event.
func (n *Notifier) ScheduleGenerationFailed(ctx context.Context, legalEntityID string, cause error) error {
	e := Event{
		Type:          TypeFailed,
		LegalEntityID: legalEntityID,
		OccurredAt:    n.now(),
		Reason:        schedule.FailureReason(cause),
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	return n.Publisher.Publish(ctx, e)
}

func (n *Notifier) now() time.Time {
	if n.Now == nil {
		return time.Now().UTC()
	}
	return n.Now().UTC()
}

// GeneratedEvent summarises a persisted set.
func GeneratedEvent(set *schedule.GeneratedScheduleSet, at time.Time) Event {
	e := Event{
		Type:          TypeGenerated,
		LegalEntityID: set.LegalEntityID,
		OccurredAt:    at,
		Frequency:     string(set.Frequency),
		RangeStart:    set.Range.Start.String(),
		RangeEnd:      set.Range.End.String(),
		Warnings:      len(set.Warnings),
	}
	for _, s := range set.Schedules {
		ps := PeriodSummary{
			ScheduleID: s.ID,
			Name:       s.Name,
			Date:       s.Date.String(),
			TargetDate: s.TargetDate.String(),
			Milestones: make(map[string]string, len(s.ScheduleDates)),
		}
		for _, sd := range s.ScheduleDates {
			ps.Milestones[sd.MilestoneID] = sd.Date.String()
		}
		e.Periods = append(e.Periods, ps)
	}
	return e
}

// =============================================================================
// KAFKA
// =============================================================================

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to one topic.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher creates a synchronous writer over the given brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	})
}

func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish encodes and writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := Message(e)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.writer.WriteMessages(ctx, msg), "publish %s for %s", e.Type, e.LegalEntityID)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Message encodes an event as a kafka message keyed by legal entity.
func Message(e Event) (kafka.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "encode event")
	}
	return kafka.Message{
		Key:   []byte(e.LegalEntityID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}, nil
}

// =============================================================================
// NOP AND MEMORY
// =============================================================================

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// MemoryPublisher keeps events in order (for tests and the demo server).
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryPublisher) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// NewPublisher picks Kafka when brokers are configured.
func NewPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 || topic == "" {
		return NopPublisher{}
	}
	return NewKafkaPublisher(brokers, topic)
}

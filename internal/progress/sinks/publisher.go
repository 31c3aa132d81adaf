package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/progress"
)

// Publisher sends one payload to a topic; satisfied by the memory and
// Pub/Sub publishers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PublisherSink forwards progress events to an external publisher so other
// systems (dashboards, alerting) can follow job milestones.
type PublisherSink struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublisherSink wires the publisher and topic.
func NewPublisherSink(publisher Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{publisher: publisher, topic: topic, logger: logger}
}

// eventMessage is the wire form of a progress event.
type eventMessage struct {
	JobID     string    `json:"job_id"`
	TS        time.Time `json:"ts"`
	Stage     string    `json:"stage"`
	Group     string    `json:"group,omitempty"`
	GroupName string    `json:"group_name,omitempty"`
	Province  string    `json:"province,omitempty"`
	StoreName string    `json:"store_name,omitempty"`
	Succeeded int       `json:"succeeded,omitempty"`
	Failed    int       `json:"failed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// Consume publishes each event in the batch. A single publish failure aborts
// the batch; the hub logs and moves on.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		msg := eventMessage{
			JobID:     evt.JobID,
			TS:        evt.TS,
			Stage:     string(evt.Stage),
			Group:     evt.Group,
			GroupName: evt.GroupName,
			Province:  evt.Province,
			StoreName: evt.StoreName,
			Succeeded: evt.Succeeded,
			Failed:    evt.Failed,
			Total:     evt.Total,
			Note:      evt.Note,
		}
		if _, err := s.publisher.Publish(ctx, s.topic, msg); err != nil {
			return fmt.Errorf("publish progress event: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}

// Package memory provides an in-process publisher used by tests and local
// development runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// Message is one published payload retained for inspection.
type Message struct {
	ID      string
	Topic   string
	Payload []byte
}

// Publisher records every published message in memory.
type Publisher struct {
	mu       sync.Mutex
	seq      int
	messages []Message
	closed   bool
}

// NewPublisher builds an empty in-memory publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish JSON-encodes the payload and appends it to the message log.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", fmt.Errorf("publish to %q: publisher closed", topic)
	}
	p.seq++
	id := strconv.Itoa(p.seq)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Payload: data})
	return id, nil
}

// Close marks the publisher closed; further publishes fail.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// MessagesForTopic filters the log by topic.
func (p *Publisher) MessagesForTopic(topic string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Message
	for _, msg := range p.messages {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

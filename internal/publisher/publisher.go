// Package publisher defines the outbound event publishing contract used to
// announce validation milestones to external systems.
package publisher

import "context"

// Publisher delivers a JSON-encodable payload to a named topic and returns
// the broker's message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
	Close() error
}

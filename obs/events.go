package obs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Event subjects published by the pipeline.
const (
	SubjectRouterDecision = "docroute.events.router"
	SubjectBatchExecuted  = "docroute.events.batch"
	SubjectRunCompleted   = "docroute.events.run"
)

// Event is the envelope for pipeline events published to NATS.
type Event struct {
	Kind       string    `json:"kind"`
	DocumentID string    `json:"document_id,omitempty"`
	ModelID    string    `json:"model_id,omitempty"`
	Detail     any       `json:"detail,omitempty"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// Publisher publishes pipeline events to NATS. A nil Publisher (or one built
// from an empty URL) degrades gracefully: every publish is a no-op.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to the given NATS URL. An empty URL returns a nil
// publisher so callers can wire it unconditionally.
func NewPublisher(url string, opts ...nats.Option) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// Publish sends one event. Nil receivers skip publishing.
func (p *Publisher) Publish(ctx context.Context, subject string, event Event) error {
	if p == nil || p.conn == nil {
		return nil
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish event on %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}

// Package notify announces ontology updates to other systems.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject update events are published on.
const DefaultSubject = "ontology.updated"

// Event announces that a new ontology version was committed.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  string    `json:"timestamp"`
	Commit     string    `json:"commit"`
	Source     string    `json:"source"`
	DetectedAt time.Time `json:"detected_at"`
}

// Notifier delivers update events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
func (Nop) Close() error                        { return nil }

// publisher is the part of *nats.Conn the notifier uses.
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATS publishes events as JSON on a subject.
type NATS struct {
	conn    publisher
	subject string
	logger  *slog.Logger
}

// NewNATS connects to the NATS server at url.
func NewNATS(url, subject string, logger *slog.Logger) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("ontowatch"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(10),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return newNATS(conn, subject, logger), nil
}

func newNATS(conn publisher, subject string, logger *slog.Logger) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{conn: conn, subject: subject, logger: logger}
}

// Notify publishes ev and waits for the server to acknowledge the flush.
// Events without an ID get a fresh one.
func (n *NATS) Notify(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", n.subject, err)
	}
	n.logger.Info("Published update event", "subject", n.subject, "id", ev.ID, "timestamp", ev.Timestamp)
	return nil
}

// Close closes the connection.
func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}

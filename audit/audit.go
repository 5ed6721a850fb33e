package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one audit record. Every admission and every rejection produces
// exactly one event so each decision is independently observable.
type Event struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"projectId"`
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	At        time.Time      `json:"at"`
}

// NewEvent builds an event with a fresh ID and timestamp.
func NewEvent(projectID, eventType string, metadata map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      eventType,
		Metadata:  metadata,
		At:        time.Now(),
	}
}

// Sink receives audit events. The real sink is the tenant event log; the
// pipeline only depends on this interface.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// LogSink writes audit events to the structured log. Used when no durable
// event log is wired in.
type LogSink struct {
	logger *zap.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, e Event) error {
	s.logger.Info("audit event",
		zap.String("event_id", e.ID),
		zap.String("project_id", e.ProjectID),
		zap.String("type", e.Type),
		zap.Any("metadata", e.Metadata),
	)
	return nil
}

// MemorySink collects events in memory. Test double.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

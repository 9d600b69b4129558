package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a cycle event.
type EventType string

const (
	EventCommandReceived EventType = "COMMAND_RECEIVED"
	EventCommandRejected EventType = "COMMAND_REJECTED"
	EventProviderFailure EventType = "PROVIDER_FAILURE"
	EventSinkFailure     EventType = "SINK_FAILURE"
	EventCycleCompleted  EventType = "CYCLE_COMPLETED"
)

// Event is one structured record in the cycle event stream. It carries
// command and engine identifiers, never payload or state contents.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	CycleID     string    `json:"cycle_id,omitempty"`
	CommandID   string    `json:"command_id,omitempty"`
	CommandType string    `json:"command_type,omitempty"`
	EngineCode  string    `json:"engine_code,omitempty"`
	Production  bool      `json:"production"`
	Draws       int       `json:"draws,omitempty"`
	TrailHash   string    `json:"trail_hash,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Logger records cycle events. Logging is best-effort: only the audit sink
// is fail-closed, so a returned error never aborts a cycle.
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// writerLogger writes events as JSON lines to a configurable writer.
type writerLogger struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogger creates a Logger writing JSON lines to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer. Tests
// and custom sinks inject their own.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &writerLogger{writer: w}
}

func (l *writerLogger) Log(_ context.Context, event Event) error {
	fill(&event)

	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = l.writer.Write(append(data, '\n'))
	return err
}

// slogLogger forwards events to a structured slog handler.
type slogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a Logger emitting through slog. A nil logger uses
// slog.Default.
func NewSlogLogger(log *slog.Logger) Logger {
	if log == nil {
		log = slog.Default()
	}
	return &slogLogger{log: log.With("component", "audit")}
}

func (l *slogLogger) Log(ctx context.Context, event Event) error {
	fill(&event)

	level := slog.LevelInfo
	switch event.Type {
	case EventCommandRejected, EventProviderFailure, EventSinkFailure:
		level = slog.LevelWarn
	}

	attrs := []any{
		"event_id", event.ID,
		"cycle_id", event.CycleID,
		"command_id", event.CommandID,
		"command_type", event.CommandType,
		"engine_code", event.EngineCode,
		"production", event.Production,
	}
	if event.Draws > 0 {
		attrs = append(attrs, "draws", event.Draws)
	}
	if event.TrailHash != "" {
		attrs = append(attrs, "trail_hash", event.TrailHash)
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}
	l.log.Log(ctx, level, string(event.Type), attrs...)
	return nil
}

// NopLogger discards all events.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) error { return nil }

// MultiLogger fans one event out to several loggers, so a host can keep a
// JSON-lines stream for compliance and slog for operations from the same
// event flow. The first error is returned after every logger has seen the
// event.
type MultiLogger []Logger

func (m MultiLogger) Log(ctx context.Context, event Event) error {
	fill(&event)
	var first error
	for _, l := range m {
		if err := l.Log(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func fill(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}

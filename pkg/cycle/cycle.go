// Package cycle runs one command through the full certified path: gate,
// engine, draw capture, canonicalization, audit sink. The processor is the
// only call path into an engine, which is what makes the gate unbypassable
// and lets the host treat every cycle as atomic: either a complete Record
// reaches the sink and the caller, or an error comes back and no state
// transition happened.
package cycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certspin/reelcore/pkg/audit"
	"github.com/certspin/reelcore/pkg/engine"
	"github.com/certspin/reelcore/pkg/gate"
	"github.com/certspin/reelcore/pkg/rng"
)

var (
	// ErrGateNotConfigured is returned when a processor runs without a gate.
	ErrGateNotConfigured = errors.New("cycle: gate not configured (fail-closed)")
	// ErrProviderNotConfigured is returned when a processor runs without a
	// random provider.
	ErrProviderNotConfigured = errors.New("cycle: provider not configured (fail-closed)")
	// ErrSinkNotConfigured is returned when a processor runs without an
	// audit sink.
	ErrSinkNotConfigured = errors.New("cycle: audit sink not configured (fail-closed)")
)

// Record is the complete evidence of one command cycle: the inputs, the
// engine's answer, and the audit trail with its canonical form and hash.
// It carries everything a regulator needs to replay the cycle and verify
// the hash independently.
type Record struct {
	ID           string          `json:"id"`
	At           time.Time       `json:"at"`
	Production   bool            `json:"production"`
	Engine       engine.Info     `json:"engine"`
	Command      engine.Command  `json:"command"`
	InputPublic  json.RawMessage `json:"input_public,omitempty"`
	InputPrivate json.RawMessage `json:"input_private,omitempty"`
	Result       engine.Result   `json:"result"`
	Trail        audit.Trail     `json:"audit_trail"`
	Canonical    string          `json:"canonical"`
	Hash         string          `json:"hash"`
}

// Verify recomputes the canonical form and hash from the trail and checks
// them against what the record claims. A third party runs this (or its own
// encoder) before trusting a record.
func (r Record) Verify() error {
	canonical, err := audit.Canonicalize(r.Trail)
	if err != nil {
		return fmt.Errorf("cycle: record %s: %w", r.ID, err)
	}
	if canonical != r.Canonical {
		return fmt.Errorf("cycle: record %s: canonical form does not match trail", r.ID)
	}
	if got := audit.HashBytes([]byte(canonical)); got != r.Hash {
		return fmt.Errorf("cycle: record %s: hash %s does not match canonical form", r.ID, r.Hash)
	}
	return nil
}

// Sink receives completed cycle records for long-term storage. Emit is
// fail-closed: if the sink cannot commit the evidence, the cycle fails and
// the caller must not apply the state transition.
type Sink interface {
	Emit(ctx context.Context, rec Record) error
}

// Observer hooks cycle telemetry. The observability provider implements
// it; the zero processor uses a no-op.
type Observer interface {
	// TrackCycle opens a telemetry scope for one cycle. The returned
	// function closes it with the cycle's outcome.
	TrackCycle(ctx context.Context, engineCode string, commandType engine.CommandType) (context.Context, func(err error))
}

type nopObserver struct{}

func (nopObserver) TrackCycle(ctx context.Context, _ string, _ engine.CommandType) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// Processor orchestrates command cycles. It is stateless across cycles;
// one processor serves any number of concurrent sessions.
type Processor struct {
	gate     *gate.DebugGate
	provider rng.Provider
	sink     Sink
	logger   audit.Logger
	observer Observer
	clock    func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the cycle event logger. Default: events are discarded.
func WithLogger(l audit.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithObserver sets the telemetry observer.
func WithObserver(o Observer) Option {
	return func(p *Processor) { p.observer = o }
}

// WithClock overrides the record timestamp clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(p *Processor) { p.clock = clock }
}

// NewProcessor wires a processor from its collaborators. Missing required
// collaborators are detected at Process time, fail-closed.
func NewProcessor(g *gate.DebugGate, provider rng.Provider, sink Sink, opts ...Option) *Processor {
	p := &Processor{
		gate:     g,
		provider: provider,
		sink:     sink,
		logger:   audit.NopLogger{},
		observer: nopObserver{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one command against eng. public and private are the
// session's current snapshots (nil on a fresh session) and are never
// mutated; the record carries copies of them next to the engine's answer.
//
// The command passes the gate before the engine sees it. A gate rejection,
// an engine error, or a provider failure aborts the cycle: (nil, error),
// no state transition, no partial trail. A ruled business failure
// (Result.Success=false) still completes the cycle; the result's snapshots
// are normalized back to the inputs so state provably did not move.
func (p *Processor) Process(ctx context.Context, eng engine.Engine, public, private json.RawMessage, cmd engine.Command) (*Record, error) {
	if p.gate == nil {
		return nil, ErrGateNotConfigured
	}
	if p.provider == nil {
		return nil, ErrProviderNotConfigured
	}
	if p.sink == nil {
		return nil, ErrSinkNotConfigured
	}

	info := eng.Info()
	ctx, done := p.observer.TrackCycle(ctx, info.Code, cmd.Type)

	cycleID := uuid.New().String()
	base := audit.Event{
		CycleID:     cycleID,
		CommandID:   cmd.ID,
		CommandType: string(cmd.Type),
		EngineCode:  info.Code,
		Production:  p.gate.Production(),
	}
	p.log(ctx, base, audit.EventCommandReceived, nil)

	cmd, err := p.gate.Filter(cmd)
	if err != nil {
		p.log(ctx, base, audit.EventCommandRejected, err)
		done(err)
		return nil, err
	}
	if !cmd.Type.Valid() {
		err := engine.Errorf(engine.UnsupportedCommand, cmd, "unknown command type")
		p.log(ctx, base, audit.EventCommandRejected, err)
		done(err)
		return nil, err
	}

	recorder := audit.NewRecorder(p.provider)
	result, err := eng.Process(ctx, engine.Request{
		Command: cmd,
		Public:  cloneRaw(public),
		Private: cloneRaw(private),
		Draws:   recorder,
	})
	if err != nil {
		err = classify(cmd, err)
		if engine.KindOf(err) == engine.RngFailure {
			p.log(ctx, base, audit.EventProviderFailure, err)
		} else {
			p.log(ctx, base, audit.EventCommandRejected, err)
		}
		done(err)
		return nil, err
	}
	if result == nil {
		err := fmt.Errorf("cycle: engine %s returned neither result nor error", info.Code)
		p.log(ctx, base, audit.EventCommandRejected, err)
		done(err)
		return nil, err
	}

	out := *result
	if !out.Success {
		out.Public = cloneRaw(public)
		out.Private = cloneRaw(private)
	}

	trail := recorder.Trail()
	canonical, err := audit.Canonicalize(trail)
	if err != nil {
		err = fmt.Errorf("cycle: %s: canonicalize: %w", cycleID, err)
		p.log(ctx, base, audit.EventCommandRejected, err)
		done(err)
		return nil, err
	}

	rec := Record{
		ID:           cycleID,
		At:           p.clock().UTC(),
		Production:   p.gate.Production(),
		Engine:       info,
		Command:      cmd,
		InputPublic:  cloneRaw(public),
		InputPrivate: cloneRaw(private),
		Result:       out,
		Trail:        trail,
		Canonical:    canonical,
		Hash:         audit.HashBytes([]byte(canonical)),
	}

	if err := p.sink.Emit(ctx, rec); err != nil {
		err = fmt.Errorf("cycle: %s: audit sink: %w", cycleID, err)
		p.log(ctx, base, audit.EventSinkFailure, err)
		done(err)
		return nil, err
	}

	completed := base
	completed.Draws = len(trail)
	completed.TrailHash = rec.Hash
	p.log(ctx, completed, audit.EventCycleCompleted, nil)
	done(nil)
	return &rec, nil
}

// classify folds provider failures in err's chain into the engine error
// taxonomy, so callers see RngFailure regardless of how an engine
// propagated the draw error.
func classify(cmd engine.Command, err error) error {
	var provErr *rng.ProviderError
	if errors.As(err, &provErr) && engine.KindOf(err) != engine.RngFailure {
		return engine.NewError(engine.RngFailure, cmd, err)
	}
	return err
}

func (p *Processor) log(ctx context.Context, base audit.Event, eventType audit.EventType, err error) {
	event := base
	event.Type = eventType
	if err != nil {
		event.Error = err.Error()
	}
	// Best-effort: only the sink is fail-closed.
	_ = p.logger.Log(ctx, event)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

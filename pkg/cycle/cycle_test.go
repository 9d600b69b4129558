package cycle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certspin/reelcore/pkg/audit"
	"github.com/certspin/reelcore/pkg/engine"
	"github.com/certspin/reelcore/pkg/gate"
	"github.com/certspin/reelcore/pkg/rng"
)

func testInfo() engine.Info {
	return engine.Info{
		Code:     "GOLDLINE3",
		Version:  "1.4.2",
		RTP:      95.7,
		GameType: "video_slot",
		Name:     "Gold Line Classic",
		Provider: "Certspin Studios",
	}
}

// stubEngine scripts Process and counts invocations.
type stubEngine struct {
	info    engine.Info
	process func(ctx context.Context, req engine.Request) (*engine.Result, error)
	calls   int
}

func (e *stubEngine) Process(ctx context.Context, req engine.Request) (*engine.Result, error) {
	e.calls++
	return e.process(ctx, req)
}

func (e *stubEngine) Info() engine.Info { return e.info }

// drawingEngine makes one recorded draw and reports new state.
func drawingEngine() *stubEngine {
	seed := int64(42)
	return &stubEngine{
		info: testInfo(),
		process: func(ctx context.Context, req engine.Request) (*engine.Result, error) {
			if _, err := req.Draws.Single(ctx, "reel_1", 1, 10, &seed); err != nil {
				return nil, engine.NewError(engine.RngFailure, req.Command, err)
			}
			return &engine.Result{
				Success: true,
				Public:  json.RawMessage(`{"spins":1}`),
				Private: json.RawMessage(`{"rtp_target":95.7}`),
			}, nil
		},
	}
}

func newTestProcessor(production bool, sink Sink, opts ...Option) *Processor {
	return NewProcessor(gate.NewDebugGate(production), rng.NewDeterministic(), sink, opts...)
}

func TestProcessHappyPath(t *testing.T) {
	sink := NewMemorySink()
	logBuf := &bytes.Buffer{}
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	p := newTestProcessor(false, sink,
		WithLogger(audit.NewLoggerWithWriter(logBuf)),
		WithClock(func() time.Time { return fixed }),
	)

	eng := drawingEngine()
	cmd := engine.Command{ID: "c1", Type: engine.CommandSpin}

	rec, err := p.Process(context.Background(), eng, nil, nil, cmd)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, 1, eng.calls)
	assert.True(t, rec.Result.Success)
	assert.JSONEq(t, `{"spins":1}`, string(rec.Result.Public))
	assert.Equal(t, fixed, rec.At)
	assert.False(t, rec.Production)
	assert.Equal(t, testInfo(), rec.Engine)
	assert.Nil(t, rec.InputPublic)

	require.Len(t, rec.Trail, 1)
	drawRec, ok := rec.Trail["reel_1"]
	require.True(t, ok)
	assert.Equal(t, int64(42), drawRec.Seed, "trail must report the supplied seed")
	assert.GreaterOrEqual(t, drawRec.Result, int64(1))
	assert.LessOrEqual(t, drawRec.Result, int64(10))

	require.NoError(t, rec.Verify())
	assert.Equal(t, 1, sink.Len())
	stored, err := sink.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Hash, stored.Hash)

	lines := strings.Split(strings.TrimSpace(logBuf.String()), "\n")
	require.Len(t, lines, 2)
	var first, last audit.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &last))
	assert.Equal(t, audit.EventCommandReceived, first.Type)
	assert.Equal(t, audit.EventCycleCompleted, last.Type)
	assert.Equal(t, rec.ID, last.CycleID)
	assert.Equal(t, 1, last.Draws)
	assert.Equal(t, rec.Hash, last.TrailHash)
}

func TestProcessGateRejectionSkipsEngine(t *testing.T) {
	sink := NewMemorySink()
	logBuf := &bytes.Buffer{}
	p := newTestProcessor(true, sink, WithLogger(audit.NewLoggerWithWriter(logBuf)))

	eng := drawingEngine()
	cmd := engine.Command{ID: "c2", Type: engine.CommandDebugForceWin}

	rec, err := p.Process(context.Background(), eng, nil, nil, cmd)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, engine.ForbiddenCommand, engine.KindOf(err))
	assert.Zero(t, eng.calls, "engine must not run after a gate rejection")
	assert.Zero(t, sink.Len())

	assert.Contains(t, logBuf.String(), string(audit.EventCommandRejected))
}

func TestProcessUnknownTypeRejected(t *testing.T) {
	sink := NewMemorySink()
	p := newTestProcessor(false, sink)
	eng := drawingEngine()

	_, err := p.Process(context.Background(), eng, nil, nil, engine.Command{ID: "c3", Type: "respin"})
	require.Error(t, err)
	assert.Equal(t, engine.UnsupportedCommand, engine.KindOf(err))
	assert.Zero(t, eng.calls)
}

func TestProcessBusinessFailureEchoesInputState(t *testing.T) {
	sink := NewMemorySink()
	p := newTestProcessor(false, sink)

	eng := &stubEngine{
		info: testInfo(),
		process: func(_ context.Context, _ engine.Request) (*engine.Result, error) {
			return &engine.Result{
				Success: false,
				Message: "bet above table limit",
				Public:  json.RawMessage(`{"corrupted":true}`),
			}, nil
		},
	}

	public := json.RawMessage(`{"spins":7}`)
	private := json.RawMessage(`{"rtp_target":95.7}`)
	rec, err := p.Process(context.Background(), eng, public, private, engine.Command{ID: "c4", Type: engine.CommandSpin})
	require.NoError(t, err)

	assert.False(t, rec.Result.Success)
	assert.Equal(t, "bet above table limit", rec.Result.Message)
	assert.JSONEq(t, string(public), string(rec.Result.Public), "failed cycles must not move state")
	assert.JSONEq(t, string(private), string(rec.Result.Private))
	assert.Equal(t, 1, sink.Len(), "ruled failures still complete and commit evidence")
}

// failingProvider fails every operation.
type failingProvider struct {
	rng.Provider
}

func (failingProvider) SingleNumber(_ context.Context, _, _ int64, _ *int64) (rng.Draw, error) {
	return rng.Draw{}, &rng.ProviderError{Kind: rng.Unavailable, Op: "single_number", Err: errors.New("connection refused")}
}

func TestProcessProviderFailureAbortsCycle(t *testing.T) {
	sink := NewMemorySink()
	logBuf := &bytes.Buffer{}
	p := NewProcessor(gate.NewDebugGate(false), failingProvider{}, sink,
		WithLogger(audit.NewLoggerWithWriter(logBuf)))

	eng := &stubEngine{
		info: testInfo(),
		process: func(ctx context.Context, req engine.Request) (*engine.Result, error) {
			// Propagate the provider failure untyped; the processor must
			// still classify it.
			if _, err := req.Draws.Single(ctx, "reel_1", 1, 10, nil); err != nil {
				return nil, err
			}
			return &engine.Result{Success: true}, nil
		},
	}

	rec, err := p.Process(context.Background(), eng, nil, nil, engine.Command{ID: "c5", Type: engine.CommandSpin})
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, engine.RngFailure, engine.KindOf(err))
	assert.Equal(t, rng.Unavailable, rng.KindOf(err), "the provider cause stays in the chain")
	assert.Zero(t, sink.Len(), "no partial trail is ever committed")
	assert.Contains(t, logBuf.String(), string(audit.EventProviderFailure))
}

// refusingSink fails every Emit.
type refusingSink struct{}

func (refusingSink) Emit(context.Context, Record) error { return errors.New("disk full") }

func TestProcessSinkFailureFailsCycle(t *testing.T) {
	logBuf := &bytes.Buffer{}
	p := NewProcessor(gate.NewDebugGate(false), rng.NewDeterministic(), refusingSink{},
		WithLogger(audit.NewLoggerWithWriter(logBuf)))

	rec, err := p.Process(context.Background(), drawingEngine(), nil, nil, engine.Command{ID: "c6", Type: engine.CommandSpin})
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.Contains(t, err.Error(), "audit sink")
	assert.Contains(t, logBuf.String(), string(audit.EventSinkFailure))
}

func TestProcessNilResultIsError(t *testing.T) {
	p := newTestProcessor(false, NewMemorySink())
	eng := &stubEngine{
		info:    testInfo(),
		process: func(context.Context, engine.Request) (*engine.Result, error) { return nil, nil },
	}

	_, err := p.Process(context.Background(), eng, nil, nil, engine.Command{ID: "c7", Type: engine.CommandSpin})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither result nor error")
}

func TestProcessFailsClosedWithoutCollaborators(t *testing.T) {
	eng := drawingEngine()
	cmd := engine.Command{ID: "c8", Type: engine.CommandSpin}

	_, err := NewProcessor(nil, rng.NewDeterministic(), NewMemorySink()).
		Process(context.Background(), eng, nil, nil, cmd)
	assert.ErrorIs(t, err, ErrGateNotConfigured)

	_, err = NewProcessor(gate.NewDebugGate(true), nil, NewMemorySink()).
		Process(context.Background(), eng, nil, nil, cmd)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	_, err = NewProcessor(gate.NewDebugGate(true), rng.NewDeterministic(), nil).
		Process(context.Background(), eng, nil, nil, cmd)
	assert.ErrorIs(t, err, ErrSinkNotConfigured)
	assert.Zero(t, eng.calls)
}

func TestProcessInputSnapshotsImmutable(t *testing.T) {
	sink := NewMemorySink()
	p := newTestProcessor(false, sink)

	eng := &stubEngine{
		info: testInfo(),
		process: func(_ context.Context, req engine.Request) (*engine.Result, error) {
			// A misbehaving engine scribbling on its request must not reach
			// the caller's buffer.
			if len(req.Public) > 0 {
				req.Public[0] = 'X'
			}
			return &engine.Result{Success: true, Public: json.RawMessage(`{}`), Private: json.RawMessage(`{}`)}, nil
		},
	}

	public := json.RawMessage(`{"spins":7}`)
	rec, err := p.Process(context.Background(), eng, public, nil, engine.Command{ID: "c9", Type: engine.CommandSpin})
	require.NoError(t, err)
	assert.JSONEq(t, `{"spins":7}`, string(public), "caller's snapshot must stay intact")
	assert.JSONEq(t, `{"spins":7}`, string(rec.InputPublic))
}

// trackObserver records TrackCycle invocations.
type trackObserver struct {
	started int
	lastErr error
	closed  bool
}

func (o *trackObserver) TrackCycle(ctx context.Context, _ string, _ engine.CommandType) (context.Context, func(error)) {
	o.started++
	return ctx, func(err error) {
		o.closed = true
		o.lastErr = err
	}
}

func TestProcessObserverSeesOutcome(t *testing.T) {
	obs := &trackObserver{}
	p := newTestProcessor(true, NewMemorySink(), WithObserver(obs))

	_, err := p.Process(context.Background(), drawingEngine(), nil, nil,
		engine.Command{ID: "c10", Type: engine.CommandDebugSetRtp})
	require.Error(t, err)
	assert.Equal(t, 1, obs.started)
	assert.True(t, obs.closed)
	assert.ErrorIs(t, obs.lastErr, err)
}

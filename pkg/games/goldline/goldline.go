// Package goldline implements Gold Line Classic, the certified 3-reel
// 5-line reference title. It exercises the full engine contract: spins
// drawing one independently replayable stop per reel, a gold-symbol bonus
// meter feeding a free-spin round, and the four lab-only debug commands.
// Paytable and reel strips live here, not in the contract packages.
package goldline

import (
	"context"

	"github.com/certspin/reelcore/pkg/engine"
)

// Engine is the Gold Line Classic implementation of the engine contract.
// It is stateless: every session datum lives in the snapshots threaded
// through Process.
type Engine struct{}

// New returns the engine. One instance serves any number of sessions.
func New() *Engine { return &Engine{} }

// Info returns the metadata certified for this build. Constant by
// construction; debug_set_rtp writes a lab target into private state and
// never touches these values.
func (e *Engine) Info() engine.Info {
	return engine.Info{
		Code:     "GOLDLINE3",
		Version:  "1.4.2",
		RTP:      95.7,
		GameType: "video_slot",
		Name:     "Gold Line Classic",
		Provider: "Certspin Studios",
	}
}

// Process runs one command cycle. Payloads are decoded inside the handler
// for the command's type; state is decoded once here and re-encoded once
// on the way out, so a handler works on plain structs and can never emit a
// partially updated snapshot.
func (e *Engine) Process(ctx context.Context, req engine.Request) (*engine.Result, error) {
	pub, priv, err := decodeState(req.Command, req.Public, req.Private)
	if err != nil {
		return nil, err
	}

	var outcome any
	var ruled *engine.Result
	switch req.Command.Type {
	case engine.CommandSpin:
		outcome, ruled, err = e.spin(ctx, req, pub, priv, false)
	case engine.CommandGetSymbols:
		outcome, ruled, err = e.getSymbols(req)
	case engine.CommandStartBonusRound:
		outcome, ruled, err = e.startBonusRound(req, pub, priv)
	case engine.CommandBonusSpin:
		outcome, ruled, err = e.spin(ctx, req, pub, priv, true)
	case engine.CommandDebugTriggerBonus:
		outcome, ruled, err = e.debugTriggerBonus(req, pub, priv)
	case engine.CommandDebugForceWin:
		outcome, ruled, err = e.debugForceWin(req, priv)
	case engine.CommandDebugSetRtp:
		outcome, ruled, err = e.debugSetRtp(req, priv)
	case engine.CommandDebugUpdateBonusMeterProgress:
		outcome, ruled, err = e.debugUpdateMeter(req, pub)
	default:
		return nil, engine.Errorf(engine.UnsupportedCommand, req.Command, "not handled by %s", e.Info().Code)
	}
	if err != nil {
		return nil, err
	}
	if ruled != nil {
		// Ruled business failure: the processor echoes the input snapshots.
		return ruled, nil
	}

	return finish(req.Command, pub, priv, outcome)
}

// finish encodes the snapshot pair and outcome into a successful result.
func finish(cmd engine.Command, pub *publicState, priv *privateState, outcome any) (*engine.Result, error) {
	publicRaw, privateRaw, err := encodeState(cmd, pub, priv)
	if err != nil {
		return nil, err
	}
	result := &engine.Result{Success: true, Public: publicRaw, Private: privateRaw}
	if outcome != nil {
		raw, err := marshalOutcome(cmd, outcome)
		if err != nil {
			return nil, err
		}
		result.Outcome = raw
	}
	return result, nil
}

// refused builds the ruled-failure result for a bet or round the rules
// reject. The cycle still completes; state does not move.
func refused(message string) *engine.Result {
	return &engine.Result{Success: false, Message: message}
}

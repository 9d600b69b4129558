package goldline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certspin/reelcore/pkg/audit"
	"github.com/certspin/reelcore/pkg/engine"
	"github.com/certspin/reelcore/pkg/rng"
)

// run processes one command with a fresh recorder, the way the processor
// would, and returns the result next to the trail it produced.
func run(t *testing.T, public, private json.RawMessage, cmdType engine.CommandType, payload any) (*engine.Result, audit.Trail) {
	t.Helper()
	cmd, err := engine.NewCommand(cmdType, payload)
	require.NoError(t, err)

	rec := audit.NewRecorder(rng.NewDeterministic())
	result, err := New().Process(context.Background(), engine.Request{
		Command: cmd,
		Public:  public,
		Private: private,
		Draws:   rec,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result, rec.Trail()
}

func decodePublic(t *testing.T, raw json.RawMessage) *publicState {
	t.Helper()
	pub := &publicState{}
	require.NoError(t, json.Unmarshal(raw, pub))
	return pub
}

func decodeSpin(t *testing.T, raw json.RawMessage) *SpinOutcome {
	t.Helper()
	outcome := &SpinOutcome{}
	require.NoError(t, json.Unmarshal(raw, outcome))
	return outcome
}

func TestSpinFreshSession(t *testing.T) {
	result, trail := run(t, nil, nil, engine.CommandSpin, nil)

	require.True(t, result.Success)
	require.NotNil(t, result.Public)

	pub := decodePublic(t, result.Public)
	assert.Equal(t, int64(1), pub.Spins)
	assert.Len(t, pub.LastStops, reelCount)
	require.NoError(t, pub.Meter.Validate())
	assert.Equal(t, meterTotal, pub.Meter.Total)

	require.Len(t, trail, reelCount, "one record per reel stop")
	for i := 1; i <= reelCount; i++ {
		rec, ok := trail[fmt.Sprintf("reel_%d", i)]
		require.True(t, ok)
		assert.Equal(t, int64(0), rec.Min)
		assert.Equal(t, int64(stripLength-1), rec.Max)
	}

	outcome := decodeSpin(t, result.Outcome)
	assert.Equal(t, gridAt(outcome.Stops), outcome.Grid)
	assert.Equal(t, "1", outcome.BetAmount.String(), "default bet")
	assert.Equal(t, lineCount, outcome.Lines)
}

func TestSpinBetIsSticky(t *testing.T) {
	bet := decimal.RequireFromString("2.50")
	result, _ := run(t, nil, nil, engine.CommandSpin, engine.SpinPayload{BetAmount: &bet})
	outcome := decodeSpin(t, result.Outcome)
	assert.Equal(t, "2.5", outcome.BetAmount.String())

	result, _ = run(t, result.Public, result.Private, engine.CommandSpin, nil)
	outcome = decodeSpin(t, result.Outcome)
	assert.Equal(t, "2.5", outcome.BetAmount.String(), "omitted bet repeats the last one")
}

func TestSpinRuledRefusals(t *testing.T) {
	zero := decimal.Zero
	result, trail := run(t, nil, nil, engine.CommandSpin, engine.SpinPayload{BetAmount: &zero})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "table minimum")
	assert.Empty(t, trail, "refusals draw nothing")

	result, _ = run(t, nil, nil, engine.CommandSpin, engine.SpinPayload{Lines: 25})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "table maximum")
}

func TestSpinPayloadErrors(t *testing.T) {
	cmd := engine.Command{ID: "p1", Type: engine.CommandSpin, Payload: json.RawMessage(`{"bet_amount":-3}`)}
	_, err := New().Process(context.Background(), engine.Request{
		Command: cmd,
		Draws:   audit.NewRecorder(rng.NewDeterministic()),
	})
	require.Error(t, err)
	assert.Equal(t, engine.PayloadError, engine.KindOf(err))
}

func TestInvalidStateRejected(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":      `{"spins":`,
		"wrong type":    `{"spins":"seven"}`,
		"unknown field": `{"spins":1,"wallet":100}`,
		"broken meter":  `{"spins":1,"last_win":"0","meter":{"completed":3,"remaining":3,"total":10}}`,
		"zeroed meter":  `{"spins":1,"last_win":"0","meter":{"completed":0,"remaining":0,"total":0}}`,
		"resized meter": `{"spins":1,"last_win":"0","meter":{"completed":1,"remaining":2,"total":3}}`,
	} {
		t.Run(name, func(t *testing.T) {
			cmd := engine.Command{ID: "s1", Type: engine.CommandSpin}
			_, err := New().Process(context.Background(), engine.Request{
				Command: cmd,
				Public:  json.RawMessage(raw),
				Draws:   audit.NewRecorder(rng.NewDeterministic()),
			})
			require.Error(t, err)
			assert.Equal(t, engine.InvalidState, engine.KindOf(err))
		})
	}
}

func TestUnknownCommandType(t *testing.T) {
	_, err := New().Process(context.Background(), engine.Request{
		Command: engine.Command{ID: "u1", Type: "respin"},
		Draws:   audit.NewRecorder(rng.NewDeterministic()),
	})
	require.Error(t, err)
	assert.Equal(t, engine.UnsupportedCommand, engine.KindOf(err))
}

func TestForceWinLandsMiddleLine(t *testing.T) {
	result, _ := run(t, nil, nil, engine.CommandDebugForceWin, engine.DebugForceWinPayload{Symbol: symSeven})
	require.True(t, result.Success)

	result, trail := run(t, result.Public, result.Private, engine.CommandSpin, nil)
	require.True(t, result.Success)
	assert.Empty(t, trail, "a forced spin is fixed by state, not drawn")

	outcome := decodeSpin(t, result.Outcome)
	assert.True(t, outcome.Forced)
	require.NotEmpty(t, outcome.LineWins)
	assert.Equal(t, 0, outcome.LineWins[0].Line, "middle line")
	assert.Equal(t, symSeven, outcome.LineWins[0].Symbol)
	assert.Equal(t, paytable[symSeven], outcome.LineWins[0].Multiplier)
	assert.False(t, outcome.TotalWin.IsZero())

	// One-shot: the next spin draws again.
	result, trail = run(t, result.Public, result.Private, engine.CommandSpin, nil)
	require.True(t, result.Success)
	assert.Len(t, trail, reelCount)
	assert.False(t, decodeSpin(t, result.Outcome).Forced)
}

func TestForceWinUnknownSymbol(t *testing.T) {
	cmd := engine.Command{ID: "f1", Type: engine.CommandDebugForceWin, Payload: json.RawMessage(`{"symbol":"diamond"}`)}
	_, err := New().Process(context.Background(), engine.Request{
		Command: cmd,
		Draws:   audit.NewRecorder(rng.NewDeterministic()),
	})
	require.Error(t, err)
	assert.Equal(t, engine.PayloadError, engine.KindOf(err))
}

func TestBonusFlow(t *testing.T) {
	result, _ := run(t, nil, nil, engine.CommandDebugTriggerBonus, nil)
	require.True(t, result.Success)
	pub := decodePublic(t, result.Public)
	require.NotNil(t, pub.PendingBonus)
	assert.Equal(t, "bonus_1", pub.PendingBonus.BonusID)
	assert.Equal(t, "free_spins", pub.PendingBonus.BonusType)

	// Wrong id is refused, state does not move.
	wrong, _ := run(t, result.Public, result.Private, engine.CommandStartBonusRound,
		engine.StartBonusRoundPayload{BonusID: "bonus_99"})
	assert.False(t, wrong.Success)

	result, _ = run(t, result.Public, result.Private, engine.CommandStartBonusRound,
		engine.StartBonusRoundPayload{BonusID: "bonus_1"})
	require.True(t, result.Success)
	pub = decodePublic(t, result.Public)
	require.NotNil(t, pub.ActiveBonus)
	assert.Nil(t, pub.PendingBonus)
	assert.Equal(t, engine.BonusProgress{Completed: 0, Remaining: freeSpinTotal, Total: freeSpinTotal}, pub.ActiveBonus.Progress)

	// Base spins are locked out during the round.
	locked, _ := run(t, result.Public, result.Private, engine.CommandSpin, nil)
	assert.False(t, locked.Success)

	for i := 1; i <= freeSpinTotal; i++ {
		result, _ = run(t, result.Public, result.Private, engine.CommandBonusSpin,
			engine.BonusSpinPayload{BonusID: "bonus_1"})
		require.True(t, result.Success, "free spin %d", i)

		outcome := decodeSpin(t, result.Outcome)
		assert.True(t, outcome.BonusSpin)
		require.NotNil(t, outcome.BonusProgress)
		require.NoError(t, outcome.BonusProgress.Validate())
		assert.Equal(t, i, outcome.BonusProgress.Completed)

		pub = decodePublic(t, result.Public)
		if i < freeSpinTotal {
			require.NotNil(t, pub.ActiveBonus)
		} else {
			assert.True(t, outcome.BonusComplete)
			assert.Nil(t, pub.ActiveBonus, "round closes after the last free spin")
		}
	}

	// The round is gone; another bonus spin is refused.
	after, _ := run(t, result.Public, result.Private, engine.CommandBonusSpin,
		engine.BonusSpinPayload{BonusID: "bonus_1"})
	assert.False(t, after.Success)
}

func TestMeterFillTriggersBonus(t *testing.T) {
	result, _ := run(t, nil, nil, engine.CommandDebugUpdateBonusMeterProgress,
		engine.DebugUpdateBonusMeterProgressPayload{Completed: meterTotal - 1})
	require.True(t, result.Success)

	// Force gold across the middle line so the window carries at least
	// three gold symbols and the meter fills.
	result, _ = run(t, result.Public, result.Private, engine.CommandDebugForceWin,
		engine.DebugForceWinPayload{Symbol: symGold})
	require.True(t, result.Success)

	result, _ = run(t, result.Public, result.Private, engine.CommandSpin, nil)
	require.True(t, result.Success)

	outcome := decodeSpin(t, result.Outcome)
	require.NotNil(t, outcome.BonusTriggered)
	assert.Equal(t, "bonus_1", outcome.BonusTriggered.BonusID)

	pub := decodePublic(t, result.Public)
	require.NotNil(t, pub.PendingBonus)
	assert.Equal(t, 0, pub.Meter.Completed, "meter resets on trigger")
	require.NoError(t, pub.Meter.Validate())
}

func TestMeterHoldsWhileBonusPending(t *testing.T) {
	result, _ := run(t, nil, nil, engine.CommandDebugTriggerBonus, nil)
	pub := decodePublic(t, result.Public)
	require.NotNil(t, pub.PendingBonus)

	result, _ = run(t, result.Public, result.Private, engine.CommandSpin, nil)
	require.True(t, result.Success)
	next := decodePublic(t, result.Public)
	assert.Equal(t, pub.Meter, next.Meter, "meter must not advance past a pending trigger")
	assert.Equal(t, "bonus_1", next.PendingBonus.BonusID, "trigger must not be overwritten")
}

func TestDebugSetRtpKeepsInfoConstant(t *testing.T) {
	eng := New()
	before := eng.Info()

	result, _ := run(t, nil, nil, engine.CommandDebugSetRtp, engine.DebugSetRtpPayload{RTP: 92.0})
	require.True(t, result.Success)

	var priv privateState
	require.NoError(t, json.Unmarshal(result.Private, &priv))
	require.NotNil(t, priv.RTPTarget)
	assert.Equal(t, 92.0, *priv.RTPTarget)

	assert.Equal(t, before, eng.Info(), "certified metadata never moves")
}

func TestDebugMeterRejectsOverfill(t *testing.T) {
	cmd := engine.Command{ID: "m1", Type: engine.CommandDebugUpdateBonusMeterProgress,
		Payload: json.RawMessage(fmt.Sprintf(`{"completed":%d}`, meterTotal))}
	_, err := New().Process(context.Background(), engine.Request{
		Command: cmd,
		Draws:   audit.NewRecorder(rng.NewDeterministic()),
	})
	require.Error(t, err)
	assert.Equal(t, engine.PayloadError, engine.KindOf(err))
}

func TestGetSymbolsReportsLayout(t *testing.T) {
	result, trail := run(t, nil, nil, engine.CommandGetSymbols, nil)
	require.True(t, result.Success)
	assert.Empty(t, trail)

	var outcome SymbolsOutcome
	require.NoError(t, json.Unmarshal(result.Outcome, &outcome))
	assert.Equal(t, symbolNames, outcome.Symbols)
	require.Len(t, outcome.Reels, reelCount)
	for _, strip := range outcome.Reels {
		assert.Len(t, strip, stripLength)
	}
	assert.Len(t, outcome.Paylines, lineCount)
	assert.Equal(t, paytable, outcome.Paytable)
}

func TestInfoValidates(t *testing.T) {
	require.NoError(t, New().Info().Validate())
}

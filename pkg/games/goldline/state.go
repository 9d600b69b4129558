package goldline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/certspin/reelcore/pkg/engine"
)

// meterTotal is the number of gold symbols that fills the bonus meter.
const meterTotal = 10

// freeSpinTotal is the length of one free-spin bonus round.
const freeSpinTotal = 5

// publicState is the player-visible snapshot: the last spin's window, the
// bonus meter, and any pending or running bonus.
type publicState struct {
	Spins     int64           `json:"spins"`
	LastStops []int64         `json:"last_stops,omitempty"`
	LastGrid  [][]string      `json:"last_grid,omitempty"`
	LastWin   decimal.Decimal `json:"last_win"`

	Meter        engine.BonusProgress   `json:"meter"`
	PendingBonus *engine.TriggeredBonus `json:"pending_bonus,omitempty"`
	ActiveBonus  *activeBonus           `json:"active_bonus,omitempty"`
}

// activeBonus is a running free-spin round.
type activeBonus struct {
	BonusID   string               `json:"bonus_id"`
	BonusType string               `json:"bonus_type"`
	BetAmount decimal.Decimal      `json:"bet_amount"`
	Progress  engine.BonusProgress `json:"progress"`
	Won       decimal.Decimal      `json:"won"`
}

// privateState holds engine internals a player never sees: the bonus id
// sequence, the sticky last bet, and the lab-only overrides.
type privateState struct {
	BonusSeq int64           `json:"bonus_seq"`
	LastBet  decimal.Decimal `json:"last_bet"`

	// RTPTarget is the lab override set by debug_set_rtp. Info() never
	// reads it; the certified constant stays fixed.
	RTPTarget *float64 `json:"rtp_target,omitempty"`

	// ForceWin names the symbol the next spin lands on the middle line.
	ForceWin string `json:"force_win,omitempty"`
}

// defaultBet applies when a spin omits its bet and no prior bet is sticky.
var defaultBet = decimal.NewFromInt(1)

// freshPublic is the bootstrap snapshot for a session with no prior state.
func freshPublic() *publicState {
	return &publicState{
		LastWin: decimal.Zero,
		Meter:   engine.BonusProgress{Completed: 0, Remaining: meterTotal, Total: meterTotal},
	}
}

func freshPrivate() *privateState {
	return &privateState{LastBet: decimal.Zero}
}

// decodeState loads the session snapshots, bootstrapping defaults when the
// caller passed none. Snapshots are engine-owned documents, so any decode
// failure or broken invariant is InvalidState.
func decodeState(cmd engine.Command, public, private json.RawMessage) (*publicState, *privateState, error) {
	pub := freshPublic()
	if err := decodeInto(public, pub); err != nil {
		return nil, nil, engine.NewError(engine.InvalidState, cmd, fmt.Errorf("public state: %w", err))
	}
	priv := freshPrivate()
	if err := decodeInto(private, priv); err != nil {
		return nil, nil, engine.NewError(engine.InvalidState, cmd, fmt.Errorf("private state: %w", err))
	}

	if err := pub.Meter.Validate(); err != nil {
		return nil, nil, engine.NewError(engine.InvalidState, cmd, fmt.Errorf("bonus meter: %w", err))
	}
	if pub.Meter.Total != meterTotal {
		return nil, nil, engine.NewError(engine.InvalidState, cmd,
			fmt.Errorf("bonus meter total %d does not match the certified meter size %d", pub.Meter.Total, meterTotal))
	}
	if pub.ActiveBonus != nil {
		if err := pub.ActiveBonus.Progress.Validate(); err != nil {
			return nil, nil, engine.NewError(engine.InvalidState, cmd, fmt.Errorf("active bonus: %w", err))
		}
	}
	return pub, priv, nil
}

func decodeInto(raw json.RawMessage, out any) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// encodeState marshals the new snapshot pair. Field order is fixed by the
// struct definitions, so equal states marshal to equal bytes.
func encodeState(cmd engine.Command, pub *publicState, priv *privateState) (json.RawMessage, json.RawMessage, error) {
	publicRaw, err := json.Marshal(pub)
	if err != nil {
		return nil, nil, engine.NewError(engine.InvalidState, cmd, fmt.Errorf("encode public state: %w", err))
	}
	privateRaw, err := json.Marshal(priv)
	if err != nil {
		return nil, nil, engine.NewError(engine.InvalidState, cmd, fmt.Errorf("encode private state: %w", err))
	}
	return publicRaw, privateRaw, nil
}

// nextBonus mints the next deterministic bonus id. Ids derive from the
// session's own sequence, never from a clock or random source outside the
// audited draws, so a replayed cycle mints the identical id.
func (p *privateState) nextBonus(bonusType string, bet decimal.Decimal) *engine.TriggeredBonus {
	p.BonusSeq++
	return &engine.TriggeredBonus{
		BonusID:   fmt.Sprintf("bonus_%d", p.BonusSeq),
		BonusType: bonusType,
		BetAmount: bet,
	}
}

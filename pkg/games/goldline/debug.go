package goldline

import (
	"github.com/certspin/reelcore/pkg/engine"
)

// Debug handlers back the four lab-only commands. They are reachable only
// through the processor, behind the gate, so in production none of this
// runs. Each one still records its effect in the snapshots like any other
// command: a lab session replays exactly like a live one.

// DebugBonusOutcome reports a forced bonus trigger.
type DebugBonusOutcome struct {
	Bonus engine.TriggeredBonus `json:"bonus"`
}

func (e *Engine) debugTriggerBonus(req engine.Request, pub *publicState, priv *privateState) (any, *engine.Result, error) {
	payload, err := engine.DecodePayload[engine.DebugTriggerBonusPayload](req.Command)
	if err != nil {
		return nil, nil, err
	}
	if pub.PendingBonus != nil || pub.ActiveBonus != nil {
		return nil, refused("a bonus is already pending or running"), nil
	}

	bonusType := payload.BonusType
	if bonusType == "" {
		bonusType = "free_spins"
	}
	bet := priv.LastBet
	if bet.IsZero() {
		bet = defaultBet
	}

	pub.PendingBonus = priv.nextBonus(bonusType, bet)
	pub.Meter = engine.BonusProgress{Completed: 0, Remaining: pub.Meter.Total, Total: pub.Meter.Total}
	return &DebugBonusOutcome{Bonus: *pub.PendingBonus}, nil, nil
}

// DebugForceWinOutcome reports the armed symbol.
type DebugForceWinOutcome struct {
	Symbol string `json:"symbol"`
}

func (e *Engine) debugForceWin(req engine.Request, priv *privateState) (any, *engine.Result, error) {
	payload, err := engine.DecodePayload[engine.DebugForceWinPayload](req.Command)
	if err != nil {
		return nil, nil, err
	}
	symbol := payload.Symbol
	if symbol == "" {
		symbol = symGold
	}
	if _, ok := paytable[symbol]; !ok {
		return nil, nil, engine.Errorf(engine.PayloadError, req.Command, "symbol is not on the reels")
	}
	priv.ForceWin = symbol
	return &DebugForceWinOutcome{Symbol: symbol}, nil, nil
}

// DebugRtpOutcome reports the lab RTP target now in effect.
type DebugRtpOutcome struct {
	RTPTarget float64 `json:"rtp_target"`
}

func (e *Engine) debugSetRtp(req engine.Request, priv *privateState) (any, *engine.Result, error) {
	payload, err := engine.DecodePayload[engine.DebugSetRtpPayload](req.Command)
	if err != nil {
		return nil, nil, err
	}
	priv.RTPTarget = &payload.RTP
	return &DebugRtpOutcome{RTPTarget: payload.RTP}, nil, nil
}

// DebugMeterOutcome reports the repositioned bonus meter.
type DebugMeterOutcome struct {
	Meter engine.BonusProgress `json:"meter"`
}

func (e *Engine) debugUpdateMeter(req engine.Request, pub *publicState) (any, *engine.Result, error) {
	payload, err := engine.DecodePayload[engine.DebugUpdateBonusMeterProgressPayload](req.Command)
	if err != nil {
		return nil, nil, err
	}
	if payload.Completed >= pub.Meter.Total {
		return nil, nil, engine.Errorf(engine.PayloadError, req.Command,
			"completed %d must stay below meter total %d", payload.Completed, pub.Meter.Total)
	}
	pub.Meter = engine.BonusProgress{
		Completed: payload.Completed,
		Remaining: pub.Meter.Total - payload.Completed,
		Total:     pub.Meter.Total,
	}
	return &DebugMeterOutcome{Meter: pub.Meter}, nil, nil
}

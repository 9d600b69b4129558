package goldline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/certspin/reelcore/pkg/engine"
)

// LineWin is one winning payline in a spin outcome.
type LineWin struct {
	Line       int             `json:"line"`
	Symbol     string          `json:"symbol"`
	Multiplier int64           `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
}

// SpinOutcome reports one spin: the stops and window, every winning line,
// and any bonus movement the spin caused.
type SpinOutcome struct {
	Stops     []int64         `json:"stops"`
	Grid      [][]string      `json:"grid"`
	BetAmount decimal.Decimal `json:"bet_amount"`
	Lines     int             `json:"lines"`
	LineWins  []LineWin       `json:"line_wins,omitempty"`
	TotalWin  decimal.Decimal `json:"total_win"`

	Forced         bool                   `json:"forced,omitempty"`
	BonusSpin      bool                   `json:"bonus_spin,omitempty"`
	Meter          engine.BonusProgress   `json:"meter"`
	BonusTriggered *engine.TriggeredBonus `json:"bonus_triggered,omitempty"`
	BonusProgress  *engine.BonusProgress  `json:"bonus_progress,omitempty"`
	BonusComplete  bool                   `json:"bonus_complete,omitempty"`
}

// bonusWinMultiplier doubles line pays during free spins.
var bonusWinMultiplier = decimal.NewFromInt(2)

// spin handles both base spins and free bonus spins; the two differ only
// in payload, bet sourcing, and what the win feeds.
func (e *Engine) spin(ctx context.Context, req engine.Request, pub *publicState, priv *privateState, bonus bool) (any, *engine.Result, error) {
	var bet decimal.Decimal
	lines := lineCount

	if bonus {
		payload, err := engine.DecodePayload[engine.BonusSpinPayload](req.Command)
		if err != nil {
			return nil, nil, err
		}
		if pub.ActiveBonus == nil {
			return nil, refused("no bonus round in progress"), nil
		}
		if payload.BonusID != pub.ActiveBonus.BonusID {
			return nil, refused(fmt.Sprintf("bonus %q is not the active round", payload.BonusID)), nil
		}
		if pub.ActiveBonus.Progress.Remaining == 0 {
			return nil, refused("bonus round already complete"), nil
		}
		bet = pub.ActiveBonus.BetAmount
	} else {
		payload, err := engine.DecodePayload[engine.SpinPayload](req.Command)
		if err != nil {
			return nil, nil, err
		}
		if pub.ActiveBonus != nil {
			return nil, refused("bonus round in progress; use bonus_spin"), nil
		}
		bet = defaultBet
		if !priv.LastBet.IsZero() {
			bet = priv.LastBet
		}
		if payload.BetAmount != nil {
			bet = *payload.BetAmount
		}
		if bet.IsZero() {
			return nil, refused("bet below table minimum"), nil
		}
		if payload.Lines != 0 {
			if payload.Lines > lineCount {
				return nil, refused(fmt.Sprintf("%d lines above table maximum %d", payload.Lines, lineCount)), nil
			}
			lines = payload.Lines
		}
	}

	stops, forced, err := e.stops(ctx, req, priv)
	if err != nil {
		return nil, nil, err
	}
	grid := gridAt(stops)

	outcome := &SpinOutcome{
		Stops:     stops,
		Grid:      grid,
		BetAmount: bet,
		Lines:     lines,
		TotalWin:  decimal.Zero,
		Forced:    forced,
		BonusSpin: bonus,
	}
	for line := 0; line < lines; line++ {
		symbol := lineSymbol(grid, line)
		if symbol == "" {
			continue
		}
		multiplier := paytable[symbol]
		payout := bet.Mul(decimal.NewFromInt(multiplier))
		if bonus {
			payout = payout.Mul(bonusWinMultiplier)
		}
		outcome.LineWins = append(outcome.LineWins, LineWin{
			Line:       line,
			Symbol:     symbol,
			Multiplier: multiplier,
			Payout:     payout,
		})
		outcome.TotalWin = outcome.TotalWin.Add(payout)
	}

	pub.Spins++
	pub.LastStops = stops
	pub.LastGrid = grid
	pub.LastWin = outcome.TotalWin

	if bonus {
		active := pub.ActiveBonus
		active.Progress.Completed++
		active.Progress.Remaining--
		active.Won = active.Won.Add(outcome.TotalWin)
		progress := active.Progress
		outcome.BonusProgress = &progress
		if active.Progress.Remaining == 0 {
			outcome.BonusComplete = true
			pub.ActiveBonus = nil
		}
	} else {
		priv.LastBet = bet
		e.advanceMeter(pub, priv, grid, bet, outcome)
	}
	outcome.Meter = pub.Meter

	return outcome, nil, nil
}

// stops draws one independently replayable stop per reel, unless a forced
// win is armed, in which case the stops are fixed by state and no draw is
// made. The force is one-shot.
func (e *Engine) stops(ctx context.Context, req engine.Request, priv *privateState) ([]int64, bool, error) {
	if priv.ForceWin != "" {
		stops, ok := forcedStops(priv.ForceWin)
		if !ok {
			return nil, false, engine.Errorf(engine.InvalidState, req.Command, "forced symbol is not on the reels")
		}
		priv.ForceWin = ""
		return stops, true, nil
	}
	stops, err := req.Draws.BatchWithSeeds(ctx, "reel", 0, stripLength-1, reelCount, nil)
	if err != nil {
		return nil, false, engine.NewError(engine.RngFailure, req.Command, err)
	}
	return stops, false, nil
}

// advanceMeter feeds gold symbols on the window into the bonus meter and
// triggers a free-spin bonus when it fills. The meter holds while a bonus
// is pending or running, so a trigger can never be overwritten.
func (e *Engine) advanceMeter(pub *publicState, priv *privateState, grid [][]string, bet decimal.Decimal, outcome *SpinOutcome) {
	if pub.PendingBonus != nil || pub.ActiveBonus != nil {
		return
	}
	golds := 0
	for _, reel := range grid {
		for _, sym := range reel {
			if sym == symGold {
				golds++
			}
		}
	}
	completed := pub.Meter.Completed + golds
	if completed >= pub.Meter.Total {
		pub.PendingBonus = priv.nextBonus("free_spins", bet)
		outcome.BonusTriggered = pub.PendingBonus
		completed = 0
	}
	pub.Meter = engine.BonusProgress{
		Completed: completed,
		Remaining: pub.Meter.Total - completed,
		Total:     pub.Meter.Total,
	}
}

// SymbolsOutcome is the static reel layout get_symbols reports.
type SymbolsOutcome struct {
	Symbols  []string         `json:"symbols"`
	Reels    [][]string       `json:"reels"`
	Paylines [][]int          `json:"paylines"`
	Paytable map[string]int64 `json:"paytable"`
}

// getSymbols reports the certified layout. No draws, no state movement
// beyond re-encoding the snapshots.
func (e *Engine) getSymbols(req engine.Request) (any, *engine.Result, error) {
	if err := engine.ValidatePayload(req.Command); err != nil {
		return nil, nil, err
	}

	reels := make([][]string, reelCount)
	for i := range strips {
		reels[i] = append([]string(nil), strips[i][:]...)
	}
	lines := make([][]int, lineCount)
	for i := range paylines {
		lines[i] = append([]int(nil), paylines[i][:]...)
	}
	table := make(map[string]int64, len(paytable))
	for sym, mult := range paytable {
		table[sym] = mult
	}

	return &SymbolsOutcome{
		Symbols:  append([]string(nil), symbolNames...),
		Reels:    reels,
		Paylines: lines,
		Paytable: table,
	}, nil, nil
}

// marshalOutcome serializes a handler's outcome document.
func marshalOutcome(cmd engine.Command, outcome any) (json.RawMessage, error) {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return nil, engine.NewError(engine.PayloadError, cmd, fmt.Errorf("encode outcome: %w", err))
	}
	return raw, nil
}

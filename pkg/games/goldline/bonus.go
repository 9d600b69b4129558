package goldline

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/certspin/reelcore/pkg/engine"
)

// BonusStartOutcome reports a bonus round activation.
type BonusStartOutcome struct {
	Bonus    engine.TriggeredBonus `json:"bonus"`
	Progress engine.BonusProgress  `json:"progress"`
}

// startBonusRound activates the pending triggered bonus. A wrong or stale
// bonus id is a ruled refusal, not a payload error: the document was well
// formed, the round just is not there to start.
func (e *Engine) startBonusRound(req engine.Request, pub *publicState, priv *privateState) (any, *engine.Result, error) {
	payload, err := engine.DecodePayload[engine.StartBonusRoundPayload](req.Command)
	if err != nil {
		return nil, nil, err
	}
	if pub.ActiveBonus != nil {
		return nil, refused("bonus round already in progress"), nil
	}
	if pub.PendingBonus == nil {
		return nil, refused("no bonus pending"), nil
	}
	if payload.BonusID != pub.PendingBonus.BonusID {
		return nil, refused(fmt.Sprintf("bonus %q is not the pending bonus", payload.BonusID)), nil
	}

	bonus := *pub.PendingBonus
	progress := engine.BonusProgress{Completed: 0, Remaining: freeSpinTotal, Total: freeSpinTotal}
	pub.ActiveBonus = &activeBonus{
		BonusID:   bonus.BonusID,
		BonusType: bonus.BonusType,
		BetAmount: bonus.BetAmount,
		Progress:  progress,
		Won:       decimal.Zero,
	}
	pub.PendingBonus = nil

	return &BonusStartOutcome{Bonus: bonus, Progress: progress}, nil, nil
}

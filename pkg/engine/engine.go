package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/shopspring/decimal"
)

// DrawSource is the only path to randomness an engine has during a cycle.
// Every draw is made under a caller-chosen key and lands in the cycle's
// audit trail; batch operations record one value per key under numbered
// keys "prefix_1" through "prefix_n". The host wires a fresh recorder per
// cycle in live play and a trail-backed source during regulator replay, so
// engines never know which they are talking to.
type DrawSource interface {
	// Single draws one integer from [min, max] under key.
	Single(ctx context.Context, key string, min, max int64, seed *int64) (int64, error)

	// Batch draws count integers from [min, max] under one shared seed.
	Batch(ctx context.Context, prefix string, min, max int64, count int, seed *int64) ([]int64, error)

	// BatchWithSeeds draws count integers from [min, max], each recorded
	// with its own seed so it replays independently. Use it for logically
	// distinct draws such as one stop per reel.
	BatchWithSeeds(ctx context.Context, prefix string, min, max int64, count int, seed *int64) ([]int64, error)

	// Float draws one float in [0, 1) under key.
	Float(ctx context.Context, key string, seed *int64) (float64, error)

	// Floats draws count floats in [0, 1) under one shared seed.
	Floats(ctx context.Context, prefix string, count int, seed *int64) ([]float64, error)
}

// Request carries one command into an engine together with the session's
// state snapshots and the cycle's draw source. Both snapshots are opaque to
// the host and immutable: an engine derives new snapshots, it never edits
// the ones it was handed. Nil snapshots mean a fresh session; the engine
// bootstraps its initial state.
type Request struct {
	Command Command
	Public  json.RawMessage
	Private json.RawMessage
	Draws   DrawSource
}

// Result is an engine's answer to one command. Success=false is a ruled
// game outcome (for example a bet outside table limits), not an error: the
// cycle still completes and the host echoes the input snapshots unchanged.
// Hard failures are returned as errors instead, and imply no state
// transition at all.
type Result struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Public  json.RawMessage `json:"public_state,omitempty"`
	Private json.RawMessage `json:"private_state,omitempty"`
	Outcome json.RawMessage `json:"outcome,omitempty"`
}

// Engine is the contract every concrete game implements. Process must
// appear atomic to the caller: either a complete Result comes back or an
// error does, and an error implies no observable state change. The only
// operations that may suspend inside Process are draws and logging.
//
// Engines bind their own public/private/outcome document shapes internally
// and (de)serialize at this boundary; the host never interprets them.
type Engine interface {
	Process(ctx context.Context, req Request) (*Result, error)

	// Info returns the engine's certified metadata. It is pure and stable:
	// the same values on every call, never derived from runtime state.
	Info() Info
}

// Info is the certified, per-build constant metadata of an engine.
type Info struct {
	Code     string  `json:"code"`
	Version  string  `json:"version"`
	RTP      float64 `json:"rtp"`
	GameType string  `json:"game_type"`
	Name     string  `json:"name"`
	Provider string  `json:"provider"`
}

// Validate checks the fields a registry must be able to rely on: a
// non-empty code/name/provider, a strict MAJOR.MINOR.PATCH version, and an
// RTP percentage in (0, 100].
func (i Info) Validate() error {
	if i.Code == "" {
		return errors.New("engine: info code is empty")
	}
	if i.Name == "" {
		return errors.New("engine: info name is empty")
	}
	if i.Provider == "" {
		return errors.New("engine: info provider is empty")
	}
	if i.GameType == "" {
		return errors.New("engine: info game_type is empty")
	}
	if _, err := semver.StrictNewVersion(i.Version); err != nil {
		return fmt.Errorf("engine: info version %q: %w", i.Version, err)
	}
	if i.RTP <= 0 || i.RTP > 100 {
		return fmt.Errorf("engine: info rtp %v outside (0, 100]", i.RTP)
	}
	return nil
}

// TriggeredBonus describes a bonus awarded during a cycle. The bet amount
// is an exact decimal, never binary floating point, so monetary values
// carry no rounding drift.
type TriggeredBonus struct {
	BonusID   string          `json:"bonus_id"`
	BonusType string          `json:"bonus_type"`
	BetAmount decimal.Decimal `json:"bet_amount"`
}

// BonusProgress tracks a bonus round: completed + remaining == total.
type BonusProgress struct {
	Completed int `json:"completed"`
	Remaining int `json:"remaining"`
	Total     int `json:"total"`
}

// Validate checks the progress invariant.
func (p BonusProgress) Validate() error {
	if p.Completed < 0 || p.Remaining < 0 || p.Total < 0 {
		return fmt.Errorf("engine: bonus progress %d/%d/%d has a negative component", p.Completed, p.Remaining, p.Total)
	}
	if p.Completed+p.Remaining != p.Total {
		return fmt.Errorf("engine: bonus progress %d completed + %d remaining != %d total", p.Completed, p.Remaining, p.Total)
	}
	return nil
}

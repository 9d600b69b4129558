// Package engine defines the contract between the remote gaming server and
// a slot game engine: the command/result shapes, the certified engine
// metadata, the error taxonomy, and the keyed draw source engines consume.
// Concrete engines implement Engine; everything else here is the shared
// vocabulary the host orchestrates with.
package engine

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// CommandType is the closed set of commands an engine can be asked to
// process. Unknown values are explicit UnsupportedCommand errors, never
// ignored, so every command path stays traceable.
type CommandType string

const (
	CommandSpin            CommandType = "spin"
	CommandGetSymbols      CommandType = "get_symbols"
	CommandStartBonusRound CommandType = "start_bonus_round"
	CommandBonusSpin       CommandType = "bonus_spin"

	// Debug variants drive test-lab scenarios. The gate rejects them in
	// production.
	CommandDebugTriggerBonus             CommandType = "debug_trigger_bonus"
	CommandDebugForceWin                 CommandType = "debug_force_win"
	CommandDebugSetRtp                   CommandType = "debug_set_rtp"
	CommandDebugUpdateBonusMeterProgress CommandType = "debug_update_bonus_meter_progress"
)

// Types returns all command types in declaration order.
func Types() []CommandType {
	return []CommandType{
		CommandSpin,
		CommandGetSymbols,
		CommandStartBonusRound,
		CommandBonusSpin,
		CommandDebugTriggerBonus,
		CommandDebugForceWin,
		CommandDebugSetRtp,
		CommandDebugUpdateBonusMeterProgress,
	}
}

// Valid reports whether t is a member of the closed set.
func (t CommandType) Valid() bool {
	switch t {
	case CommandSpin, CommandGetSymbols, CommandStartBonusRound, CommandBonusSpin,
		CommandDebugTriggerBonus, CommandDebugForceWin, CommandDebugSetRtp,
		CommandDebugUpdateBonusMeterProgress:
		return true
	}
	return false
}

// IsDebug reports whether t is one of the four debug-only variants.
func (t CommandType) IsDebug() bool {
	switch t {
	case CommandDebugTriggerBonus, CommandDebugForceWin, CommandDebugSetRtp,
		CommandDebugUpdateBonusMeterProgress:
		return true
	}
	return false
}

func (t CommandType) String() string { return string(t) }

// Command is one player (or operator) action. It is created once, carries
// an opaque correlation id, and is consumed by exactly one process cycle.
type Command struct {
	ID      string          `json:"id"`
	Type    CommandType     `json:"command_type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewCommand mints a command with a fresh correlation id. A nil payload
// stays absent; anything else is marshaled into the payload document.
func NewCommand(commandType CommandType, payload any) (Command, error) {
	cmd := Command{ID: uuid.New().String(), Type: commandType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Command{}, fmt.Errorf("engine: marshal %s payload: %w", commandType, err)
		}
		cmd.Payload = data
	}
	return cmd, nil
}

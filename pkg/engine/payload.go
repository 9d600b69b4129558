package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

// Payload shapes form a tagged union keyed by CommandType. They are decoded
// and validated lazily inside the handler for that type; outside handler
// boundaries a payload stays an opaque document.

// SpinPayload parameterizes a spin. Both fields are optional: a null
// payload spins at the engine's default bet on all lines.
type SpinPayload struct {
	BetAmount *decimal.Decimal `json:"bet_amount,omitempty"`
	Lines     int              `json:"lines,omitempty"`
}

// StartBonusRoundPayload activates a previously triggered bonus.
type StartBonusRoundPayload struct {
	BonusID string `json:"bonus_id"`
}

// BonusSpinPayload plays one spin of an active bonus round.
type BonusSpinPayload struct {
	BonusID string `json:"bonus_id"`
}

// DebugTriggerBonusPayload forces a bonus trigger in test labs.
type DebugTriggerBonusPayload struct {
	BonusType string `json:"bonus_type,omitempty"`
}

// DebugForceWinPayload forces the next spin onto a winning pattern.
type DebugForceWinPayload struct {
	Symbol string `json:"symbol,omitempty"`
}

// DebugSetRtpPayload overrides the lab RTP target.
type DebugSetRtpPayload struct {
	RTP float64 `json:"rtp"`
}

// DebugUpdateBonusMeterProgressPayload sets the bonus meter position.
type DebugUpdateBonusMeterProgressPayload struct {
	Completed int `json:"completed"`
}

const (
	// Bet amounts travel as exact-decimal strings, matching how they
	// marshal.
	spinSchema = `{
		"type": ["object", "null"],
		"additionalProperties": false,
		"properties": {
			"bet_amount": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"},
			"lines": {"type": "integer", "minimum": 1, "maximum": 25}
		}
	}`
	noPayloadSchema = `{"type": "null"}`
	bonusIDSchema   = `{
		"type": "object",
		"additionalProperties": false,
		"required": ["bonus_id"],
		"properties": {
			"bonus_id": {"type": "string", "minLength": 1}
		}
	}`
	debugTriggerBonusSchema = `{
		"type": ["object", "null"],
		"additionalProperties": false,
		"properties": {
			"bonus_type": {"type": "string", "minLength": 1}
		}
	}`
	debugForceWinSchema = `{
		"type": ["object", "null"],
		"additionalProperties": false,
		"properties": {
			"symbol": {"type": "string", "minLength": 1}
		}
	}`
	debugSetRtpSchema = `{
		"type": "object",
		"additionalProperties": false,
		"required": ["rtp"],
		"properties": {
			"rtp": {"type": "number", "exclusiveMinimum": 0, "maximum": 100}
		}
	}`
	debugMeterSchema = `{
		"type": "object",
		"additionalProperties": false,
		"required": ["completed"],
		"properties": {
			"completed": {"type": "integer", "minimum": 0}
		}
	}`
)

// payloadSchemas holds one compiled schema per command type. Compilation
// happens once at package load; the schema set is as closed as the command
// set.
var payloadSchemas = map[CommandType]*jsonschema.Schema{
	CommandSpin:                          mustCompileSchema("spin", spinSchema),
	CommandGetSymbols:                    mustCompileSchema("get_symbols", noPayloadSchema),
	CommandStartBonusRound:               mustCompileSchema("start_bonus_round", bonusIDSchema),
	CommandBonusSpin:                     mustCompileSchema("bonus_spin", bonusIDSchema),
	CommandDebugTriggerBonus:             mustCompileSchema("debug_trigger_bonus", debugTriggerBonusSchema),
	CommandDebugForceWin:                 mustCompileSchema("debug_force_win", debugForceWinSchema),
	CommandDebugSetRtp:                   mustCompileSchema("debug_set_rtp", debugSetRtpSchema),
	CommandDebugUpdateBonusMeterProgress: mustCompileSchema("debug_update_bonus_meter_progress", debugMeterSchema),
}

func mustCompileSchema(name, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://reelcore.schemas.local/engine/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("engine: schema %s load failed: %v", name, err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("engine: schema %s compile failed: %v", name, err))
	}
	return compiled
}

// ValidatePayload checks cmd's payload against the schema for its type. An
// absent payload is validated as JSON null, which only the commands with
// fully optional payloads accept.
func ValidatePayload(cmd Command) error {
	if !cmd.Type.Valid() {
		return Errorf(UnsupportedCommand, cmd, "unknown command type")
	}

	var doc any
	if len(cmd.Payload) > 0 {
		if err := json.Unmarshal(cmd.Payload, &doc); err != nil {
			return NewError(PayloadError, cmd, fmt.Errorf("payload is not valid JSON: %w", err))
		}
	}
	if err := payloadSchemas[cmd.Type].Validate(doc); err != nil {
		return NewError(PayloadError, cmd, err)
	}
	return nil
}

// DecodePayload validates cmd's payload and decodes it strictly into T.
// Null or absent payloads decode to T's zero value.
func DecodePayload[T any](cmd Command) (T, error) {
	var out T
	if err := ValidatePayload(cmd); err != nil {
		return out, err
	}
	if len(cmd.Payload) == 0 || bytes.Equal(bytes.TrimSpace(cmd.Payload), []byte("null")) {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(cmd.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, NewError(PayloadError, cmd, fmt.Errorf("payload decode: %w", err))
	}
	return out, nil
}

package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/certspin/reelcore/pkg/audit"
	"github.com/certspin/reelcore/pkg/cycle"
	"github.com/certspin/reelcore/pkg/engine"
)

// Rerun re-executes one command cycle against its recorded trail. The
// engine draws through a Source instead of a live provider, so the cycle
// is fully deterministic: same inputs, same trail, same result. An engine
// that asks for a draw the trail does not hold, or leaves recorded draws
// unconsumed, did not reproduce the original cycle and Rerun fails.
func Rerun(ctx context.Context, eng engine.Engine, public, private json.RawMessage, cmd engine.Command, trail audit.Trail) (*engine.Result, error) {
	if err := trail.Validate(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	source := NewSource(trail)
	result, err := eng.Process(ctx, engine.Request{
		Command: cmd,
		Public:  cloneRaw(public),
		Private: cloneRaw(private),
		Draws:   source,
	})
	if err != nil {
		return nil, fmt.Errorf("replay: command %q: %w", cmd.ID, err)
	}
	if result == nil {
		return nil, fmt.Errorf("replay: command %q: engine returned neither result nor error", cmd.ID)
	}
	if left := source.Unconsumed(); len(left) > 0 {
		return nil, fmt.Errorf("replay: command %q: %d recorded draws never consumed (first %q)", cmd.ID, len(left), left[0])
	}
	return result, nil
}

// Mismatch is one field where reproduction diverged from the record.
// Reported and Reproduced are diagnostic renderings, never payload dumps:
// state and outcome mismatches carry digests, not contents.
type Mismatch struct {
	Field      string `json:"field"`
	Reported   string `json:"reported"`
	Reproduced string `json:"reproduced"`
}

// Verdict is the outcome of checking one record: either a clean match or
// the list of fields that diverged.
type Verdict struct {
	CycleID    string     `json:"cycle_id"`
	Match      bool       `json:"match"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

func (v *Verdict) add(field, reported, reproduced string) {
	v.Match = false
	v.Mismatches = append(v.Mismatches, Mismatch{Field: field, Reported: reported, Reproduced: reproduced})
}

// Check verifies one committed cycle record end to end: the canonical
// form and hash are recomputed from the trail, the cycle is re-executed
// through Rerun, and every reported result field is compared byte-for-byte
// with its reproduction. A failed re-execution is itself a verdict, not an
// error: a record that cannot be replayed is exactly what this exists to
// catch.
func Check(ctx context.Context, eng engine.Engine, rec cycle.Record) (*Verdict, error) {
	verdict := &Verdict{CycleID: rec.ID, Match: true}

	if info := eng.Info(); info.Code != rec.Engine.Code || info.Version != rec.Engine.Version {
		verdict.add("engine",
			fmt.Sprintf("%s %s", rec.Engine.Code, rec.Engine.Version),
			fmt.Sprintf("%s %s", info.Code, info.Version))
		return verdict, nil
	}

	canonical, err := audit.Canonicalize(rec.Trail)
	if err != nil {
		return nil, fmt.Errorf("replay: record %s: %w", rec.ID, err)
	}
	if canonical != rec.Canonical {
		verdict.add("canonical", digest([]byte(rec.Canonical)), digest([]byte(canonical)))
	}
	if hash := audit.HashBytes([]byte(canonical)); hash != rec.Hash {
		verdict.add("hash", rec.Hash, hash)
	}

	result, err := Rerun(ctx, eng, rec.InputPublic, rec.InputPrivate, rec.Command, rec.Trail)
	if err != nil {
		verdict.add("process", "complete result", err.Error())
		return verdict, nil
	}

	// The processor echoes input snapshots on ruled failures; apply the
	// same normalization before comparing.
	if !result.Success {
		result.Public = cloneRaw(rec.InputPublic)
		result.Private = cloneRaw(rec.InputPrivate)
	}

	if result.Success != rec.Result.Success {
		verdict.add("success", fmt.Sprint(rec.Result.Success), fmt.Sprint(result.Success))
	}
	if result.Message != rec.Result.Message {
		verdict.add("message", rec.Result.Message, result.Message)
	}
	compareRaw(verdict, "public_state", rec.Result.Public, result.Public)
	compareRaw(verdict, "private_state", rec.Result.Private, result.Private)
	compareRaw(verdict, "outcome", rec.Result.Outcome, result.Outcome)

	return verdict, nil
}

// compareRaw records a digest-level mismatch between two raw documents.
func compareRaw(verdict *Verdict, field string, reported, reproduced json.RawMessage) {
	if bytes.Equal(reported, reproduced) {
		return
	}
	verdict.add(field, digest(reported), digest(reproduced))
}

func digest(data []byte) string {
	if len(data) == 0 {
		return "absent"
	}
	return "sha256:" + audit.HashBytes(data)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

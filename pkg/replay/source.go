// Package replay re-executes recorded command cycles for regulator
// verification. A Source serves the draws captured in an audit trail back
// to the engine through the same keyed interface a live recorder exposes,
// so the engine cannot tell a replay from the original run; Rerun and
// Check wrap that into a full cycle re-execution with a byte-level
// verdict.
package replay

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/certspin/reelcore/pkg/audit"
	"github.com/certspin/reelcore/pkg/rng"
)

// Source serves recorded draws by key. It satisfies the engine-facing draw
// interface: an engine replayed against a Source receives exactly the
// values the original provider produced, or an explicit error when the
// engine asks for something the trail does not hold.
//
// A Source is single-use, like the recorder it stands in for: each key
// serves at most one draw.
type Source struct {
	mu       sync.Mutex
	trail    audit.Trail
	consumed map[string]bool
}

// NewSource builds a source over a snapshot of trail.
func NewSource(trail audit.Trail) *Source {
	return &Source{trail: trail.Clone(), consumed: make(map[string]bool, len(trail))}
}

// Single serves the recorded integer draw under key. The requested range
// must match the record's, and a caller-supplied seed must match the seed
// the record reports.
func (s *Source) Single(_ context.Context, key string, min, max int64, seed *int64) (int64, error) {
	key = norm.NFC.String(key)
	rec, err := s.take("replay.single", key, min, max, seed)
	if err != nil {
		return 0, err
	}
	return rec.Result, nil
}

// Batch serves count recorded draws under "prefix_1" .. "prefix_n". All
// records must carry the shared base seed the original batch reported.
func (s *Source) Batch(_ context.Context, prefix string, min, max int64, count int, seed *int64) ([]int64, error) {
	values := make([]int64, count)
	var base *int64
	for i := range values {
		rec, err := s.take("replay.batch", batchKey(prefix, i), min, max, seed)
		if err != nil {
			return nil, err
		}
		if base == nil {
			base = &rec.Seed
		} else if rec.Seed != *base {
			return nil, seedErr("replay.batch", fmt.Errorf("records under %q do not share one base seed", prefix))
		}
		values[i] = rec.Result
	}
	return values, nil
}

// BatchWithSeeds serves count recorded draws under "prefix_1" ..
// "prefix_n". Each record carries its own seed, so no seed comparison is
// possible against the caller's base seed; the per-draw seeds were derived
// from it by the original provider.
func (s *Source) BatchWithSeeds(_ context.Context, prefix string, min, max int64, count int, _ *int64) ([]int64, error) {
	values := make([]int64, count)
	for i := range values {
		rec, err := s.take("replay.batch_with_seeds", batchKey(prefix, i), min, max, nil)
		if err != nil {
			return nil, err
		}
		values[i] = rec.Result
	}
	return values, nil
}

// Float serves the recorded float draw under key, reconstructed from its
// 2^-53 lattice numerator.
func (s *Source) Float(_ context.Context, key string, seed *int64) (float64, error) {
	key = norm.NFC.String(key)
	rec, err := s.take("replay.float", key, 0, rng.FloatLatticeMax, seed)
	if err != nil {
		return 0, err
	}
	return latticeValue(rec), nil
}

// Floats serves count recorded float draws under "prefix_1" .. "prefix_n".
func (s *Source) Floats(_ context.Context, prefix string, count int, seed *int64) ([]float64, error) {
	values := make([]float64, count)
	var base *int64
	for i := range values {
		rec, err := s.take("replay.floats", batchKey(prefix, i), 0, rng.FloatLatticeMax, seed)
		if err != nil {
			return nil, err
		}
		if base == nil {
			base = &rec.Seed
		} else if rec.Seed != *base {
			return nil, seedErr("replay.floats", fmt.Errorf("records under %q do not share one base seed", prefix))
		}
		values[i] = latticeValue(rec)
	}
	return values, nil
}

// Unconsumed returns the keys of recorded draws the engine never asked
// for, in canonical key order. A faithful replay leaves none.
func (s *Source) Unconsumed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for _, k := range s.trail.Keys() {
		if !s.consumed[k] {
			keys = append(keys, k)
		}
	}
	return keys
}

// take looks up, validates, and consumes one record. Missing or exhausted
// keys and range mismatches are OutOfRange; a seed the record contradicts
// is SeedConflict. Both surface through the same provider-error taxonomy a
// live provider uses, so engines propagate them unchanged.
func (s *Source) take(op, key string, min, max int64, seed *int64) (audit.DrawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.trail[key]
	if !ok {
		return audit.DrawRecord{}, rangeErr(op, fmt.Errorf("no recorded draw under key %q", key))
	}
	if s.consumed[key] {
		return audit.DrawRecord{}, rangeErr(op, fmt.Errorf("draw %q already consumed", key))
	}
	if rec.Min != min || rec.Max != max {
		return audit.DrawRecord{}, rangeErr(op, fmt.Errorf("draw %q was recorded over [%d, %d], requested [%d, %d]", key, rec.Min, rec.Max, min, max))
	}
	if seed != nil && *seed != rec.Seed {
		return audit.DrawRecord{}, seedErr(op, fmt.Errorf("draw %q was recorded under a different seed", key))
	}
	s.consumed[key] = true
	return rec, nil
}

func latticeValue(rec audit.DrawRecord) float64 {
	return float64(rec.Result) / (1 << 53)
}

func rangeErr(op string, err error) error {
	return &rng.ProviderError{Kind: rng.OutOfRange, Op: op, Err: err}
}

func seedErr(op string, err error) error {
	return &rng.ProviderError{Kind: rng.SeedConflict, Op: op, Err: err}
}

func batchKey(prefix string, i int) string {
	return norm.NFC.String(fmt.Sprintf("%s_%d", prefix, i+1))
}

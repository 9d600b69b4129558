package audit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/certspin/reelcore/pkg/rng"
)

// Recorder is the only path an engine has to randomness during a command
// cycle. It forwards keyed draws to the provider and captures exactly one
// DrawRecord per value drawn; batch operations record one value per key
// under numbered keys "prefix_1" through "prefix_n".
//
// A fresh Recorder is created per cycle, so duplicate keys always indicate
// an engine defect, not a collision between sessions.
type Recorder struct {
	mu       sync.Mutex
	provider rng.Provider
	trail    Trail
}

// NewRecorder wraps a provider for one command cycle.
func NewRecorder(provider rng.Provider) *Recorder {
	return &Recorder{provider: provider, trail: make(Trail)}
}

// Single draws one integer from [min, max] and records it under key.
func (r *Recorder) Single(ctx context.Context, key string, min, max int64, seed *int64) (int64, error) {
	key = norm.NFC.String(key)
	draw, err := r.provider.SingleNumber(ctx, min, max, seed)
	if err != nil {
		return 0, err
	}
	rec := DrawRecord{Result: draw.Value, Seed: draw.Seed, Min: min, Max: max}
	if err := r.insert(map[string]DrawRecord{key: rec}); err != nil {
		return 0, err
	}
	return draw.Value, nil
}

// Batch draws count integers from [min, max] under one shared seed and
// records them as "prefix_1" .. "prefix_n", each carrying that seed.
func (r *Recorder) Batch(ctx context.Context, prefix string, min, max int64, count int, seed *int64) ([]int64, error) {
	values, used, err := r.provider.BatchNumbers(ctx, min, max, count, seed)
	if err != nil {
		return nil, err
	}
	records := make(map[string]DrawRecord, len(values))
	for i, v := range values {
		records[batchKey(prefix, i)] = DrawRecord{Result: v, Seed: used, Min: min, Max: max}
	}
	if err := r.insert(records); err != nil {
		return nil, err
	}
	return values, nil
}

// BatchWithSeeds draws count integers from [min, max] with an individually
// reported seed per draw, so each record replays independently. Engines use
// it for logically distinct draws such as one stop per reel.
func (r *Recorder) BatchWithSeeds(ctx context.Context, prefix string, min, max int64, count int, seed *int64) ([]int64, error) {
	draws, err := r.provider.BatchNumbersWithSeeds(ctx, min, max, count, seed)
	if err != nil {
		return nil, err
	}
	values := make([]int64, len(draws))
	records := make(map[string]DrawRecord, len(draws))
	for i, draw := range draws {
		values[i] = draw.Value
		records[batchKey(prefix, i)] = DrawRecord{Result: draw.Value, Seed: draw.Seed, Min: min, Max: max}
	}
	if err := r.insert(records); err != nil {
		return nil, err
	}
	return values, nil
}

// Float draws one float in [0, 1) and records it under key as its exact
// position on the 2^-53 lattice, keeping the trail integer-typed without
// losing information.
func (r *Recorder) Float(ctx context.Context, key string, seed *int64) (float64, error) {
	key = norm.NFC.String(key)
	value, used, err := r.provider.SingleFloat(ctx, seed)
	if err != nil {
		return 0, err
	}
	rec, err := floatRecord(value, used)
	if err != nil {
		return 0, err
	}
	if err := r.insert(map[string]DrawRecord{key: rec}); err != nil {
		return 0, err
	}
	return value, nil
}

// Floats draws count floats in [0, 1) under one shared seed, recorded as
// "prefix_1" .. "prefix_n" lattice positions.
func (r *Recorder) Floats(ctx context.Context, prefix string, count int, seed *int64) ([]float64, error) {
	values, used, err := r.provider.BatchFloats(ctx, count, seed)
	if err != nil {
		return nil, err
	}
	records := make(map[string]DrawRecord, len(values))
	for i, f := range values {
		rec, err := floatRecord(f, used)
		if err != nil {
			return nil, err
		}
		records[batchKey(prefix, i)] = rec
	}
	if err := r.insert(records); err != nil {
		return nil, err
	}
	return values, nil
}

// Trail returns a snapshot of everything recorded so far.
func (r *Recorder) Trail() Trail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trail.Clone()
}

// Len returns the number of records captured so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trail)
}

// insert adds a set of records atomically: either every record lands in the
// trail or none does. Each record is validated on the way in, so a provider
// returning a value outside its requested range is caught at capture time.
func (r *Recorder) insert(records map[string]DrawRecord) error {
	for key, rec := range records {
		if err := validateKey(key); err != nil {
			return err
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%w (key %q)", err, key)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range records {
		if _, exists := r.trail[key]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		}
	}
	for key, rec := range records {
		r.trail[key] = rec
	}
	return nil
}

// floatRecord converts a float draw to its lattice numerator. A value the
// lattice cannot represent exactly would not survive replay, so it is
// rejected here rather than recorded lossily.
func floatRecord(f float64, seed int64) (DrawRecord, error) {
	if f < 0 || f >= 1 {
		return DrawRecord{}, fmt.Errorf("audit: float draw %v outside [0, 1)", f)
	}
	n := int64(f * (1 << 53))
	if float64(n)/(1<<53) != f {
		return DrawRecord{}, fmt.Errorf("audit: float draw %v is not on the 2^-53 lattice", f)
	}
	return DrawRecord{Result: n, Seed: seed, Min: 0, Max: rng.FloatLatticeMax}, nil
}

func batchKey(prefix string, i int) string {
	return norm.NFC.String(fmt.Sprintf("%s_%d", prefix, i+1))
}

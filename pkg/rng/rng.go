// Package rng defines the random-number provider contract game engines draw
// through, and a seeded deterministic implementation approved as its
// substitute in test and certification-lab runs.
package rng

import (
	"context"
	"errors"
	"fmt"
)

// Draw is a single random value together with the seed that produced it.
type Draw struct {
	Value int64 `json:"value"`
	Seed  int64 `json:"seed"`
}

// Provider is the random-number source for a command cycle. Production
// deployments back it with a certified RNG service; tests and lab replays
// substitute Deterministic. Every operation reports the seed actually used:
// when the caller omits one the provider mints its own and returns it, so an
// audit record never ends up with an implicit seed.
//
// Operations may suspend on a remote round-trip, hence the context. Failures
// are ProviderError values, a category deliberately distinct from engine
// errors; whether to retry is the caller's decision, not the provider's.
type Provider interface {
	// SingleNumber draws one integer uniformly from [min, max].
	SingleNumber(ctx context.Context, min, max int64, seed *int64) (Draw, error)

	// BatchNumbers draws count integers from [min, max] sharing one base
	// seed, which is returned alongside the values.
	BatchNumbers(ctx context.Context, min, max int64, count int, seed *int64) ([]int64, int64, error)

	// BatchNumbersWithSeeds draws count integers from [min, max], each under
	// its own reported seed. Engines use it when a command makes several
	// logically distinct draws that must each replay independently, such as
	// one stop per reel.
	BatchNumbersWithSeeds(ctx context.Context, min, max int64, count int, seed *int64) ([]Draw, error)

	// SingleFloat draws one float in [0, 1) and returns the seed used.
	SingleFloat(ctx context.Context, seed *int64) (float64, int64, error)

	// BatchFloats draws count floats in [0, 1) sharing one base seed.
	BatchFloats(ctx context.Context, count int, seed *int64) ([]float64, int64, error)
}

// Kind classifies provider failures.
type Kind int

const (
	// Timeout reports a round-trip that exceeded its deadline.
	Timeout Kind = iota + 1
	// Unavailable reports a provider that could not be reached or refused
	// service.
	Unavailable
	// OutOfRange reports draw parameters the provider cannot satisfy.
	OutOfRange
	// SeedConflict reports a caller-supplied seed the provider rejected.
	SeedConflict
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case Unavailable:
		return "unavailable"
	case OutOfRange:
		return "out_of_range"
	case SeedConflict:
		return "seed_conflict"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ProviderError is the failure value every Provider operation reports.
type ProviderError struct {
	Kind Kind
	Op   string
	Err  error
}

// Error identifies the operation and kind; it never includes draw values.
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rng: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("rng: %s: %s", e.Op, e.Kind)
}

// Unwrap exposes the underlying cause, if any.
func (e *ProviderError) Unwrap() error { return e.Err }

// Is matches on Kind, so callers can test with
// errors.Is(err, &ProviderError{Kind: Timeout}).
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the ProviderError in err's chain, or zero when
// err carries none.
func KindOf(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

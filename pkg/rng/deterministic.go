package rng

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// floatBits is the lattice resolution of float draws: values are dyadic
// rationals n / 2^53, so every float a provider emits converts back to an
// integer numerator without loss.
const floatBits = 53

// FloatLatticeMax is the largest numerator of the float lattice. A float
// draw recorded as an integer lies in [0, FloatLatticeMax].
const FloatLatticeMax = int64(1<<floatBits - 1)

// Deterministic is a seeded HMAC-SHA256 counter generator. The same seed and
// draw parameters reproduce the same values on every platform and every run,
// which is what lets a recorded trail be replayed draw for draw.
type Deterministic struct {
	mint func() (int64, error)
}

// Option configures a Deterministic provider.
type Option func(*Deterministic)

// WithSeedMint overrides how fallback seeds are minted when the caller omits
// one. Tests use it to pin the seeds of unseeded draws.
func WithSeedMint(mint func() (int64, error)) Option {
	return func(d *Deterministic) { d.mint = mint }
}

// NewDeterministic returns a provider that mints fallback seeds from
// crypto/rand.
func NewDeterministic(opts ...Option) *Deterministic {
	d := &Deterministic{mint: MintSeed}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MintSeed draws a fresh seed from the operating system's entropy source.
func MintSeed() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("mint seed: %w", err)
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

// SingleNumber draws one integer uniformly from [min, max].
func (d *Deterministic) SingleNumber(ctx context.Context, min, max int64, seed *int64) (Draw, error) {
	const op = "SingleNumber"
	if err := checkCtx(ctx, op); err != nil {
		return Draw{}, err
	}
	if min > max {
		return Draw{}, rangeErr(op, min, max)
	}
	s, err := d.resolve(op, seed)
	if err != nil {
		return Draw{}, err
	}
	return Draw{Value: ranged(s, 0, min, max), Seed: s}, nil
}

// BatchNumbers draws count integers from [min, max] under one shared seed.
// The i-th value depends only on the seed and i, so a longer batch from the
// same seed begins with the same values.
func (d *Deterministic) BatchNumbers(ctx context.Context, min, max int64, count int, seed *int64) ([]int64, int64, error) {
	const op = "BatchNumbers"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}
	if min > max {
		return nil, 0, rangeErr(op, min, max)
	}
	if count <= 0 {
		return nil, 0, countErr(op, count)
	}
	s, err := d.resolve(op, seed)
	if err != nil {
		return nil, 0, err
	}
	out := make([]int64, count)
	for i := 0; i < count; i++ {
		out[i] = ranged(s, uint64(i), min, max)
	}
	return out, s, nil
}

// BatchNumbersWithSeeds draws count integers from [min, max], deriving a
// child seed per draw with HKDF-SHA256. Each returned draw replays
// independently: SingleNumber over the same range with the draw's own seed
// reproduces its value.
func (d *Deterministic) BatchNumbersWithSeeds(ctx context.Context, min, max int64, count int, seed *int64) ([]Draw, error) {
	const op = "BatchNumbersWithSeeds"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	if min > max {
		return nil, rangeErr(op, min, max)
	}
	if count <= 0 {
		return nil, countErr(op, count)
	}
	s, err := d.resolve(op, seed)
	if err != nil {
		return nil, err
	}
	draws := make([]Draw, count)
	for i := 0; i < count; i++ {
		child, err := childSeed(s, i)
		if err != nil {
			return nil, &ProviderError{Kind: Unavailable, Op: op, Err: err}
		}
		draws[i] = Draw{Value: ranged(child, 0, min, max), Seed: child}
	}
	return draws, nil
}

// SingleFloat draws one float on the 2^-53 lattice in [0, 1).
func (d *Deterministic) SingleFloat(ctx context.Context, seed *int64) (float64, int64, error) {
	const op = "SingleFloat"
	if err := checkCtx(ctx, op); err != nil {
		return 0, 0, err
	}
	s, err := d.resolve(op, seed)
	if err != nil {
		return 0, 0, err
	}
	return latticeFloat(next(s, 0, 0)), s, nil
}

// BatchFloats draws count floats in [0, 1) under one shared seed.
func (d *Deterministic) BatchFloats(ctx context.Context, count int, seed *int64) ([]float64, int64, error) {
	const op = "BatchFloats"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}
	if count <= 0 {
		return nil, 0, countErr(op, count)
	}
	s, err := d.resolve(op, seed)
	if err != nil {
		return nil, 0, err
	}
	out := make([]float64, count)
	for i := 0; i < count; i++ {
		out[i] = latticeFloat(next(s, uint64(i), 0))
	}
	return out, s, nil
}

// resolve returns the caller's seed or mints a fallback.
func (d *Deterministic) resolve(op string, seed *int64) (int64, error) {
	if seed != nil {
		return *seed, nil
	}
	s, err := d.mint()
	if err != nil {
		return 0, &ProviderError{Kind: Unavailable, Op: op, Err: err}
	}
	return s, nil
}

// next is the draw stream of a seed: HMAC-SHA256 keyed by the seed's
// big-endian bytes over (index, attempt), truncated to the first eight
// bytes.
func next(seed int64, index, attempt uint64) uint64 {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(seed))
	mac := hmac.New(sha256.New, key[:])
	var msg [16]byte
	binary.BigEndian.PutUint64(msg[:8], index)
	binary.BigEndian.PutUint64(msg[8:], attempt)
	mac.Write(msg[:])
	return binary.BigEndian.Uint64(mac.Sum(nil)[:8])
}

// ranged maps the draw stream uniformly onto [min, max] by rejection
// sampling, so spans that divide 2^64 unevenly pick up no modulo bias.
func ranged(seed int64, index uint64, min, max int64) int64 {
	span := uint64(max) - uint64(min) + 1
	if span == 0 {
		// Wrapped: the range covers all of int64.
		return int64(next(seed, index, 0))
	}
	threshold := -span % span
	for attempt := uint64(0); ; attempt++ {
		u := next(seed, index, attempt)
		if u >= threshold {
			return int64(uint64(min) + u%span)
		}
	}
}

// latticeFloat maps a raw draw onto the 2^-53 lattice in [0, 1).
func latticeFloat(u uint64) float64 {
	return float64(u>>11) / (1 << floatBits)
}

// childSeed derives the i-th per-draw seed of a batch with HKDF-SHA256.
func childSeed(seed int64, i int) (int64, error) {
	var master [8]byte
	binary.BigEndian.PutUint64(master[:], uint64(seed))
	r := hkdf.New(sha256.New, master[:], nil, []byte(fmt.Sprintf("draw_%d", i)))
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("derive child seed %d: %w", i, err)
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func checkCtx(ctx context.Context, op string) error {
	err := ctx.Err()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ProviderError{Kind: Timeout, Op: op, Err: err}
	case err != nil:
		return &ProviderError{Kind: Unavailable, Op: op, Err: err}
	}
	return nil
}

func rangeErr(op string, min, max int64) error {
	return &ProviderError{Kind: OutOfRange, Op: op, Err: fmt.Errorf("min %d exceeds max %d", min, max)}
}

func countErr(op string, count int) error {
	return &ProviderError{Kind: OutOfRange, Op: op, Err: fmt.Errorf("count %d is not positive", count)}
}

package rng

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOf(v int64) *int64 { return &v }

func TestSingleNumberSameSeedSameValue(t *testing.T) {
	d := NewDeterministic()
	ctx := context.Background()

	first, err := d.SingleNumber(ctx, 1, 10, seedOf(42))
	require.NoError(t, err)
	second, err := d.SingleNumber(ctx, 1, 10, seedOf(42))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(42), first.Seed)
	assert.GreaterOrEqual(t, first.Value, int64(1))
	assert.LessOrEqual(t, first.Value, int64(10))
}

func TestSingleNumberDistinctSeeds(t *testing.T) {
	d := NewDeterministic()
	ctx := context.Background()

	// A wide range makes a collision between two seeds vanishingly unlikely.
	a, err := d.SingleNumber(ctx, 0, math.MaxInt64, seedOf(1))
	require.NoError(t, err)
	b, err := d.SingleNumber(ctx, 0, math.MaxInt64, seedOf(2))
	require.NoError(t, err)

	assert.NotEqual(t, a.Value, b.Value)
}

func TestSingleNumberFullRange(t *testing.T) {
	d := NewDeterministic()

	draw, err := d.SingleNumber(context.Background(), math.MinInt64, math.MaxInt64, seedOf(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), draw.Seed)
}

func TestSingleNumberDegenerateRange(t *testing.T) {
	d := NewDeterministic()

	draw, err := d.SingleNumber(context.Background(), 5, 5, seedOf(99))
	require.NoError(t, err)
	assert.Equal(t, int64(5), draw.Value)
}

func TestRangeValidation(t *testing.T) {
	d := NewDeterministic()
	ctx := context.Background()

	_, err := d.SingleNumber(ctx, 10, 1, seedOf(42))
	require.Error(t, err)
	assert.Equal(t, OutOfRange, KindOf(err))
	assert.True(t, errors.Is(err, &ProviderError{Kind: OutOfRange}))

	_, _, err = d.BatchNumbers(ctx, 10, 1, 3, seedOf(42))
	assert.Equal(t, OutOfRange, KindOf(err))

	_, err = d.BatchNumbersWithSeeds(ctx, 10, 1, 3, seedOf(42))
	assert.Equal(t, OutOfRange, KindOf(err))
}

func TestCountValidation(t *testing.T) {
	d := NewDeterministic()
	ctx := context.Background()

	for _, count := range []int{0, -1} {
		_, _, err := d.BatchNumbers(ctx, 1, 10, count, seedOf(42))
		assert.Equal(t, OutOfRange, KindOf(err), "BatchNumbers count=%d", count)

		_, err = d.BatchNumbersWithSeeds(ctx, 1, 10, count, seedOf(42))
		assert.Equal(t, OutOfRange, KindOf(err), "BatchNumbersWithSeeds count=%d", count)

		_, _, err = d.BatchFloats(ctx, count, seedOf(42))
		assert.Equal(t, OutOfRange, KindOf(err), "BatchFloats count=%d", count)
	}
}

func TestBatchSharesReportedSeed(t *testing.T) {
	d := NewDeterministic()

	values, used, err := d.BatchNumbers(context.Background(), 1, 100, 5, seedOf(1234))
	require.NoError(t, err)
	require.Len(t, values, 5)
	assert.Equal(t, int64(1234), used)

	again, _, err := d.BatchNumbers(context.Background(), 1, 100, 5, seedOf(1234))
	require.NoError(t, err)
	assert.Equal(t, values, again)
}

func TestBatchWithSeedsReplaysPerDraw(t *testing.T) {
	d := NewDeterministic()
	ctx := context.Background()

	draws, err := d.BatchNumbersWithSeeds(ctx, 1, 10, 3, seedOf(42))
	require.NoError(t, err)
	require.Len(t, draws, 3)

	for i, draw := range draws {
		replayed, err := d.SingleNumber(ctx, 1, 10, seedOf(draw.Seed))
		require.NoError(t, err)
		assert.Equal(t, draw.Value, replayed.Value, "draw %d does not replay from its own seed", i)
	}

	// Child seeds must not collapse onto the batch seed or each other.
	seen := map[int64]bool{42: true}
	for _, draw := range draws {
		assert.False(t, seen[draw.Seed], "seed %d reused", draw.Seed)
		seen[draw.Seed] = true
	}
}

func TestMintedSeedReported(t *testing.T) {
	d := NewDeterministic(WithSeedMint(func() (int64, error) { return 777, nil }))
	ctx := context.Background()

	draw, err := d.SingleNumber(ctx, 1, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(777), draw.Seed)

	// The minted seed must reproduce the draw when supplied explicitly.
	replayed, err := d.SingleNumber(ctx, 1, 10, seedOf(777))
	require.NoError(t, err)
	assert.Equal(t, draw.Value, replayed.Value)

	_, used, err := d.SingleFloat(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(777), used)
}

func TestMintFailure(t *testing.T) {
	d := NewDeterministic(WithSeedMint(func() (int64, error) {
		return 0, fmt.Errorf("entropy pool closed")
	}))

	_, err := d.SingleNumber(context.Background(), 1, 10, nil)
	require.Error(t, err)
	assert.Equal(t, Unavailable, KindOf(err))
}

func TestContextExpiry(t *testing.T) {
	d := NewDeterministic()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.SingleNumber(canceled, 1, 10, seedOf(42))
	assert.Equal(t, Unavailable, KindOf(err))

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, _, err = d.BatchFloats(expired, 2, seedOf(42))
	assert.Equal(t, Timeout, KindOf(err))
}

func TestProviderErrorWrapping(t *testing.T) {
	inner := &ProviderError{Kind: Timeout, Op: "SingleNumber"}
	wrapped := fmt.Errorf("cycle aborted: %w", inner)

	assert.Equal(t, Timeout, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, &ProviderError{Kind: Timeout}))
	assert.False(t, errors.Is(wrapped, &ProviderError{Kind: SeedConflict}))

	var pe *ProviderError
	require.True(t, errors.As(wrapped, &pe))
	assert.Equal(t, "SingleNumber", pe.Op)
}

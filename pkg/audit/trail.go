// Package audit models the per-command trail of random draws and its
// canonical serialization. The trail is what a regulator replays: every
// provider call an engine makes during one command cycle is captured here
// with the seed, range, and result needed to reproduce it.
package audit

import (
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmptyKey reports a draw recorded under an empty key.
	ErrEmptyKey = errors.New("audit: empty trail key")
	// ErrInvalidKey reports a key that is not valid NFC-normalized UTF-8.
	ErrInvalidKey = errors.New("audit: invalid trail key")
	// ErrDuplicateKey reports two draws recorded under one key in a cycle.
	ErrDuplicateKey = errors.New("audit: duplicate trail key")
)

// DrawRecord captures one random draw: the result, the seed that produced
// it, and the inclusive range it was drawn from.
type DrawRecord struct {
	Result int64 `json:"result"`
	Seed   int64 `json:"seed"`
	Min    int64 `json:"min"`
	Max    int64 `json:"max"`
}

// Validate checks the record's range invariant.
func (r DrawRecord) Validate() error {
	if r.Min > r.Max {
		return fmt.Errorf("audit: record range [%d, %d] is inverted", r.Min, r.Max)
	}
	if r.Result < r.Min || r.Result > r.Max {
		return fmt.Errorf("audit: result %d outside [%d, %d]", r.Result, r.Min, r.Max)
	}
	return nil
}

// Trail maps caller-assigned keys to draw records for one command cycle.
// Logical equality is order-independent; nothing outside the canonical
// encoder may depend on map iteration order.
type Trail map[string]DrawRecord

// Validate checks every key and record. Keys must be non-empty
// NFC-normalized UTF-8; the recorder normalizes on capture, so a
// non-normalized key here means the trail was built by hand or tampered
// with.
func (t Trail) Validate() error {
	for key, rec := range t {
		if err := validateKey(key); err != nil {
			return err
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%w (key %q)", err, key)
		}
	}
	return nil
}

// Keys returns the trail's keys sorted by ascending byte-wise comparison,
// the same order the canonical encoder uses.
func (t Trail) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether two trails hold the same records, regardless of
// how either was populated.
func (t Trail) Equal(other Trail) bool {
	if len(t) != len(other) {
		return false
	}
	for k, rec := range t {
		if other[k] != rec {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (t Trail) Clone() Trail {
	if t == nil {
		return nil
	}
	out := make(Trail, len(t))
	for k, rec := range t {
		out[k] = rec
	}
	return out
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidKey)
	}
	if !norm.NFC.IsNormalString(key) {
		return fmt.Errorf("%w: %q is not NFC-normalized", ErrInvalidKey, key)
	}
	return nil
}

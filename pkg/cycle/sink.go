package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/certspin/reelcore/pkg/audit"
)

var (
	// ErrDuplicateCycle reports a second Emit under one cycle id.
	ErrDuplicateCycle = errors.New("cycle: duplicate cycle id")
	// ErrRecordNotFound reports a lookup for an unknown cycle id.
	ErrRecordNotFound = errors.New("cycle: record not found")
	// ErrChainBroken reports a hash chain that no longer matches its
	// records.
	ErrChainBroken = errors.New("cycle: hash chain is broken")
)

const chainGenesis = "genesis"

// MemorySink is an append-only in-memory Sink with hash chaining: each
// committed record extends a head hash covering every record before it, so
// removing or reordering evidence after the fact is detectable. It is the
// reference sink for tests and single-process hosts; production hosts wrap
// durable storage behind the same interface.
type MemorySink struct {
	mu      sync.RWMutex
	records []Record
	byID    map[string]int
	heads   []string
	head    string
}

// NewMemorySink returns an empty sink with the genesis chain head.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		byID: make(map[string]int),
		head: chainGenesis,
	}
}

// Emit commits rec. The record is verified before it is accepted: a record
// whose canonical form or hash does not match its trail is refused, and
// with it the whole cycle.
func (s *MemorySink) Emit(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("cycle: record has no id")
	}
	if err := rec.Verify(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[rec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCycle, rec.ID)
	}

	s.head = chainStep(s.head, rec)
	s.heads = append(s.heads, s.head)
	s.byID[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	return nil
}

// Get returns the record committed under cycleID.
func (s *MemorySink) Get(cycleID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[cycleID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, cycleID)
	}
	return s.records[i], nil
}

// Records returns the committed records in commit order.
func (s *MemorySink) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of committed records.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ChainHead returns the current head hash, or "genesis" when empty.
func (s *MemorySink) ChainHead() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

// VerifyChain re-derives the hash chain from the committed records and
// compares it head by head.
func (s *MemorySink) VerifyChain() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	head := chainGenesis
	for i, rec := range s.records {
		if err := rec.Verify(); err != nil {
			return err
		}
		head = chainStep(head, rec)
		if head != s.heads[i] {
			return fmt.Errorf("%w: record %s", ErrChainBroken, rec.ID)
		}
	}
	if head != s.head {
		return fmt.Errorf("%w: head mismatch", ErrChainBroken)
	}
	return nil
}

func chainStep(head string, rec Record) string {
	return audit.HashBytes([]byte(head + "\n" + rec.ID + "\n" + rec.Hash))
}

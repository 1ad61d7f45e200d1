package calocell

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// ExcessLedger records, per donor cell, the pulse it leaked into its
// neighbors during one event. It lives for a single cross-talk pass.
type ExcessLedger struct {
	entries map[uint32]PulseVector
}

func NewExcessLedger() *ExcessLedger {
	return &ExcessLedger{entries: make(map[uint32]PulseVector)}
}

// Accumulate adds contribution to the entry of hash, inserting it on first use.
func (l *ExcessLedger) Accumulate(hash uint32, contribution PulseVector) error {
	if entry, ok := l.entries[hash]; ok {
		if len(entry) != len(contribution) {
			return fmt.Errorf("%w: ledger entry of cell %d has %d samples, contribution has %d",
				ErrConfigurationMismatch, hash, len(entry), len(contribution))
		}
		addInto(entry, contribution)
		return nil
	}
	return l.insert(hash, contribution.Clone())
}

func (l *ExcessLedger) insert(hash uint32, pulse PulseVector) error {
	if _, ok := l.entries[hash]; ok {
		return fmt.Errorf("%w: cell %d already has an entry", ErrLedgerIntegrity, hash)
	}
	l.entries[hash] = pulse
	return nil
}

// Get returns a copy of the accumulated excess of hash.
func (l *ExcessLedger) Get(hash uint32) (PulseVector, bool) {
	entry, ok := l.entries[hash]
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

func (l *ExcessLedger) Len() int {
	return len(l.entries)
}

// Hashes returns the donor hashes in increasing order.
func (l *ExcessLedger) Hashes() []uint32 {
	hashes := make([]uint32, 0, len(l.entries))
	for h := range l.entries {
		hashes = append(hashes, h)
	}
	slices.Sort(hashes)
	return hashes
}

// Total sums every sample of every entry.
func (l *ExcessLedger) Total() float64 {
	total := 0.0
	for _, entry := range l.entries {
		total += entry.Sum()
	}
	return total
}

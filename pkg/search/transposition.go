package search

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/WannesMalfait/connect4-go/pkg/board"
	"github.com/WannesMalfait/connect4-go/pkg/eval"
	"github.com/seekerror/logw"
)

// TranspositionTable caches bounded scores keyed by symmetric position key.
// Must be thread-safe: readers and writers race freely, with a partial-key
// mismatch treated as a miss (see the table type's doc comment for the
// packed word layout this relies on).
type TranspositionTable interface {
	// Read returns the bound and score stored for key, if present.
	Read(key board.Key) (eval.Bound, eval.Score, bool)
	// Write stores (bound, score) for key, always overwriting any prior
	// occupant of the slot (no aging: the search is depth-first iterative
	// deepening, so the newest entry for a slot is the most useful one).
	Write(key board.Key, bound eval.Bound, score eval.Score)

	// Size returns the size of the table in bytes.
	Size() uint64
	// Used returns the utilization as a fraction [0;1].
	Used() float64
}

// minSlots is the smallest slot count allocated; tiny byte budgets (as
// passed in tests) are raised to it so the table stays usable.
const minSlots = 1009

// table is a fixed-size, open-addressed, lock-free transposition table.
// Each slot is a single atomically-accessed machine word: bit 63 marks the
// slot occupied, bits 8-62 hold the partial key (key/size, the quotient
// left over once index = key mod size is removed), and bits 0-7 hold the
// eval.EncodeTT-packed (bound, score) byte. A 49-bit key divided by at
// least minSlots (1009) slots leaves a quotient of at most 40 bits, so the
// 55 bits reserved here have ample headroom.
type table struct {
	slots []atomic.Uint64
	size  uint64
	used  atomic.Uint64
}

const occupiedBit = uint64(1) << 63

// NewTranspositionTable allocates a table sized from a byte budget. The
// slot count is sizeBytes/8, raised to minSlots if smaller, then rounded
// down to a prime, per
// spec: a fixed prime size lets index = key mod size spread keys evenly
// without the power-of-two masking idiom.
func NewTranspositionTable(ctx context.Context, sizeBytes uint64) TranspositionTable {
	n := sizeBytes / 8
	if n < minSlots {
		n = minSlots
	}
	size := prevPrime(n)

	logw.Infof(ctx, "Allocating %vMB TT with %v entries (prime size)", sizeBytes>>20, size)

	return &table{
		slots: make([]atomic.Uint64, size),
		size:  size,
	}
}

func (t *table) Size() uint64 {
	return uint64(len(t.slots)) * 8
}

func (t *table) Used() float64 {
	return float64(t.used.Load()) / float64(len(t.slots))
}

func (t *table) index(key board.Key) uint64 {
	return uint64(key) % t.size
}

func (t *table) partial(key board.Key) uint64 {
	return uint64(key) / t.size
}

func (t *table) Read(key board.Key) (eval.Bound, eval.Score, bool) {
	word := t.slots[t.index(key)].Load()
	if word&occupiedBit == 0 {
		return 0, 0, false
	}
	if (word>>8)&((1<<55)-1) != t.partial(key) {
		return 0, 0, false
	}
	bound, score := eval.DecodeTT(int8(word & 0xff))
	return bound, score, true
}

func (t *table) Write(key board.Key, bound eval.Bound, score eval.Score) {
	idx := t.index(key)
	raw := uint8(eval.EncodeTT(bound, score))
	word := occupiedBit | (t.partial(key) << 8) | uint64(raw)

	if t.slots[idx].Swap(word) == 0 {
		t.used.Add(1)
	}
}

func (t *table) String() string {
	return fmt.Sprintf("TT[%v @ %v%%]", t.Size(), int(100*t.Used()))
}

// prevPrime returns the largest prime <= n, or 2 if n < 2.
func prevPrime(n uint64) uint64 {
	if n < 2 {
		return 2
	}
	for c := n; c >= 2; c-- {
		if isPrime(c) {
			return c
		}
	}
	return 2
}

func isPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := uint64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// NoTranspositionTable is a Nop implementation, useful for benchmarking
// search without TT assistance.
type NoTranspositionTable struct{}

func (n NoTranspositionTable) Read(board.Key) (eval.Bound, eval.Score, bool) { return 0, 0, false }
func (n NoTranspositionTable) Write(board.Key, eval.Bound, eval.Score)       {}
func (n NoTranspositionTable) Size() uint64                                 { return 0 }
func (n NoTranspositionTable) Used() float64                                { return 0 }

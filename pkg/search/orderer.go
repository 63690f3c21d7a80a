package search

import (
	"fmt"

	"github.com/WannesMalfait/connect4-go/pkg/board"
)

// Priority is a move ordering heuristic score; higher searches first.
type Priority int

// Orderer is a fixed-capacity (board.Width entries), insertion-sorted move
// list, descending by Priority. Inserting a move already present replaces
// its priority in place; ties keep insertion order, per spec.md section
// 4.3. Zero value is ready to use.
type Orderer struct {
	moves  [board.Width]int
	scores [board.Width]Priority
	n      int
}

// NewOrderer returns an empty orderer.
func NewOrderer() *Orderer {
	return &Orderer{}
}

// Insert adds or updates move's priority, keeping the array sorted
// descending by score with stable ties.
func (o *Orderer) Insert(move int, score Priority) {
	o.remove(move)

	pos := o.n
	for pos > 0 && o.scores[pos-1] < score {
		o.moves[pos] = o.moves[pos-1]
		o.scores[pos] = o.scores[pos-1]
		pos--
	}
	o.moves[pos] = move
	o.scores[pos] = score
	o.n++
}

func (o *Orderer) remove(move int) {
	for i := 0; i < o.n; i++ {
		if o.moves[i] == move {
			copy(o.moves[i:o.n-1], o.moves[i+1:o.n])
			copy(o.scores[i:o.n-1], o.scores[i+1:o.n])
			o.n--
			return
		}
	}
}

// Next returns the next highest-priority move, or false if exhausted.
func (o *Orderer) Next() (int, bool) {
	if o.n == 0 {
		return 0, false
	}
	move := o.moves[0]
	copy(o.moves[0:o.n-1], o.moves[1:o.n])
	copy(o.scores[0:o.n-1], o.scores[1:o.n])
	o.n--
	return move, true
}

// Size returns the number of moves remaining.
func (o *Orderer) Size() int {
	return o.n
}

func (o *Orderer) String() string {
	if o.n == 0 {
		return "[size=0]"
	}
	return fmt.Sprintf("[top=%v, size=%v]", o.moves[0], o.n)
}

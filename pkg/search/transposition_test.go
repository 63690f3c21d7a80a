package search_test

import (
	"context"
	"testing"

	"github.com/WannesMalfait/connect4-go/pkg/board"
	"github.com/WannesMalfait/connect4-go/pkg/eval"
	"github.com/WannesMalfait/connect4-go/pkg/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranspositionTable_WriteRead(t *testing.T) {
	tt := search.NewTranspositionTable(context.Background(), 1<<16)

	p, err := board.NewFromMoves([]int{3, 2, 4})
	require.NoError(t, err)
	key := p.SymmetricKey()

	_, _, ok := tt.Read(key)
	assert.False(t, ok)

	tt.Write(key, eval.Lower, 7)

	bound, score, ok := tt.Read(key)
	require.True(t, ok)
	assert.Equal(t, eval.Lower, bound)
	assert.Equal(t, eval.Score(7), score)
}

func TestTranspositionTable_Overwrite(t *testing.T) {
	tt := search.NewTranspositionTable(context.Background(), 1<<16)

	p, err := board.NewFromMoves([]int{1})
	require.NoError(t, err)
	key := p.SymmetricKey()

	tt.Write(key, eval.Exact, 3)
	tt.Write(key, eval.Upper, -4)

	bound, score, ok := tt.Read(key)
	require.True(t, ok)
	assert.Equal(t, eval.Upper, bound)
	assert.Equal(t, eval.Score(-4), score)
}

func TestTranspositionTable_PartialKeyMismatchIsMiss(t *testing.T) {
	tt := search.NewTranspositionTable(context.Background(), 1<<16)

	a, err := board.NewFromMoves([]int{3})
	require.NoError(t, err)
	b, err := board.NewFromMoves([]int{2})
	require.NoError(t, err)

	tt.Write(a.SymmetricKey(), eval.Exact, 1)

	// A 1<<16-byte budget gives 8191 slots (the largest prime <= 8192), so
	// a.SymmetricKey()+8191 maps to a's slot with a different partial key.
	_, _, ok := tt.Read(a.SymmetricKey() + 8191)
	assert.False(t, ok)

	// b lands in a different, empty slot, so reading it misses as well
	// rather than returning a's entry.
	if a.SymmetricKey() != b.SymmetricKey() {
		_, _, ok := tt.Read(b.SymmetricKey())
		assert.False(t, ok)
	}
}

func TestTranspositionTable_Used(t *testing.T) {
	tt := search.NewTranspositionTable(context.Background(), 1<<16)
	assert.Zero(t, tt.Used())

	p, err := board.NewFromMoves([]int{0})
	require.NoError(t, err)
	tt.Write(p.SymmetricKey(), eval.Exact, 0)

	assert.Greater(t, tt.Used(), 0.0)
}

func TestNoTranspositionTable(t *testing.T) {
	var tt search.NoTranspositionTable

	_, _, ok := tt.Read(0)
	assert.False(t, ok)
	tt.Write(0, eval.Exact, 5)
	assert.Zero(t, tt.Size())
}

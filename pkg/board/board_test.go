package board_test

import (
	"testing"

	"github.com/WannesMalfait/connect4-go/pkg/board"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosition_PlayAndCanPlay(t *testing.T) {
	p := board.New()
	assert.Equal(t, 0, p.MovesPlayed())

	for col := 0; col < board.Width; col++ {
		assert.True(t, p.CanPlay(col))
	}

	for i := 0; i < board.Height; i++ {
		require.True(t, p.CanPlay(3))
		p = p.Play(3)
	}
	assert.False(t, p.CanPlay(3))
	assert.Equal(t, board.Height, p.MovesPlayed())
}

func TestPosition_NewFromMoves(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		p, err := board.NewFromMoves([]int{3, 3, 3, 3, 3, 3})
		require.NoError(t, err)
		assert.Equal(t, 6, p.MovesPlayed())
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := board.NewFromMoves([]int{7})
		assert.Error(t, err)
	})

	t.Run("full column", func(t *testing.T) {
		_, err := board.NewFromMoves([]int{3, 3, 3, 3, 3, 3, 3})
		assert.Error(t, err)
	})

	t.Run("play past a win", func(t *testing.T) {
		// X plays column 0 four times with O interleaved elsewhere: X wins
		// on the 4th stone in column 0, so a 5th move is rejected.
		_, err := board.NewFromMoves([]int{0, 1, 0, 1, 0, 1, 0, 1})
		assert.Error(t, err)
	})
}

func TestPosition_IsWinningMove(t *testing.T) {
	// X: col0 x3, O: col1 x3. X plays col0 a 4th time for the vertical win.
	p, err := board.NewFromMoves([]int{0, 1, 0, 1, 0, 1})
	require.NoError(t, err)

	assert.True(t, p.IsWinningMove(0))
	assert.False(t, p.IsWinningMove(2))
}

func TestPosition_Alignment_Horizontal(t *testing.T) {
	// X: 0,1,2 on the bottom row, O elsewhere; X completes on column 3.
	p, err := board.NewFromMoves([]int{0, 0, 1, 1, 2, 2})
	require.NoError(t, err)

	assert.True(t, p.IsWinningMove(3))
}

func TestPosition_NonLosingMoves(t *testing.T) {
	t.Run("no threats", func(t *testing.T) {
		p := board.New()
		nl := p.NonLosingMoves()
		assert.Equal(t, p.PossibleMovesMask(), nl)
	})

	t.Run("single forced block", func(t *testing.T) {
		// O about to complete a horizontal threat on row 0, columns 0-2;
		// X to move must block at column 3.
		p, err := board.NewFromMoves([]int{4, 0, 5, 1, 6, 2})
		require.NoError(t, err)

		nl := p.NonLosingMoves()
		assert.NotZero(t, nl)
	})

	t.Run("double threat is lost", func(t *testing.T) {
		// O builds an open-ended three (columns 1-3 on row 0) with X forced
		// to move elsewhere first: whichever side X blocks, O wins on the
		// other end.
		p, err := board.NewFromMoves([]int{6, 1, 6, 2, 5, 3})
		require.NoError(t, err)

		nl := p.NonLosingMoves()
		assert.Zero(t, nl)
	})
}

func TestPosition_Key_Symmetry(t *testing.T) {
	left, err := board.NewFromMoves([]int{0, 1})
	require.NoError(t, err)
	right, err := board.NewFromMoves([]int{6, 5})
	require.NoError(t, err)

	assert.NotEqual(t, left.Key(), right.Key())
	assert.Equal(t, left.SymmetricKey(), right.SymmetricKey())
}

func TestPosition_Key_Injective(t *testing.T) {
	seen := map[board.Key][]int{}
	sequences := [][]int{
		{3}, {2}, {4}, {3, 3}, {3, 2}, {2, 3}, {0, 6}, {6, 0},
		{3, 3, 3}, {3, 4, 3, 4},
	}

	for _, seq := range sequences {
		p, err := board.NewFromMoves(seq)
		require.NoError(t, err)

		k := p.SymmetricKey()
		if prior, ok := seen[k]; ok {
			mirrored := isHorizontalMirror(seq, prior)
			assert.Truef(t, mirrored, "key collision between %v and %v", seq, prior)
		}
		seen[k] = seq
	}
}

func isHorizontalMirror(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != board.Width-1-b[i] {
			return false
		}
	}
	return true
}

func TestPosition_MoveScore(t *testing.T) {
	// X holds columns 1 and 2 on the bottom row (O stacked on top). Playing
	// column 3 makes an open three with two winning cells (columns 0 and 4);
	// an isolated stone in column 6 makes none.
	p, err := board.NewFromMoves([]int{1, 1, 2, 2})
	require.NoError(t, err)
	assert.Greater(t, p.MoveScore(3), p.MoveScore(6))
}

func TestPosition_String(t *testing.T) {
	p, err := board.NewFromMoves([]int{3, 2})
	require.NoError(t, err)

	s := p.String()
	assert.Equal(t, board.Height, len(splitLines(s)))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return lines
}

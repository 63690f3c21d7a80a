package eval_test

import (
	"testing"

	"github.com/WannesMalfait/connect4-go/pkg/eval"
	"github.com/stretchr/testify/assert"
)

func TestScore_Negate(t *testing.T) {
	assert.Equal(t, eval.Score(-5), eval.Score(5).Negate())
	assert.Equal(t, eval.ZeroScore, eval.ZeroScore.Negate())
	assert.True(t, eval.Invalid().Negate().IsInvalid())
}

func TestScore_EncodeDecodeTT_RoundTrip(t *testing.T) {
	cases := []struct {
		bound eval.Bound
		score eval.Score
	}{
		{eval.Exact, eval.MinScore},
		{eval.Exact, eval.MaxScore},
		{eval.Exact, eval.ZeroScore},
		{eval.Lower, eval.MinScore},
		{eval.Lower, eval.MaxScore},
		{eval.Upper, eval.MinScore},
		{eval.Upper, eval.MaxScore},
	}

	for _, c := range cases {
		raw := eval.EncodeTT(c.bound, c.score)
		gotBound, gotScore := eval.DecodeTT(raw)
		assert.Equal(t, c.bound, gotBound, "bound for %v/%v", c.bound, c.score)
		assert.Equal(t, c.score, gotScore, "score for %v/%v", c.bound, c.score)
	}
}

func TestScore_EncodeTT_DisjointRanges(t *testing.T) {
	// Every (bound, score) pair in range must decode without ambiguity.
	seen := map[int8]string{}
	for _, b := range []eval.Bound{eval.Exact, eval.Lower, eval.Upper} {
		for s := eval.MinScore; s <= eval.MaxScore; s++ {
			raw := eval.EncodeTT(b, s)
			key := b.String()
			if prior, ok := seen[raw]; ok {
				assert.Equal(t, key, prior, "raw byte %d collides across bounds", raw)
			}
			seen[raw] = key

			gotBound, gotScore := eval.DecodeTT(raw)
			assert.Equal(t, b, gotBound)
			assert.Equal(t, s, gotScore)
		}
	}
}

func TestScore_PliesUntilResult(t *testing.T) {
	plies, ok := eval.PliesUntilResult(1)
	assert.True(t, ok)
	assert.Equal(t, 20, plies)

	_, ok = eval.PliesUntilResult(eval.ZeroScore)
	assert.False(t, ok)
}

func TestBound_String(t *testing.T) {
	assert.Equal(t, "Exact", eval.Exact.String())
	assert.Equal(t, "Lower", eval.Lower.String())
	assert.Equal(t, "Upper", eval.Upper.String())
}

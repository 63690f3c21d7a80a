package searchctl_test

import (
	"context"
	"sync"
	"testing"

	"github.com/WannesMalfait/connect4-go/pkg/board"
	"github.com/WannesMalfait/connect4-go/pkg/eval"
	"github.com/WannesMalfait/connect4-go/pkg/search"
	"github.com/WannesMalfait/connect4-go/pkg/search/searchctl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSearcher simulates a negamax search with a fixed true score,
// applying fail-hard windowing, so the coordinator's narrowing loop can
// be tested without the cost of a real game tree search.
type stubSearcher struct {
	trueScore eval.Score
}

func (s stubSearcher) Search(ctx context.Context, sctx *search.Context, pos board.Position, alpha, beta eval.Score) (uint64, eval.Score, error) {
	switch {
	case s.trueScore >= beta:
		return 1, beta, nil
	case s.trueScore <= alpha:
		return 1, alpha, nil
	default:
		return 1, s.trueScore, nil
	}
}

func TestSolve_ConvergesToTrueScore(t *testing.T) {
	r := &searchctl.Root{Search: stubSearcher{trueScore: 7}}
	tt := search.NoTranspositionTable{}

	res, err := searchctl.Solve(context.Background(), r, board.New(), tt, searchctl.Options{Threads: 1})
	require.NoError(t, err)
	assert.Equal(t, eval.Score(7), res.Score)
	assert.True(t, res.Complete)
}

func TestSolve_WeakModeYieldsSignOnly(t *testing.T) {
	r := &searchctl.Root{Search: stubSearcher{trueScore: 7}}
	tt := search.NoTranspositionTable{}

	res, err := searchctl.Solve(context.Background(), r, board.New(), tt, searchctl.Options{Threads: 1, Weak: true})
	require.NoError(t, err)
	assert.Equal(t, eval.Score(1), res.Score)
}

func TestSolve_WeakModeNegativeTrueScore(t *testing.T) {
	r := &searchctl.Root{Search: stubSearcher{trueScore: -7}}
	tt := search.NoTranspositionTable{}

	res, err := searchctl.Solve(context.Background(), r, board.New(), tt, searchctl.Options{Threads: 1, Weak: true})
	require.NoError(t, err)
	assert.Equal(t, eval.Score(-1), res.Score)
}

func TestSolve_TwoThreads(t *testing.T) {
	r := &searchctl.Root{Search: stubSearcher{trueScore: 3}}
	tt := search.NoTranspositionTable{}

	res, err := searchctl.Solve(context.Background(), r, board.New(), tt, searchctl.Options{Threads: 2})
	require.NoError(t, err)
	assert.Equal(t, eval.Score(3), res.Score)
	assert.Greater(t, res.Nodes, uint64(0))
}

func TestAnalyze_MarksFullColumnIllegal(t *testing.T) {
	r := &searchctl.Root{Search: stubSearcher{trueScore: 2}}
	tt := search.NoTranspositionTable{}

	p := board.New()
	for i := 0; i < board.Height; i++ {
		p = p.Play(3)
	}
	require.False(t, p.CanPlay(3))

	cols := searchctl.Analyze(context.Background(), r, p, tt, searchctl.Options{Threads: 1})
	assert.False(t, cols[3].Legal)
	assert.True(t, cols[0].Legal)
}

// principalAlwaysHaltsSearcher simulates a two-thread iteration where the
// principal window is always cancelled while its shifted-window helper
// "survives" and reports a fail-high score. The principal and helper
// windows are distinguished by construction (a root iteration's principal
// alpha is always one less than its helper's), not by the instant either
// goroutine happens to run, via a barrier that waits for both calls to
// arrive before deciding which is which.
type principalAlwaysHaltsSearcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	alphas []eval.Score
	calls  int
}

func newPrincipalAlwaysHaltsSearcher() *principalAlwaysHaltsSearcher {
	s := &principalAlwaysHaltsSearcher{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *principalAlwaysHaltsSearcher) Search(ctx context.Context, sctx *search.Context, pos board.Position, alpha, beta eval.Score) (uint64, eval.Score, error) {
	s.mu.Lock()
	s.calls++
	s.alphas = append(s.alphas, alpha)
	s.cond.Broadcast()
	for len(s.alphas) < 2 {
		s.cond.Wait()
	}
	min := s.alphas[0]
	if s.alphas[1] < min {
		min = s.alphas[1]
	}
	isPrincipal := alpha == min
	s.mu.Unlock()

	if isPrincipal {
		return 1, eval.Invalid(), search.ErrHalted
	}
	return 1, beta, nil // the shifted window's deceptive fail-high score.
}

// TestSolve_TwoThreads_CancelledPrincipalIsDiscarded reproduces the race
// that used to make the coordinator substitute a surviving helper's
// shifted-window score (score-1) for a cancelled principal's result. With
// the principal always halted, the fix must report an incomplete result
// after the very first iteration rather than fabricate convergence from
// the helper.
func TestSolve_TwoThreads_CancelledPrincipalIsDiscarded(t *testing.T) {
	searcher := newPrincipalAlwaysHaltsSearcher()
	r := &searchctl.Root{Search: searcher}
	tt := search.NoTranspositionTable{}

	res, err := searchctl.Solve(context.Background(), r, board.New(), tt, searchctl.Options{Threads: 2})
	require.NoError(t, err) // Solve only surfaces ErrHalted for outer context cancellation.
	assert.False(t, res.Complete)

	searcher.mu.Lock()
	defer searcher.mu.Unlock()
	assert.Equal(t, 2, searcher.calls, "coordinator must stop after the first halted iteration, never loop on fabricated helper data")
}

func TestProgress_InvokedPerIteration(t *testing.T) {
	r := &searchctl.Root{Search: stubSearcher{trueScore: 4}}
	tt := search.NoTranspositionTable{}

	calls := 0
	opt := searchctl.Options{Threads: 1, Progress: func(searchctl.ProgressEvent) { calls++ }}

	_, err := searchctl.Solve(context.Background(), r, board.New(), tt, opt)
	require.NoError(t, err)
	assert.Greater(t, calls, 0)
}

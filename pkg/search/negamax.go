package search

import (
	"context"
	"sync/atomic"

	"github.com/WannesMalfait/connect4-go/pkg/board"
	"github.com/WannesMalfait/connect4-go/pkg/eval"
	"github.com/seekerror/stdlib/pkg/util/contextx"
)

// centerOrder is the static column preference order: center columns are
// explored first since they participate in more alignments.
var centerOrder = [board.Width]int{3, 2, 4, 1, 5, 0, 6}

// Book is the subset of the opening book's behavior the searcher needs.
// Implemented by pkg/book.Book; declared here to avoid an import cycle
// (book generation, in turn, drives the searcher).
type Book interface {
	Lookup(key board.Key) (move int, score eval.Score, ok bool)
}

// Context carries the resources shared by every node of one search call:
// the transposition table, the opening book (optional), the ply depth up
// to which the book is consulted, and a cooperative stop flag that a
// coordinator running multiple searches can raise to abandon this one.
type Context struct {
	TT        TranspositionTable
	Book      Book
	BookDepth int
	Stop      *atomic.Bool
}

// Negamax implements the fail-hard alpha-beta search over the Connect
// Four position tree described in spec.md section 4.4.
type Negamax struct{}

// Search returns the exact negamax value of pos within [alpha, beta],
// along with the number of nodes visited. Returns eval.Invalid() (and
// ErrHalted) if the context or the shared stop flag is raised mid-search.
func (Negamax) Search(ctx context.Context, sctx *Context, pos board.Position, alpha, beta eval.Score) (uint64, eval.Score, error) {
	run := &runNegamax{sctx: sctx}
	score := run.search(ctx, pos, alpha, beta)
	if score.IsInvalid() {
		return run.nodes, score, ErrHalted
	}
	return run.nodes, score, nil
}

type runNegamax struct {
	sctx  *Context
	nodes uint64
}

func (r *runNegamax) stopped(ctx context.Context) bool {
	if contextx.IsCancelled(ctx) {
		return true
	}
	return r.sctx.Stop != nil && r.sctx.Stop.Load()
}

// search implements spec.md section 4.4 steps 1-10.
func (r *runNegamax) search(ctx context.Context, pos board.Position, alpha, beta eval.Score) eval.Score {
	if r.stopped(ctx) {
		return eval.Invalid()
	}
	r.nodes++

	moves := pos.MovesPlayed()

	// 1. Draw check.
	if moves == board.MaxMoves {
		return eval.ZeroScore
	}

	// 2. Immediate win short-circuits before any TT probe.
	for col := 0; col < board.Width; col++ {
		if pos.CanPlay(col) && pos.IsWinningMove(col) {
			return eval.Score((board.MaxMoves + 1 - moves) / 2)
		}
	}

	// 3. Non-losing moves; empty means the opponent has an unstoppable
	// double threat and the position is lost.
	nonLosing := pos.NonLosingMoves()
	if nonLosing == 0 {
		return eval.Score(-(board.MaxMoves - moves) / 2)
	}

	// 4. Draw shortcut: the last playable ply cannot complete an
	// alignment given the checks above.
	if moves == board.MaxMoves-2 {
		return eval.ZeroScore
	}

	key := pos.SymmetricKey()

	// 5. Upper-bound tightening from remaining plies.
	max := eval.Score((board.MaxMoves - 1 - moves) / 2)
	if bound, ttScore, ok := r.sctx.TT.Read(key); ok && bound == eval.Upper {
		max = eval.Min(max, ttScore)
	}
	if beta > max {
		beta = max
		if alpha >= beta {
			return beta
		}
	}

	// 6. Lower-bound tightening.
	minScore := eval.Score(-(board.MaxMoves - 2 - moves) / 2)
	if bound, ttScore, ok := r.sctx.TT.Read(key); ok && bound == eval.Lower {
		minScore = eval.Max(minScore, ttScore)
	}
	if alpha < minScore {
		alpha = minScore
		if alpha >= beta {
			return alpha
		}
	}

	// 7. Opening-book probe, only near the root.
	if r.sctx.Book != nil && moves <= r.sctx.BookDepth {
		if _, score, ok := r.sctx.Book.Lookup(key); ok {
			return score
		}
	}

	// 8. Move generation & ordering, center-first, filtered through
	// non-losing moves.
	orderer := NewOrderer()
	for _, col := range centerOrder {
		if !pos.CanPlay(col) {
			continue
		}
		if pos.NextMoveBit(col)&nonLosing == 0 {
			continue
		}
		orderer.Insert(col, Priority(pos.MoveScore(col)))
	}

	// 9. Recurse in orderer order.
	for {
		col, ok := orderer.Next()
		if !ok {
			break
		}
		child := pos.Play(col)
		score := r.search(ctx, child, beta.Negate(), alpha.Negate())
		if score.IsInvalid() {
			return score
		}
		score = score.Negate()

		if score >= beta {
			r.sctx.TT.Write(key, eval.Lower, score)
			return score
		}
		if score > alpha {
			alpha = score
		}
	}

	// 10. Store the upper bound established by exhausting all moves.
	r.sctx.TT.Write(key, eval.Upper, alpha)
	return alpha
}

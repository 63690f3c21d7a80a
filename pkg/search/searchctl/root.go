// Package searchctl implements the root coordinator: the iterative
// null-window narrowing loop of spec.md section 4.5 and the cooperative
// 1-2 worker threading of section 4.7.
package searchctl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WannesMalfait/connect4-go/pkg/board"
	"github.com/WannesMalfait/connect4-go/pkg/eval"
	"github.com/WannesMalfait/connect4-go/pkg/search"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/contextx"
	"github.com/seekerror/stdlib/pkg/util/iox"
	"golang.org/x/sync/errgroup"
)

// Searcher is the search entry point the coordinator drives; satisfied
// by search.Negamax.
type Searcher interface {
	Search(ctx context.Context, sctx *search.Context, pos board.Position, alpha, beta eval.Score) (uint64, eval.Score, error)
}

// Options configures one root search.
type Options struct {
	Threads   int // clamped to [1,2]; larger N currently hurts (spec.md section 4.7).
	Weak      bool
	Book      search.Book
	BookDepth int
	// Progress, if set, is invoked once per null-window iteration.
	Progress func(ProgressEvent)
}

// ProgressEvent reports one null-window iteration's outcome, matching the
// shape of spec.md section 6's progress callback. The narrowing loop only
// ever learns a score for [min,max), never a move: identifying a best
// column requires a separate per-column Analyze pass, so no PV/best-move
// field is reported here.
type ProgressEvent struct {
	Alpha, Beta    eval.Score
	Duration       time.Duration
	Nodes          uint64
	NodesPerSecond float64
}

// Result is the outcome of a (possibly halted) root search.
type Result struct {
	Score    eval.Score
	Nodes    uint64
	Duration time.Duration
	Complete bool // false if halted before the window fully narrowed
}

// Handle controls an in-flight asynchronous root search.
type Handle interface {
	// Halt requests the search stop and blocks for the most recent result.
	Halt() Result
}

// Root is the iterative null-window narrowing coordinator.
type Root struct {
	Search Searcher
}

// Launch starts an asynchronous root search, publishing a Result after
// each null-window iteration on the returned channel until the window
// collapses or Halt is called. The channel holds one Result; a newer one
// replaces an earlier one the reader has not yet taken.
func (r *Root) Launch(ctx context.Context, pos board.Position, tt search.TranspositionTable, opt Options) (Handle, <-chan Result) {
	out := make(chan Result, 1)
	h := &handle{
		init: iox.NewAsyncCloser(),
		quit: iox.NewAsyncCloser(),
	}
	go h.process(ctx, r.Search, pos, tt, opt, out)
	return h, out
}

type handle struct {
	init, quit iox.AsyncCloser

	result Result
	mu     sync.Mutex
}

func (h *handle) process(ctx context.Context, searcher Searcher, pos board.Position, tt search.TranspositionTable, opt Options, out chan Result) {
	defer h.init.Close()
	defer close(out)

	wctx, cancel := contextx.WithQuitCancel(ctx, h.quit.Closed())
	defer cancel()

	threads := opt.Threads
	if threads < 1 {
		threads = 1
	}
	if threads > 2 {
		threads = 2
	}

	moves := pos.MovesPlayed()
	min := eval.Max(eval.MinScore, eval.Score(-(board.MaxMoves-moves)/2))
	max := eval.Min(eval.MaxScore, eval.Score((board.MaxMoves+1-moves)/2))
	if opt.Weak {
		min, max = eval.Max(min, -1), eval.Min(max, 1)
	}

	var totalNodes uint64
	start := time.Now()

	for min < max {
		if h.quit.IsClosed() {
			h.publish(out, Result{Score: min, Nodes: totalNodes, Duration: time.Since(start), Complete: false})
			return
		}

		med := medianBiasedTowardZero(min, max)

		iterStart := time.Now()
		nodes, score, err := runWindow(wctx, searcher, tt, opt, pos, threads, med, med+1)
		totalNodes += nodes

		if err == search.ErrHalted {
			h.publish(out, Result{Score: min, Nodes: totalNodes, Duration: time.Since(start), Complete: false})
			return
		}
		if err != nil {
			logw.Errorf(ctx, "search failed at window [%v,%v]: %v", med, med+1, err)
			h.publish(out, Result{Score: min, Nodes: totalNodes, Duration: time.Since(start), Complete: false})
			return
		}

		if score <= med {
			max = score
		} else {
			min = score
		}

		if opt.Progress != nil {
			elapsed := time.Since(iterStart)
			var nps float64
			if elapsed > 0 {
				nps = float64(nodes) / elapsed.Seconds()
			}
			opt.Progress(ProgressEvent{
				Alpha: min, Beta: max,
				Duration: elapsed, Nodes: nodes, NodesPerSecond: nps,
			})
		}

		h.publish(out, Result{Score: min, Nodes: totalNodes, Duration: time.Since(start), Complete: min >= max})
		h.init.Close()
	}
}

func (h *handle) publish(out chan Result, r Result) {
	h.mu.Lock()
	h.result = r
	h.mu.Unlock()

	select {
	case <-out:
	default:
	}
	out <- r
}

func (h *handle) Halt() Result {
	<-h.init.Closed()
	h.quit.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// medianBiasedTowardZero implements spec.md section 4.5 step 2a: the
// straight midpoint is adjusted toward zero, which the design notes call
// essential to avoid doubling search time on adversarial inputs.
func medianBiasedTowardZero(min, max eval.Score) eval.Score {
	med := min + (max-min)/2
	if med <= 0 && min/2 < med {
		med = min / 2
	} else if med >= 0 && max/2 > med {
		med = max / 2
	}
	return med
}

// runWindow executes one null-window search, fanning out to a helper
// thread searching the adjacent window when threads == 2 (spec.md
// section 4.7). The helper shares the TT and exists only to warm it for
// the next iteration's likely window; its score is never a valid stand-in
// for the principal's (the two windows are different), so the decision
// is always the principal's own result. If the principal is cancelled,
// that cancellation is reported as-is — a cancelled search contributes no
// score, per spec.md section 4.7/5, not even an adjacent one.
func runWindow(ctx context.Context, searcher Searcher, tt search.TranspositionTable, opt Options, pos board.Position, threads int, alpha, beta eval.Score) (uint64, eval.Score, error) {
	if threads < 2 {
		sctx := &search.Context{TT: tt, Book: opt.Book, BookDepth: opt.BookDepth}
		return searcher.Search(ctx, sctx, pos, alpha, beta)
	}

	var stop atomic.Bool

	type outcome struct {
		nodes uint64
		score eval.Score
		err   error
	}

	principal := outcome{}
	var helperNodes uint64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sctx := &search.Context{TT: tt, Book: opt.Book, BookDepth: opt.BookDepth, Stop: &stop}
		nodes, score, err := searcher.Search(gctx, sctx, pos, alpha, beta)
		principal = outcome{nodes, score, err}
		stop.Store(true) // principal has its answer (or gave up); the helper's warm-up is no longer useful.
		return nil
	})
	g.Go(func() error {
		// Adjacent window: a bet that the principal will fail high,
		// prefetching the next null-window iteration's TT entries. Its
		// own score and error are discarded; only its node count feeds
		// the aggregate total.
		sctx := &search.Context{TT: tt, Book: opt.Book, BookDepth: opt.BookDepth, Stop: &stop}
		nodes, _, _ := searcher.Search(gctx, sctx, pos, alpha+1, beta+1)
		helperNodes = nodes
		return nil
	})
	_ = g.Wait()

	total := principal.nodes + helperNodes
	if principal.err != nil {
		return total, eval.Invalid(), search.ErrHalted
	}
	return total, principal.score, nil
}

// Solve runs the narrowing loop to completion and returns the final
// exact score, blocking until convergence or cancellation.
func Solve(ctx context.Context, r *Root, pos board.Position, tt search.TranspositionTable, opt Options) (Result, error) {
	h, out := r.Launch(ctx, pos, tt, opt)
	var last Result
	for res := range out {
		last = res
	}
	if contextx.IsCancelled(ctx) {
		_ = h.Halt()
		return last, search.ErrHalted
	}
	return last, nil
}

// Column is one entry of Analyze's per-column result.
type Column struct {
	Score eval.Score
	Legal bool
}

// Analyze runs one search per legal root column by playing the move and
// negating Solve(child)'s score; illegal columns are marked !Legal.
func Analyze(ctx context.Context, r *Root, pos board.Position, tt search.TranspositionTable, opt Options) [board.Width]Column {
	var out [board.Width]Column
	for col := 0; col < board.Width; col++ {
		if !pos.CanPlay(col) {
			continue
		}
		child := pos.Play(col)
		res, err := Solve(ctx, r, child, tt, opt)
		if err != nil {
			continue
		}
		out[col] = Column{Score: res.Score.Negate(), Legal: true}
	}
	return out
}

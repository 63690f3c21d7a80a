// Package engine wraps the board, search and opening book packages into a
// single stateful façade suitable for driving from a console or a
// benchmark harness.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/WannesMalfait/connect4-go/pkg/board"
	"github.com/WannesMalfait/connect4-go/pkg/book"
	"github.com/WannesMalfait/connect4-go/pkg/eval"
	"github.com/WannesMalfait/connect4-go/pkg/search"
	"github.com/WannesMalfait/connect4-go/pkg/search/searchctl"
	"github.com/seekerror/build"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/contextx"
	"golang.org/x/sync/singleflight"
)

var version = build.NewVersion(0, 4, 0)

// Options are default search creation options.
type Options struct {
	// Hash is the transposition table size in MB. If zero, the engine runs
	// without a transposition table.
	Hash uint
	// Threads is the number of cooperative worker threads, clamped by
	// searchctl to [1,2].
	Threads int
	// Weak, if set, only determines the sign of the outcome (win/draw/
	// loss) rather than the exact score, per spec.md section 4.5.
	Weak bool
	// BookDepth is the moves-played ply limit to which the opening book
	// is consulted.
	BookDepth int
}

func (o Options) String() string {
	return fmt.Sprintf("{hash=%vMB, threads=%v, weak=%v, bookDepth=%v}", o.Hash, o.Threads, o.Weak, o.BookDepth)
}

// Engine encapsulates position state, the opening book, and the root
// search coordinator behind a single mutex-guarded façade.
type Engine struct {
	name, author string

	root    *searchctl.Root
	factory func(ctx context.Context, sizeBytes uint64) search.TranspositionTable
	opts    Options

	pos      board.Position
	history  []board.Position
	terminal bool

	tt    search.TranspositionTable
	book  *book.Book
	cache *SolveCache

	sf singleflight.Group

	active searchctl.Handle
	mu     sync.Mutex
}

// Option is an engine creation option.
type Option func(*Engine)

// WithTable configures the transposition table factory; defaults to
// search.NewTranspositionTable.
func WithTable(factory func(ctx context.Context, sizeBytes uint64) search.TranspositionTable) Option {
	return func(e *Engine) {
		e.factory = factory
	}
}

// WithOptions sets the default runtime options.
func WithOptions(opts Options) Option {
	return func(e *Engine) {
		e.opts = opts
	}
}

// WithCache attaches a persistent solve cache.
func WithCache(cache *SolveCache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// New creates an engine at the empty starting position.
func New(ctx context.Context, name, author string, searcher searchctl.Searcher, opts ...Option) *Engine {
	e := &Engine{
		name:    name,
		author:  author,
		root:    &searchctl.Root{Search: searcher},
		factory: search.NewTranspositionTable,
		opts:    Options{Threads: 1, BookDepth: 12},
	}
	for _, fn := range opts {
		fn(e)
	}

	_ = e.Reset(ctx)

	logw.Infof(ctx, "Initialized engine: %v, options=%v", e.Name(), e.opts)
	return e
}

// Name returns the engine name and version.
func (e *Engine) Name() string {
	return fmt.Sprintf("%v %v", e.name, version)
}

// Author returns the author.
func (e *Engine) Author() string {
	return e.author
}

func (e *Engine) Options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.opts
}

func (e *Engine) SetThreads(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.opts.Threads = n
}

func (e *Engine) SetWeak(weak bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.opts.Weak = weak
}

func (e *Engine) SetHash(mb uint) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.opts.Hash = mb
}

// Position returns the current position.
func (e *Engine) Position() board.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.pos
}

// Reset resets the engine to the empty starting position.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	logw.Infof(ctx, "Reset, hash=%vMB, threads=%v", e.opts.Hash, e.opts.Threads)

	_, _ = e.haltSearchIfActive(ctx)

	e.pos = board.New()
	e.history = nil
	e.terminal = false

	e.tt = search.NoTranspositionTable{}
	if e.opts.Hash > 0 {
		e.tt = e.factory(ctx, uint64(e.opts.Hash)<<20)
	}
	return nil
}

// Move plays col against the current position, usually an opponent move.
func (e *Engine) Move(ctx context.Context, col int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if col < 0 || col >= board.Width {
		return fmt.Errorf("%w: column %v out of range", ErrIllegalMove, col)
	}
	if e.terminal {
		return fmt.Errorf("%w: cannot move after the game is decided", ErrGameOver)
	}
	if !e.pos.CanPlay(col) {
		return fmt.Errorf("%w: column %v is full", ErrIllegalMove, col)
	}

	_, _ = e.haltSearchIfActive(ctx)

	win := e.pos.IsWinningMove(col)
	e.history = append(e.history, e.pos)
	e.pos = e.pos.Play(col)
	e.terminal = win || e.pos.MovesPlayed() == board.MaxMoves

	logw.Infof(ctx, "Move %v: %v", col, e.pos)
	return nil
}

// TakeBack undoes the latest move.
func (e *Engine) TakeBack(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.history) == 0 {
		return fmt.Errorf("%w: no move to take back", ErrIllegalMove)
	}

	_, _ = e.haltSearchIfActive(ctx)

	n := len(e.history) - 1
	e.pos = e.history[n]
	e.history = e.history[:n]
	e.terminal = false

	logw.Infof(ctx, "Takeback: %v", e.pos)
	return nil
}

// Terminal reports whether the current position has already been decided
// by an alignment or a full board.
func (e *Engine) Terminal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.terminal
}

func (e *Engine) searchOptions() searchctl.Options {
	opt := searchctl.Options{
		Threads:   e.opts.Threads,
		Weak:      e.opts.Weak,
		BookDepth: e.opts.BookDepth,
	}
	if e.book != nil {
		opt.Book = e.book
	}
	return opt
}

// Solve returns the exact (or, if Weak, sign-only) score of the current
// position. Concurrent calls for the same position are deduplicated via
// singleflight, since solving is expensive and callers (e.g. the console
// and a future UI) may issue redundant requests.
func (e *Engine) Solve(ctx context.Context) (eval.Score, error) {
	e.mu.Lock()
	pos := e.pos
	e.mu.Unlock()

	return e.solve(ctx, pos, nil)
}

// SolveWithProgress behaves like Solve but additionally invokes progress
// once per null-window iteration, and registers the search as the
// engine's active asynchronous search so a concurrent Halt can interrupt
// it. Intended for an interactive driver (e.g. console) that wants to
// stream search progress rather than block silently.
func (e *Engine) SolveWithProgress(ctx context.Context, progress func(searchctl.ProgressEvent)) (eval.Score, error) {
	e.mu.Lock()
	pos := e.pos
	e.mu.Unlock()

	return e.solve(ctx, pos, progress)
}

// solve runs a root search on pos, bypassing the position cache whenever
// progress is set: a progress-driven caller wants to watch every
// iteration, not get a cached answer back instantly.
func (e *Engine) solve(ctx context.Context, pos board.Position, progress func(searchctl.ProgressEvent)) (eval.Score, error) {
	e.mu.Lock()
	opt := e.searchOptions()
	opt.Progress = progress
	tt := e.tt
	cache := e.cache
	e.mu.Unlock()

	if cache != nil && progress == nil && !opt.Weak {
		if score, ok := cache.Get(pos.SymmetricKey()); ok {
			return score, nil
		}
	}

	key := fmt.Sprintf("%d", pos.SymmetricKey())
	v, err, _ := e.sf.Do(key, func() (interface{}, error) {
		h, out := e.root.Launch(ctx, pos, tt, opt)

		e.mu.Lock()
		e.active = h
		e.mu.Unlock()

		var last searchctl.Result
		for res := range out {
			last = res
		}

		e.mu.Lock()
		if e.active == h {
			e.active = nil // leave in place if Halt (or a newer search) already cleared/replaced it
		}
		e.mu.Unlock()

		if contextx.IsCancelled(ctx) {
			return eval.Invalid(), search.ErrHalted
		}
		return last.Score, nil
	})
	if err != nil {
		return eval.Invalid(), err
	}

	score := v.(eval.Score)
	if cache != nil && !opt.Weak && progress == nil {
		cache.Put(pos.SymmetricKey(), pos.MovesPlayed(), score)
	}
	return score, nil
}

// Analyze scores every legal column of the current position.
func (e *Engine) Analyze(ctx context.Context) [board.Width]searchctl.Column {
	return e.analyze(ctx, nil)
}

// AnalyzeWithProgress behaves like Analyze but additionally invokes
// progress once per null-window iteration of each column's search,
// tagged with the column it belongs to.
func (e *Engine) AnalyzeWithProgress(ctx context.Context, progress func(col int, ev searchctl.ProgressEvent)) [board.Width]searchctl.Column {
	return e.analyze(ctx, progress)
}

func (e *Engine) analyze(ctx context.Context, progress func(col int, ev searchctl.ProgressEvent)) [board.Width]searchctl.Column {
	e.mu.Lock()
	pos := e.pos
	e.mu.Unlock()

	var out [board.Width]searchctl.Column
	for col := 0; col < board.Width; col++ {
		if !pos.CanPlay(col) {
			continue
		}
		child := pos.Play(col)

		var cb func(searchctl.ProgressEvent)
		if progress != nil {
			col := col
			cb = func(ev searchctl.ProgressEvent) { progress(col, ev) }
		}

		score, err := e.solve(ctx, child, cb)
		if err != nil {
			continue
		}
		out[col] = searchctl.Column{Score: score.Negate(), Legal: true}
	}
	return out
}

// Halt halts any active asynchronous search.
func (e *Engine) Halt(ctx context.Context) (searchctl.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, ok := e.haltSearchIfActive(ctx)
	if !ok {
		return searchctl.Result{}, fmt.Errorf("no active search")
	}
	return res, nil
}

func (e *Engine) haltSearchIfActive(ctx context.Context) (searchctl.Result, bool) {
	if e.active != nil {
		res := e.active.Halt()
		logw.Infof(ctx, "Search halted: %v", res)

		e.active = nil
		return res, true
	}
	return searchctl.Result{}, false
}

// LoadBook loads an opening book from path, replacing any previously
// loaded book.
func (e *Engine) LoadBook(ctx context.Context, path string) error {
	b, err := book.Load(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.book = b
	logw.Infof(ctx, "Loaded book %v: %v entries, depth %v", path, b.Len(), b.Depth())
	return nil
}

// GenerateBook (re)generates an opening book to maxPly plies from the
// empty position and writes it to outPath. Any book currently loaded is
// cleared before generation starts: consulting a partially-built book
// while generating it would corrupt later entries (spec.md section 9).
func (e *Engine) GenerateBook(ctx context.Context, maxPly int, outPath string) error {
	e.mu.Lock()
	e.book = nil
	tt := e.tt
	opt := e.searchOptions()
	opt.Book = nil
	root := e.root
	e.mu.Unlock()

	solve := func(ctx context.Context, pos board.Position) (eval.Score, error) {
		res, err := searchctl.Solve(ctx, root, pos, tt, opt)
		if err != nil {
			return eval.Invalid(), err
		}
		return res.Score, nil
	}

	logw.Infof(ctx, "Generating book to depth %v -> %v", maxPly, outPath)

	b, err := book.Generate(ctx, solve, board.New(), maxPly)
	if err != nil {
		return err
	}
	if err := b.Save(outPath); err != nil {
		return err
	}

	e.mu.Lock()
	e.book = b
	e.mu.Unlock()

	logw.Infof(ctx, "Generated book: %v entries", b.Len())
	return nil
}

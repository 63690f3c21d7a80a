// Package console implements the line-oriented CLI driver of spec.md
// section 6: one engine-agnostic command switch over a stream of stdin
// lines, with 1-based column numbering at the boundary.
package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/WannesMalfait/connect4-go/pkg/bench"
	"github.com/WannesMalfait/connect4-go/pkg/engine"
	"github.com/WannesMalfait/connect4-go/pkg/search/searchctl"
	"github.com/dustin/go-humanize"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/iox"
)

// ProtocolName is the name of the console protocol. cmd/connectx starts
// this driver directly and does not read a protocol selector.
const ProtocolName = "console"

// Driver drives an Engine from a stream of command lines, emitting
// human-readable responses on a line-buffered output channel.
type Driver struct {
	iox.AsyncCloser

	e   *engine.Engine
	out chan<- string

	active atomic.Bool // a solve/analyze is in flight
}

// NewDriver starts the driver's processing loop and returns a handle plus
// its output stream.
func NewDriver(ctx context.Context, e *engine.Engine, in <-chan string) (*Driver, <-chan string) {
	out := make(chan string, 100)
	d := &Driver{
		AsyncCloser: iox.NewAsyncCloser(),
		e:           e,
		out:         out,
	}
	go d.process(ctx, in)
	return d, out
}

func (d *Driver) process(ctx context.Context, in <-chan string) {
	defer d.Close()
	defer close(d.out)

	logw.Infof(ctx, "Console protocol initialized")

	d.out <- fmt.Sprintf("%v by %v", d.e.Name(), d.e.Author())
	d.printBoard()
	d.help()

	for {
		select {
		case line, ok := <-in:
			if !ok {
				logw.Infof(ctx, "Input stream broken. Exiting")
				return
			}
			if d.dispatch(ctx, line) {
				return
			}

		case <-d.Closed():
			d.ensureInactive(ctx)

			logw.Infof(ctx, "Driver closed")
			return
		}
	}
}

// dispatch runs one command line; it returns true iff the driver should
// stop (a clean "quit").
func (d *Driver) dispatch(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "h", "?":
		d.help()

	case "position":
		d.ensureInactive(ctx)

		if err := d.e.Reset(ctx); err != nil {
			d.out <- fmt.Sprintf("reset failed: %v", err)
			return false
		}
		d.playMoves(ctx, args)
		d.printBoard()

	case "play", "move", "moves":
		d.ensureInactive(ctx)

		d.playMoves(ctx, args)
		d.printBoard()

	case "solve":
		d.startSolve(ctx)

	case "analyze":
		d.startAnalyze(ctx)

	case "halt", "stop":
		if _, err := d.e.Halt(ctx); err != nil {
			d.out <- fmt.Sprintf("halt failed: %v", err)
		}

	case "bench":
		d.bench(ctx, args)

	case "toggle-weak":
		opts := d.e.Options()
		d.e.SetWeak(!opts.Weak)
		d.out <- fmt.Sprintf("weak = %v", !opts.Weak)

	case "threads":
		if len(args) == 0 {
			d.out <- fmt.Sprintf("threads = %v", d.e.Options().Threads)
			break
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			d.out <- fmt.Sprintf("invalid thread count: %v", args[0])
			break
		}
		d.e.SetThreads(n)

	case "load-book":
		if len(args) == 0 {
			d.out <- "usage: load-book <path>"
			break
		}
		if err := d.e.LoadBook(ctx, args[0]); err != nil {
			d.out <- fmt.Sprintf("load-book failed: %v", err)
		}

	case "generate-book":
		if len(args) == 0 {
			d.out <- "usage: generate-book <depth> [out-path]"
			break
		}
		depth, err := strconv.Atoi(args[0])
		if err != nil {
			d.out <- fmt.Sprintf("invalid depth: %v", args[0])
			break
		}
		outPath := "book.txt"
		if len(args) > 1 {
			outPath = args[1]
		}
		if err := d.e.GenerateBook(ctx, depth, outPath); err != nil {
			d.out <- fmt.Sprintf("generate-book failed: %v", err)
		}

	case "quit", "exit", "q":
		d.ensureInactive(ctx)
		return true

	default:
		d.out <- fmt.Sprintf("unrecognized command: %v (try 'help')", cmd)
	}
	return false
}

// ensureInactive halts any in-flight solve/analyze before a command that
// mutates the position or ends the session; d.active is cleared first so
// a subsequently-completing search goroutine finds itself superseded and
// stays quiet.
func (d *Driver) ensureInactive(ctx context.Context) {
	d.active.Store(false)
	_, _ = d.e.Halt(ctx)
}

// startSolve runs Solve in the background so the driver keeps accepting
// commands (notably "halt") while the search is in flight, streaming one
// progress line per null-window iteration.
func (d *Driver) startSolve(ctx context.Context) {
	d.ensureInactive(ctx)
	d.active.Store(true)

	go func() {
		score, err := d.e.SolveWithProgress(ctx, func(ev searchctl.ProgressEvent) {
			d.out <- fmt.Sprintf("  info alpha=%v beta=%v nodes=%v nps=%v",
				ev.Alpha, ev.Beta, humanize.Comma(int64(ev.Nodes)), humanize.Comma(int64(ev.NodesPerSecond)))
		})
		if !d.active.CompareAndSwap(true, false) {
			return // halted or superseded; the requester already moved on
		}
		if err != nil {
			d.out <- fmt.Sprintf("solve failed: %v", err)
			return
		}
		d.out <- fmt.Sprintf("score %v", score)
	}()
}

// startAnalyze is startSolve's per-column counterpart.
func (d *Driver) startAnalyze(ctx context.Context) {
	d.ensureInactive(ctx)
	d.active.Store(true)

	go func() {
		cols := d.e.AnalyzeWithProgress(ctx, func(col int, ev searchctl.ProgressEvent) {
			d.out <- fmt.Sprintf("  info column %v alpha=%v beta=%v nodes=%v",
				col+1, ev.Alpha, ev.Beta, humanize.Comma(int64(ev.Nodes)))
		})
		if !d.active.CompareAndSwap(true, false) {
			return
		}
		for c, col := range cols {
			if col.Legal {
				d.out <- fmt.Sprintf("  column %v: %v", c+1, col.Score)
			} else {
				d.out <- fmt.Sprintf("  column %v: illegal", c+1)
			}
		}
	}()
}

// playMoves applies a sequence of 1-based column arguments.
func (d *Driver) playMoves(ctx context.Context, args []string) {
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			d.out <- fmt.Sprintf("invalid move: %v", arg)
			return
		}
		if err := d.e.Move(ctx, n-1); err != nil {
			d.out <- fmt.Sprintf("illegal move %v: %v", arg, err)
			return
		}
	}
}

func (d *Driver) bench(ctx context.Context, args []string) {
	if len(args) == 0 {
		d.out <- "usage: bench <path|all> [limit]"
		return
	}

	limit := 0
	if len(args) > 1 {
		limit, _ = strconv.Atoi(args[1])
	}

	if args[0] == "all" {
		reports, err := bench.RunAll(ctx, d.e, "testdata", limit)
		if err != nil {
			d.out <- fmt.Sprintf("bench failed: %v", err)
			return
		}
		for _, r := range reports {
			d.out <- r.String()
		}
		return
	}

	r, err := bench.Run(ctx, d.e, args[0], limit)
	if err != nil {
		d.out <- fmt.Sprintf("bench failed: %v", err)
		return
	}
	d.out <- r.String()
	for _, m := range r.Mismatches {
		d.out <- fmt.Sprintf("  mismatch line %v: expected %v, got %v", m.Case.Line, m.Case.Expected, m.Got)
	}
}

func (d *Driver) help() {
	for _, line := range []string{
		"commands:",
		"  help                          show this message",
		"  position <cols...>            reset and replay 1-based columns",
		"  play|move|moves <cols...>     apply 1-based columns to the current position",
		"  solve                         solve the current position (async, streams progress)",
		"  analyze                       score every legal column (async, streams progress)",
		"  halt|stop                     interrupt an in-flight solve/analyze",
		"  bench <path|all> [limit]      run a benchmark file (or all of testdata/)",
		"  toggle-weak                   flip weak (sign-only) solving",
		"  threads <n>                   set worker thread count",
		"  load-book <path>              load an opening book",
		"  generate-book <depth> [path]  generate and save an opening book",
		"  quit                          exit",
	} {
		d.out <- line
	}
}

func (d *Driver) printBoard() {
	d.out <- ""
	d.out <- d.e.Position().String()
	d.out <- fmt.Sprintf("moves played: %v", humanize.Comma(int64(d.e.Position().MovesPlayed())))
	d.out <- ""
}

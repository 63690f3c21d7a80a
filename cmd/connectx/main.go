// connectx is a console-driven Connect Four strong solver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/WannesMalfait/connect4-go/pkg/board"
	"github.com/WannesMalfait/connect4-go/pkg/engine"
	"github.com/WannesMalfait/connect4-go/pkg/engine/console"
	"github.com/WannesMalfait/connect4-go/pkg/search"
	"github.com/seekerror/logw"
)

var (
	hash      = flag.Uint("hash", 64, "Transposition table size in MB (zero disables it)")
	threads   = flag.Int("threads", 1, "Worker thread count, clamped to [1,2]")
	weak      = flag.Bool("weak", false, "Only determine win/draw/loss, not the exact score")
	bookDepth = flag.Int("book-depth", 12, "Moves-played ply limit to which the opening book is consulted")
	book      = flag.String("book", "", "Opening book path to load at startup")
	cacheDir  = flag.String("cache", "", "Directory for a persistent solve cache (disabled if empty)")
	count     = flag.Int("count", 0, "If nonzero, run a perft-style move count to this depth instead of the console")
)

func init() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: connectx [options]

connectx is a strong solver for Connect Four: it exhaustively and exactly
scores any reachable position via negamax search with a transposition
table, opening book, and a small cooperative worker pool.
Options:
`)
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	ctx := context.Background()

	if *count > 0 {
		runPerft(*count)
		return
	}

	opts := []engine.Option{
		engine.WithOptions(engine.Options{
			Hash:      *hash,
			Threads:   *threads,
			Weak:      *weak,
			BookDepth: *bookDepth,
		}),
	}
	if *cacheDir != "" {
		cache, err := engine.OpenSolveCache(ctx, *cacheDir, *bookDepth)
		if err != nil {
			logw.Exitf(ctx, "Failed to open solve cache: %v", err)
		}
		defer cache.Close()
		opts = append(opts, engine.WithCache(cache))
	}

	e := engine.New(ctx, "connectx", "connect4-go", search.Negamax{}, opts...)

	if *book != "" {
		if err := e.LoadBook(ctx, *book); err != nil {
			logw.Exitf(ctx, "Failed to load book %v: %v", *book, err)
		}
	}

	in := engine.ReadStdinLines(ctx)
	driver, out := console.NewDriver(ctx, e, in)
	go engine.WriteStdoutLines(ctx, out)

	<-driver.Closed()
}

// runPerft enumerates the Connect Four move tree to depth plies, ignoring
// alignments, purely to sanity-check move generation and timing, mirroring
// how a chess engine's perft tool debugs its own move generator.
func runPerft(depth int) {
	for d := 1; d <= depth; d++ {
		start := time.Now()
		nodes := perft(board.New(), d)
		fmt.Printf("perft,%v,%v,%v\n", d, nodes, time.Since(start).Microseconds())
	}
}

func perft(pos board.Position, depth int) int64 {
	if depth == 0 {
		return 1
	}

	var nodes int64
	for col := 0; col < board.Width; col++ {
		if pos.CanPlay(col) {
			nodes += perft(pos.Play(col), depth-1)
		}
	}
	return nodes
}

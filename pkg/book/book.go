// Package book implements the opening book: a persistent, sorted mapping
// from position key to (best move, exact score), and the enumeration that
// generates one from scratch.
package book

import (
	"bufio"
	"context"
	"fmt"
	"math/bits"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/WannesMalfait/connect4-go/pkg/board"
	"github.com/WannesMalfait/connect4-go/pkg/eval"
)

// Entry is one opening book record.
type Entry struct {
	Key   board.Key
	Move  int
	Score eval.Score
}

// Book is an immutable, sorted sequence of entries queried by binary
// search on Key, per spec.md section 3.
type Book struct {
	entries []Entry
	depth   int
}

// Empty returns a book with no entries.
func Empty() *Book {
	return &Book{}
}

// Depth returns the number of plies from the empty position the book
// covers: the maximum moves-played of any entry's position, inferred at
// load/generation time since the file format carries no header.
func (b *Book) Depth() int {
	return b.depth
}

// Len returns the number of entries.
func (b *Book) Len() int {
	return len(b.entries)
}

// Lookup returns the best move and exact score for key, if present.
func (b *Book) Lookup(key board.Key) (int, eval.Score, bool) {
	i := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Key >= key
	})
	if i < len(b.entries) && b.entries[i].Key == key {
		e := b.entries[i]
		return e.Move, e.Score, true
	}
	return 0, 0, false
}

// Load parses the UTF-8 text format of spec.md section 6: one
// "<key> <move> <score>" triple per line, blank lines and lines starting
// with '#' ignored. Fails fast on any malformed line.
func Load(path string) (*Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("book: open %v: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	maxMoves := 0

	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("book: %v:%v: malformed line %q", path, lineNo, line)
		}

		key, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("book: %v:%v: bad key: %w", path, lineNo, err)
		}
		move, err := strconv.Atoi(fields[1])
		if err != nil || move < 0 || move >= board.Width {
			return nil, fmt.Errorf("book: %v:%v: bad move %q", path, lineNo, fields[1])
		}
		score, err := strconv.Atoi(fields[2])
		if err != nil || score < int(eval.MinScore) || score > int(eval.MaxScore) {
			return nil, fmt.Errorf("book: %v:%v: bad score %q", path, lineNo, fields[2])
		}

		entries = append(entries, Entry{Key: board.Key(key), Move: move, Score: eval.Score(score)})
		if moves := movesPlayedFromKey(key); moves > maxMoves {
			maxMoves = moves
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("book: %v: %w", path, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return &Book{entries: entries, depth: maxMoves}, nil
}

// Save writes the book in the same line format Load reads.
func (b *Book) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("book: create %v: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range b.entries {
		if _, err := fmt.Fprintf(w, "%d %d %d\n", uint64(e.Key), e.Move, int8(e.Score)); err != nil {
			return fmt.Errorf("book: write %v: %w", path, err)
		}
	}
	return w.Flush()
}

// Solver is the engine's full search entry point, used by Generate. The
// caller must disable book consultation within solve for the duration of
// generation (spec.md section 9): a generator that reads its own
// partially-built book would corrupt later entries.
type Solver func(ctx context.Context, pos board.Position) (eval.Score, error)

// Generate enumerates every position reachable from root up to maxPly
// plies, deduplicated by symmetric key, and solves each with solve. The
// walk order is deterministic (center-first column order), so repeated
// generation of the same root/depth/solver is reproducible.
func Generate(ctx context.Context, solve Solver, root board.Position, maxPly int) (*Book, error) {
	g := &generator{solve: solve, maxPly: maxPly, visited: map[board.Key]bool{}}
	if err := g.walk(ctx, root); err != nil {
		return nil, err
	}

	sort.Slice(g.entries, func(i, j int) bool { return g.entries[i].Key < g.entries[j].Key })
	return &Book{entries: g.entries, depth: maxPly}, nil
}

type generator struct {
	solve   Solver
	maxPly  int
	visited map[board.Key]bool
	entries []Entry
}

var centerOrder = [board.Width]int{3, 2, 4, 1, 5, 0, 6}

func (g *generator) walk(ctx context.Context, pos board.Position) error {
	key := pos.SymmetricKey()
	if g.visited[key] {
		return nil
	}
	g.visited[key] = true

	score, err := g.solve(ctx, pos)
	if err != nil {
		return fmt.Errorf("book: generate: %w", err)
	}

	bestMove := -1
	hasChild := false
	for _, col := range centerOrder {
		if !pos.CanPlay(col) {
			continue
		}
		hasChild = true
		child := pos.Play(col)

		childScore, err := g.solve(ctx, child)
		if err != nil {
			return fmt.Errorf("book: generate: %w", err)
		}
		if bestMove == -1 && childScore.Negate() == score {
			bestMove = col
		}

		if pos.MovesPlayed() < g.maxPly {
			if err := g.walk(ctx, child); err != nil {
				return err
			}
		}
	}

	if hasChild {
		g.entries = append(g.entries, Entry{Key: key, Move: bestMove, Score: score})
	}
	return nil
}

// movesPlayedFromKey recovers moves_played from a raw (pre-mirror) key:
// per column, key's 7-bit slice is the current player's stones OR'd with
// a single marker bit at the column's height (the carry left behind by
// mask+bottom_row_mask), and that marker is always the slice's highest
// set bit. Summing each column's height recovers moves_played exactly.
func movesPlayedFromKey(key uint64) int {
	moves := 0
	for c := 0; c < board.Width; c++ {
		slice := uint8((key >> (c * board.H1)) & 0x7f)
		moves += bits.Len8(slice) - 1 // slice is never 0: bottom_row_mask sets bit 0.
	}
	return moves
}

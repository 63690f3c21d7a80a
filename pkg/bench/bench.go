// Package bench implements the benchmark file format and harness of
// spec.md section 6: solve a list of known positions and report any
// mismatch against their expected score.
package bench

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/WannesMalfait/connect4-go/pkg/eval"
	"github.com/dustin/go-humanize"
)

// Case is one benchmark line: a 0-based column sequence and its expected
// exact score.
type Case struct {
	Line     int
	Moves    []int
	Expected eval.Score
}

// ParseLine parses one "<move_sequence> <expected_score>" line, where
// move_sequence is a string of digits '1'-'7' naming 1-based columns.
func ParseLine(lineNo int, line string) (Case, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Case{}, fmt.Errorf("bench: line %v: malformed %q", lineNo, line)
	}

	seq := fields[0]
	moves := make([]int, 0, len(seq))
	for _, r := range seq {
		if r < '1' || r > '7' {
			return Case{}, fmt.Errorf("bench: line %v: bad column %q in %q", lineNo, string(r), seq)
		}
		moves = append(moves, int(r-'1'))
	}

	expected, err := strconv.Atoi(fields[1])
	if err != nil || expected < int(eval.MinScore) || expected > int(eval.MaxScore) {
		return Case{}, fmt.Errorf("bench: line %v: bad expected score %q", lineNo, fields[1])
	}

	return Case{Line: lineNo, Moves: moves, Expected: eval.Score(expected)}, nil
}

// Load reads every non-blank line of path as a Case. Malformed lines are
// counted and skipped, not fatal, per spec.md section 7.
func Load(path string) (cases []Case, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("bench: open %v: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c, err := ParseLine(lineNo, line)
		if err != nil {
			skipped++
			continue
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("bench: %v: %w", path, err)
	}
	return cases, skipped, nil
}

// Solver is the minimal engine surface the harness drives: reset to the
// empty position, replay a move sequence, and solve.
type Solver interface {
	Reset(ctx context.Context) error
	Move(ctx context.Context, col int) error
	Solve(ctx context.Context) (eval.Score, error)
}

// Mismatch is one case whose solved score disagreed with its expected
// value.
type Mismatch struct {
	Case Case
	Got  eval.Score
}

// Report summarizes one benchmark file run.
type Report struct {
	Path       string
	Total      int
	Skipped    int
	Mismatches []Mismatch
	Duration   time.Duration
}

func (r Report) String() string {
	nps := float64(r.Total) / r.Duration.Seconds()
	return fmt.Sprintf("%v: %v/%v positions matched, %v skipped, %v (%v positions/sec)",
		r.Path, r.Total-len(r.Mismatches), r.Total, r.Skipped, r.Duration, humanize.Comma(int64(nps)))
}

// Run solves every case in path with s and reports mismatches.
func Run(ctx context.Context, s Solver, path string, limit int) (Report, error) {
	cases, skipped, err := Load(path)
	if err != nil {
		return Report{}, err
	}
	if limit > 0 && len(cases) > limit {
		cases = cases[:limit]
	}

	start := time.Now()

	var mismatches []Mismatch
	for _, c := range cases {
		if err := s.Reset(ctx); err != nil {
			return Report{}, err
		}
		for _, col := range c.Moves {
			if err := s.Move(ctx, col); err != nil {
				return Report{}, fmt.Errorf("bench: %v: line %v: %w", path, c.Line, err)
			}
		}

		got, err := s.Solve(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("bench: %v: line %v: %w", path, c.Line, err)
		}
		if got != c.Expected {
			mismatches = append(mismatches, Mismatch{Case: c, Got: got})
		}
	}

	return Report{
		Path:       path,
		Total:      len(cases),
		Skipped:    skipped,
		Mismatches: mismatches,
		Duration:   time.Since(start),
	}, nil
}

// RunAll runs every regular file in dir through Run, in lexical order.
func RunAll(ctx context.Context, s Solver, dir string, limit int) ([]Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("bench: read dir %v: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var reports []Report
	for _, name := range names {
		rep, err := Run(ctx, s, filepath.Join(dir, name), limit)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

package engine

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/WannesMalfait/connect4-go/pkg/board"
	"github.com/WannesMalfait/connect4-go/pkg/eval"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/dustin/go-humanize"
	"github.com/seekerror/logw"
)

// SolveCache is an optional on-disk memoization of solved exact scores,
// distinct from the in-memory transposition table: entries persist
// across process runs. Additive to spec.md; Solve degrades to pure
// in-memory search when no cache is configured.
type SolveCache struct {
	db     *badger.DB
	maxPly int
}

// OpenSolveCache opens (creating if absent) a persistent solve cache at
// dir, storing only positions at or below maxPly moves played.
func OpenSolveCache(ctx context.Context, dir string, maxPly int) (*SolveCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open solve cache at %v: %v", ErrIo, dir, err)
	}

	lsm, vlog := db.Size()
	logw.Infof(ctx, "Opened solve cache at %v (lsm=%v, vlog=%v)", dir, humanize.Bytes(uint64(lsm)), humanize.Bytes(uint64(vlog)))

	return &SolveCache{db: db, maxPly: maxPly}, nil
}

// Close releases the underlying database.
func (c *SolveCache) Close() error {
	return c.db.Close()
}

// Get returns the cached exact score for key, if present.
func (c *SolveCache) Get(key board.Key) (eval.Score, bool) {
	var score eval.Score
	found := false

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKeyBytes(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 1 {
				return fmt.Errorf("corrupt solve cache entry for key %v", key)
			}
			score = eval.Score(int8(val[0]))
			found = true
			return nil
		})
	})
	if err != nil || !found {
		return 0, false
	}
	return score, true
}

// Put stores score for key if movesPlayed is within the cache's ply
// threshold; silently skipped otherwise.
func (c *SolveCache) Put(key board.Key, movesPlayed int, score eval.Score) {
	if movesPlayed > c.maxPly {
		return
	}
	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKeyBytes(key), []byte{byte(int8(score))})
	})
}

func cacheKeyBytes(key board.Key) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(key))
	return b[:]
}

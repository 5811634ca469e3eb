// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package score

import (
	"context"
	"fmt"
	"os"
	"sync"

	"modernc.org/kv"

	"github.com/kortschak/balrog/internal/store"
)

// OpenCacheDB opens the score cache database at path, creating it if
// it does not exist.
func OpenCacheDB(path string) (*kv.DB, error) {
	opts := &kv.Options{Compare: store.ByKindDigest}
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return kv.Create(path, opts)
	}
	return kv.Open(path, opts)
}

// Cache is an Oracle that persists scores obtained from another Oracle.
// Items that have been scored before are served from the database without
// calling the underlying Oracle.
type Cache struct {
	Oracle Oracle

	mu sync.Mutex
	db *kv.DB

	hits, misses int
}

// NewCache returns a Cache storing the scores returned by o in db.
func NewCache(o Oracle, db *kv.DB) *Cache {
	return &Cache{Oracle: o, db: db}
}

// ScoreGenes satisfies the Oracle interface.
func (c *Cache) ScoreGenes(ctx context.Context, proteins [][]byte) ([]float64, error) {
	return c.score(ctx, store.Gene, c.Oracle.ScoreGenes, proteins)
}

// ScoreTIS satisfies the Oracle interface.
func (c *Cache) ScoreTIS(ctx context.Context, windows [][]byte) ([]float64, error) {
	return c.score(ctx, store.TIS, c.Oracle.ScoreTIS, windows)
}

// Stats returns the number of items served from the cache and the number
// forwarded to the underlying Oracle.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) score(ctx context.Context, kind byte, fn func(context.Context, [][]byte) ([]float64, error), items [][]byte) ([]float64, error) {
	scores := make([]float64, len(items))
	keys := make([][]byte, len(items))
	var missed []int

	c.mu.Lock()
	for i, it := range items {
		keys[i] = store.MarshalScoreKey(store.KeyFor(kind, it))
		v, err := c.db.Get(nil, keys[i])
		if err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("score cache: %w", err)
		}
		if v == nil {
			missed = append(missed, i)
			continue
		}
		scores[i], err = store.UnmarshalScore(v)
		if err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("score cache: %w", err)
		}
	}
	c.hits += len(items) - len(missed)
	c.misses += len(missed)
	c.mu.Unlock()

	if len(missed) == 0 {
		return scores, nil
	}

	query := make([][]byte, len(missed))
	for j, i := range missed {
		query[j] = items[i]
	}
	got, err := fn(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(got) != len(query) {
		return nil, fmt.Errorf("%w: %d scores for %d items", ErrOracle, len(got), len(query))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err = c.db.BeginTransaction()
	if err != nil {
		return nil, fmt.Errorf("score cache: %w", err)
	}
	for j, i := range missed {
		scores[i] = got[j]
		err = c.db.Set(keys[i], store.MarshalScore(got[j]))
		if err != nil {
			c.db.Rollback()
			return nil, fmt.Errorf("score cache: %w", err)
		}
	}
	err = c.db.Commit()
	if err != nil {
		return nil, fmt.Errorf("score cache: %w", err)
	}
	return scores, nil
}

// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package score

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"modernc.org/kv"

	"github.com/kortschak/balrog/internal/store"
)

func items(s ...string) [][]byte {
	b := make([][]byte, len(s))
	for i, v := range s {
		b[i] = []byte(v)
	}
	return b
}

func TestCache(t *testing.T) {
	db, err := kv.CreateMem(&kv.Options{Compare: store.ByKindDigest})
	require.NoError(t, err)
	defer db.Close()

	inner := &lengthOracle{}
	c := NewCache(inner, db)
	ctx := context.Background()

	got, err := c.ScoreGenes(ctx, items("MK", "MKLV"))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, got)
	assert.Equal(t, []int{2}, inner.geneBatches)

	got, err = c.ScoreGenes(ctx, items("MKL", "MK", "MKLV"))
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2, 4}, got)
	assert.Equal(t, []int{2, 1}, inner.geneBatches, "only the uncached item should reach the oracle")

	// Gene and TIS scores are cached separately.
	got, err = c.ScoreTIS(ctx, items("MK"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, got)
	assert.Equal(t, []int{1}, inner.tisBatches)

	hits, misses := c.Stats()
	assert.Equal(t, 2, hits)
	assert.Equal(t, 4, misses)
}

func TestCacheFailureNotStored(t *testing.T) {
	db, err := kv.CreateMem(&kv.Options{Compare: store.ByKindDigest})
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	fail := true
	inner := Func{
		Genes: func(_ context.Context, items [][]byte) ([]float64, error) {
			if fail {
				return nil, boom
			}
			return make([]float64, len(items)), nil
		},
	}
	c := NewCache(inner, db)

	_, err = c.ScoreGenes(context.Background(), items("MK"))
	assert.True(t, errors.Is(err, boom))

	fail = false
	got, err := c.ScoreGenes(context.Background(), items("MK"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, got)
}

func TestOpenCacheDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.db")

	db, err := OpenCacheDB(path)
	require.NoError(t, err)
	c := NewCache(&lengthOracle{}, db)
	_, err = c.ScoreGenes(context.Background(), items("MKLV"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenCacheDB(path)
	require.NoError(t, err)
	defer db.Close()
	inner := &lengthOracle{}
	c = NewCache(inner, db)
	got, err := c.ScoreGenes(context.Background(), items("MKLV"))
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, got)
	assert.Empty(t, inner.geneBatches)
}

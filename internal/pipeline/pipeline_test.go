// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/biogo/seq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kortschak/balrog/gff3"
	"github.com/kortschak/balrog/internal/config"
	"github.com/kortschak/balrog/orf"
	"github.com/kortschak/balrog/score"
)

var (
	// singleORF holds one 150 base forward ORF at 75.
	singleORF = strings.Repeat("C", 75) +
		"ATG" + strings.Repeat("GCC", 48) + "TAA" +
		strings.Repeat("C", 75)

	// threeORFs holds 150 base forward ORFs at 10, 170 and 330.
	threeORFs = strings.Repeat("C", 10) + strings.Repeat(
		"ATG"+strings.Repeat("GCC", 48)+"TAA"+strings.Repeat("C", 10), 3)

	// nested holds a 159 base ATG-initiated ORF at 2 and a
	// 126 base GTG-initiated ORF at 35 sharing its stop.
	nested = "CC" + "ATG" + strings.Repeat("GCC", 10) + "GTG" +
		strings.Repeat("GCC", 40) + "TAG" + "CCCC"
)

// lengthOracle scores proteins by their length and start sites by
// whether they are GTG.
func lengthOracle() score.Func {
	return score.Func{
		Genes: func(_ context.Context, proteins [][]byte) ([]float64, error) {
			s := make([]float64, len(proteins))
			for i, p := range proteins {
				s[i] = float64(len(p)) / 10
			}
			return s, nil
		},
		TIS: func(_ context.Context, windows [][]byte) ([]float64, error) {
			s := make([]float64, len(windows))
			for i, w := range windows {
				if string(w[orf.TISFlank:orf.TISFlank+3]) == "GTG" {
					s[i] = 1
				}
			}
			return s, nil
		},
	}
}

// failingOracle is lengthOracle that fails for 41 residue proteins.
func failingOracle() score.Func {
	o := lengthOracle()
	genes := o.Genes
	o.Genes = func(ctx context.Context, proteins [][]byte) ([]float64, error) {
		for _, p := range proteins {
			if len(p) == 41 {
				return nil, errors.New("model crashed")
			}
		}
		return genes(ctx, proteins)
	}
	return o
}

func annotator(t *testing.T, o score.Oracle) *Annotator {
	c := config.Default()
	c.Threads = 2
	c.Verbose = false
	a, err := New(c, o, nil)
	require.NoError(t, err)
	return a
}

func TestAnnotateSingleORF(t *testing.T) {
	a := annotator(t, lengthOracle())
	r, err := a.Annotate(context.Background(), Contig{ID: "contig", Seq: []byte(singleORF)})
	require.NoError(t, err)
	assert.True(t, r.Done)
	assert.Equal(t, 300, r.Length)
	assert.Equal(t, 1, r.Candidates)
	genes := r.GeneSet()
	require.Len(t, genes, 1)
	assert.Equal(t, 75, genes[0].Start)
	assert.Equal(t, 222, genes[0].Stop)
	assert.Equal(t, seq.Plus, genes[0].Strand)
	assert.Equal(t, 150, genes[0].Length)
	assert.InDelta(t, 4.9, genes[0].Score, 1e-9)
	assert.Nil(t, r.Genes[0].Hit)
	assert.Equal(t, 150, r.CodingBases(1))
}

func TestAnnotateEmpty(t *testing.T) {
	a := annotator(t, lengthOracle())
	r, err := a.Annotate(context.Background(), Contig{ID: "empty"})
	require.NoError(t, err)
	assert.True(t, r.Done)
	assert.Empty(t, r.Genes)
	assert.Nil(t, r.Coverage)
	assert.Equal(t, 0, r.CodingBases(1))

	var buf bytes.Buffer
	err = gff3.Write(&buf, []gff3.Annotation{{Region: gff3.Region{Name: r.Contig, Length: r.Length}, Genes: r.GeneSet()}})
	require.NoError(t, err)
	assert.Equal(t, "##gff-version 3\n##sequence-region empty 1 0\n", buf.String())
}

func TestAnnotateNoCandidates(t *testing.T) {
	a := annotator(t, lengthOracle())
	r, err := a.Annotate(context.Background(), Contig{ID: "poly-c", Seq: bytes.Repeat([]byte("C"), 500)})
	require.NoError(t, err)
	assert.True(t, r.Done)
	assert.Zero(t, r.Candidates)
	assert.Empty(t, r.Genes)
	assert.Equal(t, 0, r.CodingBases(1))
}

func TestAnnotateCoverage(t *testing.T) {
	a := annotator(t, lengthOracle())
	r, err := a.Annotate(context.Background(), Contig{ID: "contig", Seq: []byte(threeORFs)})
	require.NoError(t, err)
	require.Len(t, r.Genes, 3)
	for i, want := range []int{10, 170, 330} {
		assert.Equal(t, want, r.Genes[i].Start)
	}
	assert.Equal(t, 450, r.CodingBases(1))
	assert.Equal(t, 0, r.CodingBases(2))
}

func TestStartSelection(t *testing.T) {
	for _, test := range []struct {
		mode      string
		wantStart int
	}{
		// ATG: 5.2+0, GTG: 4.1+1
		{mode: config.StartCombined, wantStart: 2},
		{mode: config.StartTIS, wantStart: 35},
	} {
		t.Run(test.mode, func(t *testing.T) {
			a := annotator(t, lengthOracle())
			a.StartSelection = test.mode
			r, err := a.Annotate(context.Background(), Contig{ID: "nested", Seq: []byte(nested)})
			require.NoError(t, err)
			assert.Equal(t, 2, r.Candidates)
			genes := r.GeneSet()
			require.Len(t, genes, 1)
			assert.Equal(t, test.wantStart, genes[0].Start)
			assert.Equal(t, 158, genes[0].Stop)
		})
	}
}

func TestMinScore(t *testing.T) {
	a := annotator(t, lengthOracle())
	a.MinScore = 5
	r, err := a.Annotate(context.Background(), Contig{ID: "contig", Seq: []byte(singleORF)})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Candidates)
	assert.Empty(t, r.Genes, "candidate scoring 4.9 should not pass a minimum of 5")
}

// negativeOracle scores proteins by the negation of their length.
func negativeOracle() score.Func {
	o := lengthOracle()
	o.Genes = func(_ context.Context, proteins [][]byte) ([]float64, error) {
		s := make([]float64, len(proteins))
		for i, p := range proteins {
			s[i] = -float64(len(p)) / 10
		}
		return s, nil
	}
	return o
}

func TestNegativeScores(t *testing.T) {
	a := annotator(t, negativeOracle())
	r, err := a.Annotate(context.Background(), Contig{ID: "contig", Seq: []byte(singleORF)})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Candidates)
	genes := r.GeneSet()
	require.Len(t, genes, 1, "default minimum score should keep negative scoring candidates")
	assert.Equal(t, 75, genes[0].Start)
	assert.InDelta(t, -4.9, genes[0].Score, 1e-9)

	a.MinScore = 0
	r, err = a.Annotate(context.Background(), Contig{ID: "contig", Seq: []byte(singleORF)})
	require.NoError(t, err)
	assert.Empty(t, r.Genes)
}

func TestDOT(t *testing.T) {
	a := annotator(t, lengthOracle())
	a.DOTDir = t.TempDir()
	_, err := a.Annotate(context.Background(), Contig{ID: "contig", Seq: []byte(threeORFs)})
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(a.DOTDir, "contig.dot"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "digraph contig {")
}

func testContigs() Contigs {
	return Contigs{
		{ID: "single", Seq: []byte(singleORF)},
		{ID: "three", Seq: []byte(threeORFs)},
		{ID: "reverse", Seq: orf.RevComp([]byte(singleORF))},
		{ID: "empty"},
		{ID: "nested", Seq: []byte(nested)},
	}
}

func TestRun(t *testing.T) {
	a := annotator(t, lengthOracle())
	a.Threads = 3
	src := testContigs()

	results, err := a.Run(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, results, len(src))
	wantGenes := []int{1, 3, 1, 0, 1}
	for i, r := range results {
		assert.Equal(t, src[i].ID, r.Contig, "results out of order")
		assert.Equal(t, len(src[i].Seq), r.Length)
		assert.True(t, r.Done)
		assert.NoError(t, r.Err)
		assert.Len(t, r.Genes, wantGenes[i], "unexpected gene count for %s", r.Contig)
	}
	assert.Equal(t, seq.Minus, results[2].Genes[0].Strand)

	for i := 0; i < 5; i++ {
		again, err := a.Run(context.Background(), src)
		require.NoError(t, err)
		for j := range results {
			assert.Equal(t, results[j].GeneSet(), again[j].GeneSet(), "non-deterministic result for %s", results[j].Contig)
		}
	}
}

func TestRunOracleAbort(t *testing.T) {
	a := annotator(t, failingOracle())
	a.Threads = 1
	src := Contigs{
		{ID: "single", Seq: []byte(singleORF)},
		{ID: "nested", Seq: []byte(nested)},
		{ID: "three", Seq: []byte(threeORFs)},
	}

	results, err := a.Run(context.Background(), src)
	assert.True(t, errors.Is(err, score.ErrOracle), "unexpected error: %v", err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Done, "completed contig should be preserved")
	assert.Len(t, results[0].Genes, 1)
	assert.False(t, results[1].Done)
	assert.Empty(t, results[1].Genes, "failed contig should have no genes")
	assert.False(t, results[2].Done, "contig after failure should not be annotated")
}

func TestRunOracleSkip(t *testing.T) {
	a := annotator(t, failingOracle())
	a.Threads = 1
	a.OnOracleError = config.OracleSkip
	src := Contigs{
		{ID: "single", Seq: []byte(singleORF)},
		{ID: "nested", Seq: []byte(nested)},
		{ID: "three", Seq: []byte(threeORFs)},
	}

	results, err := a.Run(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Done)
	}
	assert.NoError(t, results[0].Err)
	assert.True(t, errors.Is(results[1].Err, score.ErrOracle), "unexpected error: %v", results[1].Err)
	assert.Empty(t, results[1].Genes)
	assert.NoError(t, results[2].Err)
	assert.Len(t, results[2].Genes, 3)
}

type failingSource struct{ Contigs }

func (s failingSource) Contig(i int) (Contig, error) {
	if i == 1 {
		return Contig{}, errors.New("truncated input")
	}
	return s.Contigs[i], nil
}

func TestRunSourceError(t *testing.T) {
	a := annotator(t, lengthOracle())
	a.OnOracleError = config.OracleSkip
	_, err := a.Run(context.Background(), failingSource{testContigs()})
	assert.EqualError(t, err, "truncated input")
}

func TestNew(t *testing.T) {
	c := config.Default()
	c.Table = 4
	a, err := New(c, lengthOracle(), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, a.Table.ID())
	assert.Equal(t, 60, a.Params.MaxOverlap)
	assert.Equal(t, 50, a.Params.MaxConnections)

	c.Table = 2
	_, err = New(c, lengthOracle(), nil)
	assert.True(t, errors.Is(err, config.ErrInvalid), "unexpected error: %v", err)
}

// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package score provides the boundary to the predictive model used to
// score candidate genes, and batched scoring of ORF candidates.
package score

import (
	"context"
	"errors"
	"fmt"

	"github.com/kortschak/balrog/codon"
	"github.com/kortschak/balrog/orf"
)

// ErrOracle is wrapped by all errors resulting from a failed call to an
// Oracle.
var ErrOracle = errors.New("oracle failure")

// Oracle is a predictive model scoring batches of sequences. Each method
// must return exactly one score per item in the order of the items. A
// call either succeeds completely or returns a non-nil error.
//
// Higher scores indicate more plausible genes or start sites. Only the
// order of scores is significant; they may be of either sign.
type Oracle interface {
	// ScoreGenes scores protein sequences
	// translated from candidate ORFs.
	ScoreGenes(ctx context.Context, proteins [][]byte) ([]float64, error)

	// ScoreTIS scores nucleotide windows around
	// candidate translation initiation sites.
	ScoreTIS(ctx context.Context, windows [][]byte) ([]float64, error)
}

// Func is an Oracle implemented by a pair of functions.
type Func struct {
	Genes func(ctx context.Context, proteins [][]byte) ([]float64, error)
	TIS   func(ctx context.Context, windows [][]byte) ([]float64, error)
}

// ScoreGenes calls f.Genes.
func (f Func) ScoreGenes(ctx context.Context, proteins [][]byte) ([]float64, error) {
	return f.Genes(ctx, proteins)
}

// ScoreTIS calls f.TIS.
func (f Func) ScoreTIS(ctx context.Context, windows [][]byte) ([]float64, error) {
	return f.TIS(ctx, windows)
}

// Scorer scores ORF candidates with an Oracle, submitting items in
// batches of at most GeneBatch and TISBatch items.
type Scorer struct {
	Oracle Oracle
	Table  *codon.Table

	GeneBatch int
	TISBatch  int

	// GeneWeight and TISWeight are the weights of
	// the coding and TIS scores in the combined
	// score.
	GeneWeight float64
	TISWeight  float64
}

// Score returns a copy of cands with the coding, TIS and combined scores
// filled from the oracle. The candidates must have been found in contig.
// If any call to the oracle fails, Score returns an error wrapping ErrOracle
// and no scores.
func (s Scorer) Score(ctx context.Context, contig []byte, cands []orf.Candidate) ([]orf.Candidate, error) {
	if len(cands) == 0 {
		return nil, nil
	}
	contig = orf.Clean(contig)

	proteins := make([][]byte, len(cands))
	windows := make([][]byte, len(cands))
	for i, c := range cands {
		proteins[i] = s.Table.TranslateORF(c.Nucleotides(contig))
		windows[i] = c.TISWindow(contig)
	}

	coding, err := batched(ctx, "gene", s.Oracle.ScoreGenes, proteins, s.GeneBatch)
	if err != nil {
		return nil, err
	}
	tis, err := batched(ctx, "TIS", s.Oracle.ScoreTIS, windows, s.TISBatch)
	if err != nil {
		return nil, err
	}

	scored := make([]orf.Candidate, len(cands))
	for i, c := range cands {
		c.Coding = coding[i]
		c.TIS = tis[i]
		c.Score = s.GeneWeight*c.Coding + s.TISWeight*c.TIS
		scored[i] = c
	}
	return scored, nil
}

// batched calls fn on maximal consecutive batches of items and returns the
// concatenated scores.
func batched(ctx context.Context, kind string, fn func(context.Context, [][]byte) ([]float64, error), items [][]byte, size int) ([]float64, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: invalid %s batch size: %d", ErrOracle, kind, size)
	}
	scores := make([]float64, 0, len(items))
	for len(items) != 0 {
		n := min(size, len(items))
		got, err := fn(ctx, items[:n])
		if err != nil {
			if errors.Is(err, ErrOracle) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s batch: %w", ErrOracle, kind, err)
		}
		if len(got) != n {
			return nil, fmt.Errorf("%w: %s batch returned %d scores for %d items", ErrOracle, kind, len(got), n)
		}
		scores = append(scores, got...)
		items = items[n:]
	}
	return scores, nil
}

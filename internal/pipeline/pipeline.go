// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pipeline provides per-contig gene prediction, from ORF
// enumeration through scoring, path optimization and homology filtering.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/biogo/biogo/seq"
	"github.com/biogo/store/step"
	"golang.org/x/sync/errgroup"

	"github.com/kortschak/balrog/codon"
	"github.com/kortschak/balrog/dag"
	"github.com/kortschak/balrog/homology"
	"github.com/kortschak/balrog/internal/config"
	"github.com/kortschak/balrog/orf"
	"github.com/kortschak/balrog/score"
)

// Contig is an input sequence.
type Contig struct {
	// ID is the sequence identifier up
	// to the first space.
	ID   string
	Desc string
	Seq  []byte
}

// Source provides contigs by index.
type Source interface {
	Len() int
	Contig(i int) (Contig, error)
}

// Contigs is a Source held in memory.
type Contigs []Contig

func (c Contigs) Len() int                     { return len(c) }
func (c Contigs) Contig(i int) (Contig, error) { return c[i], nil }

// Result is the outcome of annotating a contig.
type Result struct {
	Contig string
	Length int

	// Candidates is the number of ORFs
	// found on the contig.
	Candidates int

	// Genes is the predicted gene set in
	// coordinate order.
	Genes []homology.Gene

	// Coverage is the number of predicted genes
	// covering each base of the contig. It is nil
	// for empty contigs.
	Coverage *step.Vector

	// Err is an oracle error recorded for the
	// contig when failures are skipped.
	Err error

	// Done is whether annotation of the
	// contig was completed.
	Done bool
}

// GeneSet returns the gene set of r without homology hits.
func (r Result) GeneSet() []orf.Candidate {
	if len(r.Genes) == 0 {
		return nil
	}
	genes := make([]orf.Candidate, len(r.Genes))
	for i, g := range r.Genes {
		genes[i] = g.Candidate
	}
	return genes
}

// CodingBases returns the number of bases of the contig covered by at least
// atLeast predicted genes.
func (r Result) CodingBases(atLeast int) int {
	if r.Coverage == nil {
		return 0
	}
	var n int
	r.Coverage.Do(func(start, end int, e step.Equaler) {
		if int(e.(depth)) >= atLeast {
			n += end - start
		}
	})
	return n
}

type depth int

func (d depth) Equal(e step.Equaler) bool { return d == e.(depth) }

// Annotator predicts genes on contigs.
type Annotator struct {
	Scorer    score.Scorer
	Table     *codon.Table
	MinLength int
	Params    dag.Params

	// MinScore is the combined score a candidate must
	// exceed to be considered for the gene set. The
	// configuration default of -Inf keeps all candidates.
	MinScore float64

	// StartSelection is config.StartCombined or config.StartTIS.
	StartSelection string

	// OnOracleError is config.OracleAbort or config.OracleSkip.
	OnOracleError string

	// Homology is the homology filter applied to each
	// gene set. If nil, no filtering is done.
	Homology *homology.Filter

	// Threads is the number of contigs
	// annotated concurrently.
	Threads int

	// DOTDir is the directory to write the candidate
	// graph of each contig in DOT format. If empty, no
	// graph is written.
	DOTDir string

	Verbose bool
}

// New returns an Annotator configured from c using the provided oracle.
func New(c config.Config, oracle score.Oracle, filter *homology.Filter) (*Annotator, error) {
	t, err := codon.ForID(c.Table)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	return &Annotator{
		Scorer: score.Scorer{
			Oracle:     oracle,
			Table:      t,
			GeneBatch:  c.GeneBatch,
			TISBatch:   c.TISBatch,
			GeneWeight: c.GeneWeight,
			TISWeight:  c.TISWeight,
		},
		Table:     t,
		MinLength: c.MinLength,
		Params: dag.Params{
			MaxOverlap:     c.MaxOverlap,
			MaxConnections: c.MaxConnections,
		},
		MinScore:       c.MinScore,
		StartSelection: c.StartSelection,
		OnOracleError:  c.OnOracleError,
		Homology:       filter,
		Threads:        c.Threads,
		Verbose:        c.Verbose,
	}, nil
}

// Run annotates all the contigs in src, with up to a.Threads contigs in
// flight. The results are returned in the order of src. If an error
// occurs, the results of contigs that were completed before the failure
// are still returned, marked as done.
//
// Oracle errors are returned unless a.OnOracleError is config.OracleSkip,
// in which case the error is recorded in the contig's result and the
// remaining contigs are annotated.
func (a *Annotator) Run(ctx context.Context, src Source) ([]Result, error) {
	results := make([]Result, src.Len())
	g, ctx := errgroup.WithContext(ctx)
	if a.Threads > 0 {
		g.SetLimit(a.Threads)
	}
	for i := range results {
		g.Go(func() error {
			err := ctx.Err()
			if err != nil {
				return err
			}
			c, err := src.Contig(i)
			if err != nil {
				return err
			}
			results[i], err = a.Annotate(ctx, c)
			if err != nil && a.OnOracleError == config.OracleSkip && errors.Is(err, score.ErrOracle) {
				log.Printf("skipping %s: %v", c.ID, err)
				results[i].Err = err
				results[i].Done = true
				return nil
			}
			return err
		})
	}
	return results, g.Wait()
}

// Annotate predicts the genes of a single contig.
func (a *Annotator) Annotate(ctx context.Context, c Contig) (Result, error) {
	r := Result{Contig: c.ID, Length: len(c.Seq)}
	if len(c.Seq) == 0 {
		log.Printf("%s: empty sequence", c.ID)
		r.Done = true
		return r, nil
	}

	cands := orf.Enumerate(c.Seq, a.Table, a.MinLength)
	r.Candidates = len(cands)
	if a.Verbose {
		log.Printf("%s: found %d candidate genes", c.ID, len(cands))
	}
	if len(cands) == 0 {
		log.Printf("%s: no candidate genes", c.ID)
		return a.finish(r, nil)
	}

	scored, err := a.Scorer.Score(ctx, c.Seq, cands)
	if err != nil {
		return r, fmt.Errorf("%s: %w", c.ID, err)
	}
	if a.StartSelection == config.StartTIS {
		scored = bestTIS(scored)
	}
	scored = aboveScore(scored, a.MinScore)

	g := dag.Build(scored, a.Params)
	genes := g.Optimize()
	err = dag.Audit(genes, a.Params.MaxOverlap)
	if err != nil {
		return r, fmt.Errorf("%s: invalid gene set: %w", c.ID, err)
	}
	if a.Verbose {
		log.Printf("%s: selected %d genes from %d scored candidates, total score %.4g", c.ID, len(genes), len(scored), dag.Total(genes))
	}
	if a.DOTDir != "" {
		err = a.writeDOT(c.ID, g)
		if err != nil {
			return r, err
		}
	}

	var kept []homology.Gene
	if a.Homology != nil {
		kept, err = a.Homology.Apply(ctx, c.ID, c.Seq, a.Table, genes)
		if err != nil {
			return r, fmt.Errorf("%s: %w", c.ID, err)
		}
		if a.Verbose {
			log.Printf("%s: kept %d of %d genes after homology filter", c.ID, len(kept), len(genes))
		}
	} else {
		kept = make([]homology.Gene, len(genes))
		for i, gene := range genes {
			kept[i] = homology.Gene{Candidate: gene}
		}
	}
	return a.finish(r, kept)
}

// finish completes r with the gene set and its coverage.
func (a *Annotator) finish(r Result, genes []homology.Gene) (Result, error) {
	r.Genes = genes
	cov, err := step.New(0, r.Length, depth(0))
	if err != nil {
		return r, fmt.Errorf("%s: %w", r.Contig, err)
	}
	for _, g := range genes {
		err = cov.ApplyRange(g.Left(), g.Right(), func(e step.Equaler) step.Equaler {
			return e.(depth) + 1
		})
		if err != nil {
			return r, fmt.Errorf("%s: %w", r.Contig, err)
		}
	}
	r.Coverage = cov
	r.Done = true
	if a.Verbose {
		log.Printf("%s: %d genes covering %d of %d bases", r.Contig, len(genes), r.CodingBases(1), r.Length)
	}
	return r, nil
}

func (a *Annotator) writeDOT(name string, g *dag.Graph) error {
	b, err := g.DOT(name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(a.DOTDir, name+".dot"), b, 0o644)
}

// bestTIS returns the candidates that have the highest TIS score of all
// the candidates sharing their stop codon. Ties are resolved in favour of
// the longer candidate. The order of cands is retained.
func bestTIS(cands []orf.Candidate) []orf.Candidate {
	type stop struct {
		pos    int
		strand seq.Strand
	}
	best := make(map[stop]int)
	for i, c := range cands {
		k := stop{pos: c.Stop, strand: c.Strand}
		j, ok := best[k]
		if !ok || better(c, cands[j]) {
			best[k] = i
		}
	}
	var kept []orf.Candidate
	for i, c := range cands {
		if best[stop{pos: c.Stop, strand: c.Strand}] == i {
			kept = append(kept, c)
		}
	}
	return kept
}

func better(a, b orf.Candidate) bool {
	if a.TIS != b.TIS {
		return a.TIS > b.TIS
	}
	if a.Length != b.Length {
		return a.Length > b.Length
	}
	return a.Left() < b.Left()
}

// aboveScore returns the candidates scoring more than min.
func aboveScore(cands []orf.Candidate, min float64) []orf.Candidate {
	var kept []orf.Candidate
	for _, c := range cands {
		if c.Score > min {
			kept = append(kept, c)
		}
	}
	return kept
}

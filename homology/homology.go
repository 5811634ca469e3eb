// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package homology provides a precision filter for predicted genes based
// on MMseqs2 searches against a reference protein database.
package homology

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/seq/linear"

	"github.com/kortschak/balrog/codon"
	"github.com/kortschak/balrog/mmseqs"
	"github.com/kortschak/balrog/orf"
)

// ErrTool is wrapped by all errors resulting from a failure to run
// MMseqs2 or to locate its inputs.
var ErrTool = errors.New("external tool failure")

// Gene is a predicted gene with its best reference hit, if any.
type Gene struct {
	orf.Candidate

	// Hit is the best reference match of the
	// gene's protein, nil if there is none.
	Hit *mmseqs.Record
}

// Filter removes predicted genes that have no support from a reference
// protein database and a low model score.
type Filter struct {
	// Cmd is the MMseqs2 executable.
	// If empty, mmseqs is used.
	Cmd string

	// Reference is the path to a FASTA file
	// of reference proteins.
	Reference string

	// Dir is the directory holding the reference
	// database, its index and working files.
	Dir string

	// Sensitivity and EValue are the MMseqs2
	// search parameters.
	Sensitivity float64
	EValue      float64

	// MinBitScore is the lowest bit score
	// considered support for a gene.
	MinBitScore float64

	// DropBelow is the score below which genes
	// without support are removed.
	DropBelow float64

	Threads int

	// Rebuild forces the reference database and
	// index to be remade.
	Rebuild bool

	// Verbose logs each command and, if Logger is
	// not nil, tool output is written to it.
	Verbose bool
	Logger  io.Writer
}

// ReferenceDB returns the path of the MMseqs2 reference database.
func (f *Filter) ReferenceDB() string {
	return filepath.Join(f.Dir, "reference_genes.db")
}

// Prepare makes the reference database and index if they are not already
// present in f.Dir or if f.Rebuild is true.
func (f *Filter) Prepare(ctx context.Context) error {
	db := f.ReferenceDB()
	idx := db + ".idx"
	_, err := os.Stat(idx)
	if err == nil && !f.Rebuild {
		if f.Verbose {
			log.Printf("found MMseqs2 index at %s", idx)
		}
		return nil
	}

	if f.Reference == "" {
		return fmt.Errorf("%w: no reference protein file", ErrTool)
	}
	_, err = os.Stat(f.Reference)
	if err != nil {
		return fmt.Errorf("%w: locating reference proteins: %w", ErrTool, err)
	}
	err = os.MkdirAll(f.Dir, 0o755)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTool, err)
	}

	if f.Verbose {
		log.Printf("building MMseqs2 reference database from %s", f.Reference)
	}
	err = f.run(ctx, mmseqs.CreateDB{Cmd: f.Cmd, In: f.Reference, Out: db, Verbosity: f.verbosity()})
	if err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(f.Dir, "index-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTool, err)
	}
	defer os.RemoveAll(tmp)
	return f.run(ctx, mmseqs.CreateIndex{Cmd: f.Cmd, DB: db, TmpDir: tmp, Threads: f.Threads, Verbosity: f.verbosity()})
}

// Apply searches the proteins of genes found on the named contig against
// the reference database and returns the genes that are supported by a
// reference hit or score at least f.DropBelow. Prepare must have been
// called before Apply.
func (f *Filter) Apply(ctx context.Context, contig string, nucleotides []byte, t *codon.Table, genes []orf.Candidate) ([]Gene, error) {
	if len(genes) == 0 {
		return nil, nil
	}

	work, err := os.MkdirTemp(f.Dir, "search-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTool, err)
	}
	defer os.RemoveAll(work)

	queryFasta := filepath.Join(work, "genes.faa")
	err = writeProteins(queryFasta, contig, nucleotides, t, genes)
	if err != nil {
		return nil, err
	}

	var (
		queryDB = filepath.Join(work, "genes.db")
		result  = filepath.Join(work, "result.db")
		hits    = filepath.Join(work, "hits.m8")
		tmp     = filepath.Join(work, "tmp")
	)
	for _, c := range []builder{
		mmseqs.CreateDB{Cmd: f.Cmd, In: queryFasta, Out: queryDB, Verbosity: f.verbosity()},
		mmseqs.Search{
			Cmd: f.Cmd, Query: queryDB, Target: f.ReferenceDB(), Result: result, TmpDir: tmp,
			Sensitivity: f.Sensitivity, EValue: f.EValue, Threads: f.Threads, Verbosity: f.verbosity(),
		},
		mmseqs.ConvertAlis{Cmd: f.Cmd, Query: queryDB, Target: f.ReferenceDB(), Result: result, Out: hits, Verbosity: f.verbosity()},
	} {
		err = f.run(ctx, c)
		if err != nil {
			return nil, err
		}
	}

	m8, err := os.Open(hits)
	if err != nil {
		return nil, fmt.Errorf("%w: reading search results: %w", ErrTool, err)
	}
	defer m8.Close()
	recs, err := mmseqs.ParseTabular(m8)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing search results: %w", ErrTool, err)
	}
	best := mmseqs.Best(recs)

	var kept []Gene
	for i, c := range genes {
		g := Gene{Candidate: c}
		if r, ok := best[proteinID(contig, i)]; ok && r.BitScore >= f.MinBitScore {
			g.Hit = &r
		}
		if g.Hit == nil && c.Score < f.DropBelow {
			if f.Verbose {
				log.Printf("dropping unsupported gene %s %v", contig, c)
			}
			continue
		}
		kept = append(kept, g)
	}
	return kept, nil
}

type builder interface {
	BuildCommand() (*exec.Cmd, error)
}

// run builds and runs the command described by b, failing with ErrTool.
func (f *Filter) run(ctx context.Context, b builder) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	cmd, err := b.BuildCommand()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTool, err)
	}
	if f.Verbose {
		log.Print(cmd)
	}
	cmd.Stdout = f.Logger
	cmd.Stderr = f.Logger
	err = cmd.Run()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTool, strings.Join(cmd.Args[:2], " "), err)
	}
	return nil
}

func (f *Filter) verbosity() string {
	if f.Verbose {
		return "3"
	}
	return "0"
}

// writeProteins writes the translated proteins of genes to the named
// file in FASTA format.
func writeProteins(path, contig string, nucleotides []byte, t *codon.Table, genes []orf.Candidate) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTool, err)
	}
	nucleotides = orf.Clean(nucleotides)
	for i, c := range genes {
		p := t.TranslateORF(c.Nucleotides(nucleotides))
		s := linear.NewSeq(proteinID(contig, i), alphabet.BytesToLetters(p), alphabet.Protein)
		s.Desc = c.String()
		_, err = fmt.Fprintf(out, "%60a\n", s)
		if err != nil {
			out.Close()
			return fmt.Errorf("%w: %w", ErrTool, err)
		}
	}
	err = out.Close()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTool, err)
	}
	return nil
}

// proteinID returns the FASTA identifier of the ith gene on contig.
func proteinID(contig string, i int) string {
	return fmt.Sprintf("%s_%d", contig, i+1)
}

// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// balrog is a prokaryotic gene finder. It enumerates open reading frames in
// the contigs of a genome assembly, scores them with an external predictive
// model, selects a coherent gene set by finding the maximum scoring path
// through a graph of compatible candidates and optionally removes genes
// that are unsupported by homology to a reference protein set. Predicted
// genes are written to standard output in GFF3.
//
// The model server is an executable that reads JSON requests, one per line,
// on its standard input and writes one JSON response per request to its
// standard output. Requests are
//  {"model":"gene","seqs":["MKV...",...]}
//  {"model":"tis","seqs":["ACGT...",...]}
// for translated candidate proteins and nucleotide windows around candidate
// start codons. Responses hold one score per sequence, or an error.
//  {"scores":[0.91,...]}
//  {"error":"message"}
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/kortschak/balrog/gff3"
	"github.com/kortschak/balrog/homology"
	"github.com/kortschak/balrog/internal/config"
	"github.com/kortschak/balrog/internal/pipeline"
	"github.com/kortschak/balrog/score"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	in := fs.String("in", "", "specify input FASTA file, gzipped or plain, or - for stdin (required)")
	out := fs.String("out", "", "specify output GFF3 file (default stdout)")
	dotDir := fs.String("dot", "", "specify a directory to write candidate graphs in DOT format")
	cfg, err := config.Parse(fs, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if *in == "" {
		fs.Usage()
		os.Exit(2)
	}
	err = cfg.Validate()
	if err != nil {
		log.Fatal(err)
	}

	log.Println(os.Args)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err = run(ctx, cfg, *in, *out, *dotDir)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
}

// run annotates the contigs in the FASTA file at in and writes the genes
// to out, or to standard output if out is empty. Results for contigs
// completed before a failure are written before the failure is returned.
func run(ctx context.Context, cfg config.Config, in, out, dotDir string) error {
	var logger io.WriteCloser
	if cfg.Verbose {
		logger = logCapture()
		defer logger.Close()
	}

	workDir := filepath.Join(cfg.TempDir, "balrog")
	if cfg.ClearCache {
		log.Printf("clearing cached files in %s", workDir)
		err := os.RemoveAll(workDir)
		if err != nil {
			return err
		}
	}
	err := os.MkdirAll(workDir, 0o755)
	if err != nil {
		return err
	}
	log.Printf("working in %s", workDir)

	src, closer, err := openInput(in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	defer closer.Close()
	log.Printf("read %d contigs", src.Len())

	model, err := score.Server{
		Cmd:        cfg.Model.Command,
		GeneModel:  cfg.Model.GeneModel,
		TISModel:   cfg.Model.TISModel,
		Device:     cfg.Model.Device,
		Threads:    cfg.Model.Threads,
		ExtraFlags: cfg.Model.ExtraFlags,
	}.BuildCommand()
	if err != nil {
		return err
	}
	if cfg.Verbose {
		log.Print(model)
	}
	proc, err := score.NewProcess(model, logger)
	if err != nil {
		return fmt.Errorf("failed to start model server: %w", err)
	}
	defer proc.Close()

	var oracle score.Oracle = proc
	if cfg.ScoreCache != "" {
		path := cfg.ScoreCache
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		if cfg.ClearCache {
			err = os.Remove(path)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
		db, err := score.OpenCacheDB(path)
		if err != nil {
			return fmt.Errorf("failed to open score cache: %w", err)
		}
		defer db.Close()
		cache := score.NewCache(proc, db)
		defer func() {
			hits, misses := cache.Stats()
			log.Printf("score cache %s: %d hits %d misses", path, hits, misses)
		}()
		oracle = cache
	}

	var filter *homology.Filter
	if cfg.Homology.Enabled {
		filter = &homology.Filter{
			Cmd:         cfg.Homology.Command,
			Reference:   cfg.Homology.Reference,
			Dir:         filepath.Join(workDir, "mmseqs"),
			Sensitivity: cfg.Homology.Sensitivity,
			EValue:      cfg.Homology.EValue,
			MinBitScore: cfg.Homology.MinBitScore,
			DropBelow:   cfg.Homology.DropBelow,
			Threads:     cfg.Threads,
			Rebuild:     cfg.ClearCache,
			Verbose:     cfg.Verbose,
			Logger:      logger,
		}
		err = filter.Prepare(ctx)
		if err != nil {
			return fmt.Errorf("failed to prepare reference database: %w", err)
		}
	}

	a, err := pipeline.New(cfg, oracle, filter)
	if err != nil {
		return err
	}
	if dotDir != "" {
		err = os.MkdirAll(dotDir, 0o755)
		if err != nil {
			return err
		}
		a.DOTDir = dotDir
	}

	results, runErr := a.Run(ctx, src)

	dst := os.Stdout
	if out != "" {
		dst, err = os.Create(out)
		if err != nil {
			return err
		}
	}
	err = write(dst, results)
	if err != nil {
		if dst != os.Stdout {
			dst.Close()
		}
		return fmt.Errorf("failed to write genes: %w", err)
	}
	if dst != os.Stdout {
		err = dst.Close()
		if err != nil {
			return err
		}
	}
	return runErr
}

// write writes the results of completed contigs to dst in GFF3.
func write(dst io.Writer, results []pipeline.Result) error {
	var (
		annots  []gff3.Annotation
		genes   int
		skipped int
	)
	for _, r := range results {
		if !r.Done {
			continue
		}
		if r.Err != nil {
			skipped++
		}
		genes += len(r.Genes)
		annots = append(annots, gff3.Annotation{
			Region: gff3.Region{Name: r.Contig, Length: r.Length},
			Genes:  r.GeneSet(),
		})
	}
	log.Printf("writing %d genes on %d of %d contigs (%d failed scoring)", genes, len(annots), len(results), skipped)
	err := gff3.Write(dst, annots)
	if err != nil {
		return fmt.Errorf("gff3: %w", err)
	}
	return nil
}

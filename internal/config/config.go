// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config provides the gene finder configuration, read from an
// optional YAML file and overridden by command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/kortschak/balrog/codon"
)

// ErrInvalid is wrapped by all configuration errors.
var ErrInvalid = errors.New("invalid configuration")

// Start selection modes.
const (
	// StartCombined resolves alternative starts for a stop
	// by combined score during path optimization.
	StartCombined = "combined"

	// StartTIS keeps only the highest TIS scoring start
	// for each stop before path optimization.
	StartTIS = "tis"
)

// Oracle failure policies.
const (
	OracleAbort = "abort"
	OracleSkip  = "skip"
)

// Config is the gene finder configuration.
type Config struct {
	Table          int `yaml:"table"`
	MinLength      int `yaml:"min_length"`
	MaxOverlap     int `yaml:"max_overlap"`
	MaxConnections int `yaml:"max_connections"`

	GeneBatch  int     `yaml:"gene_batch_size"`
	TISBatch   int     `yaml:"tis_batch_size"`
	GeneWeight float64 `yaml:"gene_weight"`
	TISWeight  float64 `yaml:"tis_weight"`
	MinScore   float64 `yaml:"min_score"`

	StartSelection string `yaml:"start_selection"`
	OnOracleError  string `yaml:"on_oracle_error"`

	Model    Model    `yaml:"model"`
	Homology Homology `yaml:"homology"`

	TempDir    string `yaml:"temp_dir"`
	ScoreCache string `yaml:"score_cache"`
	ClearCache bool   `yaml:"clear_cache"`
	Threads    int    `yaml:"threads"`
	Verbose    bool   `yaml:"verbose"`
}

// Model is the model server configuration.
type Model struct {
	Command   string `yaml:"command"`
	GeneModel string `yaml:"gene_model"`
	TISModel  string `yaml:"tis_model"`
	Device    string `yaml:"device"`
	Threads   int    `yaml:"threads"`

	// ExtraFlags is passed to the model
	// server after the flags above.
	ExtraFlags string `yaml:"extra_flags"`
}

// Homology is the homology filter configuration.
type Homology struct {
	Enabled     bool    `yaml:"enabled"`
	Command     string  `yaml:"command"`
	Reference   string  `yaml:"reference"`
	Sensitivity float64 `yaml:"sensitivity"`
	EValue      float64 `yaml:"evalue"`
	MinBitScore float64 `yaml:"min_bit_score"`
	DropBelow   float64 `yaml:"drop_below"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Table:          11,
		MinLength:      90,
		MaxOverlap:     60,
		MaxConnections: 50,
		GeneBatch:      128,
		TISBatch:       1024,
		GeneWeight:     1,
		TISWeight:      1,
		MinScore:       math.Inf(-1),
		StartSelection: StartCombined,
		OnOracleError:  OracleAbort,
		Homology: Homology{
			Enabled:     true,
			Sensitivity: 7,
			EValue:      1e-3,
			MinBitScore: 30,
			DropBelow:   0.5,
		},
		TempDir: os.TempDir(),
		Threads: runtime.NumCPU(),
		Verbose: true,
	}
}

// Load reads YAML configuration from path into c. Fields not present in
// the file are left unaltered.
func Load(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	err = yaml.Unmarshal(b, c)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	return nil
}

// Flags registers flags on fs that set the fields of c. The returned string
// pointer holds the path of a YAML configuration file.
func Flags(fs *flag.FlagSet, c *Config) *string {
	path := fs.String("config", "", "specify a YAML configuration file (flags take precedence)")
	fs.IntVar(&c.Table, "table", c.Table, "specify the translation table: 11 for most bacteria/archaea, 4 for Mycoplasma/Spiroplasma")
	fs.IntVar(&c.MinLength, "min-length", c.MinLength, "specify the minimum allowable gene length in nucleotides")
	fs.IntVar(&c.MaxOverlap, "max-overlap", c.MaxOverlap, "specify the maximum allowable overlap between genes in nucleotides")
	fs.IntVar(&c.MaxConnections, "max-connections", c.MaxConnections, "specify the maximum number of forward connections of each gene in the gene graph")
	fs.IntVar(&c.GeneBatch, "gene-batch-size", c.GeneBatch, "specify the batch size for gene scoring")
	fs.IntVar(&c.TISBatch, "TIS-batch-size", c.TISBatch, "specify the batch size for TIS scoring")
	fs.Float64Var(&c.MinScore, "min-score", c.MinScore, "specify the combined score a candidate must exceed to be considered")
	fs.StringVar(&c.StartSelection, "start", c.StartSelection, "specify start resolution mode (combined or tis)")
	fs.StringVar(&c.OnOracleError, "on-oracle-error", c.OnOracleError, "specify behaviour when scoring fails (abort or skip)")
	fs.StringVar(&c.Model.Command, "model", c.Model.Command, "specify the model server executable (required)")
	fs.StringVar(&c.Model.GeneModel, "gene-model", c.Model.GeneModel, "specify the gene model path passed to the model server")
	fs.StringVar(&c.Model.TISModel, "tis-model", c.Model.TISModel, "specify the TIS model path passed to the model server")
	fs.StringVar(&c.Model.ExtraFlags, "model-flags", c.Model.ExtraFlags, "specify additional space separated flags passed to the model server")
	fs.BoolVar(&c.Homology.Enabled, "mmseqs", c.Homology.Enabled, "specify to use MMseqs2 to reduce the false positive rate")
	fs.StringVar(&c.Homology.Command, "mmseqs-cmd", c.Homology.Command, "specify the MMseqs2 executable")
	fs.StringVar(&c.Homology.Reference, "reference", c.Homology.Reference, "specify the reference protein FASTA for MMseqs2 (required with -mmseqs)")
	fs.StringVar(&c.TempDir, "temp", c.TempDir, "specify the directory to store temporary and cached files")
	fs.StringVar(&c.ScoreCache, "cache", c.ScoreCache, "specify a score cache database")
	fs.BoolVar(&c.ClearCache, "clear-cache", c.ClearCache, "specify to delete cached scores and remake the MMseqs2 index")
	fs.IntVar(&c.Threads, "threads", c.Threads, "specify the number of contigs processed in parallel")
	fs.BoolVar(&c.Verbose, "verbose", c.Verbose, "specify verbose logging")
	return path
}

// Parse parses args into a configuration. Values from a file given with
// the -config flag are applied first and explicitly set flags override
// them.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	c := Default()
	path := Flags(fs, &c)
	err := fs.Parse(args)
	if err != nil {
		return c, err
	}
	if *path == "" {
		return c, nil
	}

	set := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = f.Value.String()
	})
	err = Load(*path, &c)
	if err != nil {
		return c, err
	}
	for name, val := range set {
		err = fs.Set(name, val)
		if err != nil {
			return c, err
		}
	}
	return c, nil
}

// Validate returns an error wrapping ErrInvalid if c cannot be used.
func (c Config) Validate() error {
	_, err := codon.ForID(c.Table)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch {
	case c.MinLength < 6:
		return fmt.Errorf("%w: min length must be at least 6: %d", ErrInvalid, c.MinLength)
	case c.MaxOverlap < 0:
		return fmt.Errorf("%w: negative max overlap: %d", ErrInvalid, c.MaxOverlap)
	case c.MaxConnections < 1:
		return fmt.Errorf("%w: max connections must be positive: %d", ErrInvalid, c.MaxConnections)
	case c.GeneBatch < 1 || c.TISBatch < 1:
		return fmt.Errorf("%w: batch sizes must be positive: gene=%d TIS=%d", ErrInvalid, c.GeneBatch, c.TISBatch)
	case c.Threads < 1:
		return fmt.Errorf("%w: threads must be positive: %d", ErrInvalid, c.Threads)
	}
	switch c.StartSelection {
	case StartCombined, StartTIS:
	default:
		return fmt.Errorf("%w: unknown start selection mode: %q", ErrInvalid, c.StartSelection)
	}
	switch c.OnOracleError {
	case OracleAbort, OracleSkip:
	default:
		return fmt.Errorf("%w: unknown oracle failure policy: %q", ErrInvalid, c.OnOracleError)
	}
	if c.Model.Command == "" {
		return fmt.Errorf("%w: no model server specified", ErrInvalid)
	}
	if c.Homology.Enabled && c.Homology.Reference == "" {
		return fmt.Errorf("%w: no reference proteins specified for MMseqs2", ErrInvalid)
	}
	return nil
}

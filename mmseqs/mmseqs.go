// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmseqs provides types and functions for invoking MMseqs2
// and interpreting the returned results.
package mmseqs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/biogo/external"
)

type CreateDB struct {
	// Usage: mmseqs createdb <i:fastaFile> <o:sequenceDB>
	//
	// For details relating to options and parameters, see the MMseqs2 user guide.
	//
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}mmseqs{{end}}{{split}}createdb"` // mmseqs createdb

	In  string `buildarg:"{{.}}"` // <i:fastaFile>
	Out string `buildarg:"{{.}}"` // <o:sequenceDB>

	DBType    int    `buildarg:"{{if .}}--dbtype{{split}}{{.}}{{end}}"` // --dbtype <n>
	Verbosity string `buildarg:"{{with .}}-v{{split}}{{.}}{{end}}"`     // -v <s>

	// ExtraFlags will be passed through to mmseqs as flags.
	ExtraFlags string
}

func (c CreateDB) BuildCommand() (*exec.Cmd, error) {
	if c.In == "" {
		return nil, errors.New("mmseqs createdb: missing input filename")
	}
	if c.Out == "" {
		return nil, errors.New("mmseqs createdb: missing out filename")
	}
	return build(c, c.ExtraFlags)
}

type CreateIndex struct {
	// Usage: mmseqs createindex <i:sequenceDB> <tmpDir>
	//
	// For details relating to options and parameters, see the MMseqs2 user guide.
	//
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}mmseqs{{end}}{{split}}createindex"` // mmseqs createindex

	DB     string `buildarg:"{{.}}"` // <i:sequenceDB>
	TmpDir string `buildarg:"{{.}}"` // <tmpDir>

	Threads   int    `buildarg:"{{if .}}--threads{{split}}{{.}}{{end}}"` // --threads <n>
	Verbosity string `buildarg:"{{with .}}-v{{split}}{{.}}{{end}}"`      // -v <s>

	// ExtraFlags will be passed through to mmseqs as flags.
	ExtraFlags string
}

func (c CreateIndex) BuildCommand() (*exec.Cmd, error) {
	if c.DB == "" {
		return nil, errors.New("mmseqs createindex: missing database")
	}
	if c.TmpDir == "" {
		return nil, errors.New("mmseqs createindex: missing tmp directory")
	}
	return build(c, c.ExtraFlags)
}

type Search struct {
	// Usage: mmseqs search <i:queryDB> <i:targetDB> <o:alignmentDB> <tmpDir>
	//
	// For details relating to options and parameters, see the MMseqs2 user guide.
	//
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}mmseqs{{end}}{{split}}search"` // mmseqs search

	Query  string `buildarg:"{{.}}"` // <i:queryDB>
	Target string `buildarg:"{{.}}"` // <i:targetDB>
	Result string `buildarg:"{{.}}"` // <o:alignmentDB>
	TmpDir string `buildarg:"{{.}}"` // <tmpDir>

	// Parameter:
	Sensitivity float64 `buildarg:"{{if .}}-s{{split}}{{.}}{{end}}"`                  // -s <f.>
	EValue      float64 `buildarg:"{{if .}}-e{{split}}{{.}}{{end}}"`                  // -e <f.>
	MinSeqID    float64 `buildarg:"{{if .}}--min-seq-id{{split}}{{.}}{{end}}"`        // --min-seq-id <f.>
	Coverage    float64 `buildarg:"{{if .}}-c{{split}}{{.}}{{end}}"`                  // -c <f.>
	MaxSeqs     int     `buildarg:"{{if .}}--max-seqs{{split}}{{.}}{{end}}"`          // --max-seqs <n>
	Translation int     `buildarg:"{{if .}}--translation-table{{split}}{{.}}{{end}}"` // --translation-table <n>

	// Performance:
	Threads   int    `buildarg:"{{if .}}--threads{{split}}{{.}}{{end}}"` // --threads <n>
	Verbosity string `buildarg:"{{with .}}-v{{split}}{{.}}{{end}}"`      // -v <s>

	// ExtraFlags will be passed through to mmseqs as flags.
	ExtraFlags string
}

func (s Search) BuildCommand() (*exec.Cmd, error) {
	if s.Query == "" || s.Target == "" || s.Result == "" || s.TmpDir == "" {
		return nil, errors.New("mmseqs search: missing database or tmp directory")
	}
	return build(s, s.ExtraFlags)
}

type ConvertAlis struct {
	// Usage: mmseqs convertalis <i:queryDb> <i:targetDb> <i:alignmentDB> <o:alignmentFile>
	//
	// For details relating to options and parameters, see the MMseqs2 user guide.
	//
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}mmseqs{{end}}{{split}}convertalis"` // mmseqs convertalis

	Query  string `buildarg:"{{.}}"` // <i:queryDb>
	Target string `buildarg:"{{.}}"` // <i:targetDb>
	Result string `buildarg:"{{.}}"` // <i:alignmentDB>
	Out    string `buildarg:"{{.}}"` // <o:alignmentFile>

	Verbosity string `buildarg:"{{with .}}-v{{split}}{{.}}{{end}}"` // -v <s>

	// ExtraFlags will be passed through to mmseqs as flags.
	ExtraFlags string
}

func (c ConvertAlis) BuildCommand() (*exec.Cmd, error) {
	if c.Query == "" || c.Target == "" || c.Result == "" || c.Out == "" {
		return nil, errors.New("mmseqs convertalis: missing database or out filename")
	}
	return build(c, c.ExtraFlags)
}

func build(v external.CommandBuilder, extraFlags string) (*exec.Cmd, error) {
	cl, err := external.Build(v)
	if err != nil {
		return nil, err
	}
	var extra []string
	if extraFlags != "" {
		extra = strings.Split(extraFlags, " ")
	}
	return exec.Command(cl[0], append(cl[1:], extra...)...), nil
}

// Record is an alignment in BLAST tabular (m8) format.
type Record struct {
	Query           string
	Target          string
	Identity        float64
	AlignmentLength int
	Mismatches      int
	GapOpens        int
	QueryStart      int
	QueryEnd        int
	TargetStart     int
	TargetEnd       int
	EValue          float64
	BitScore        float64
}

// ParseTabular parses the default convertalis output format.
func ParseTabular(r io.Reader) ([]Record, error) {
	// column indices for default convertalis output.
	const (
		Query = iota
		Target
		Identity
		AlignmentLength
		Mismatches
		GapOpens
		QueryStart
		QueryEnd
		TargetStart
		TargetEnd
		EValue
		BitScore
		numFields
	)

	var recs []Record
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 || bytes.HasPrefix(line, []byte("#")) {
			continue
		}
		f := bytes.Split(line, []byte("\t"))
		if len(f) != numFields {
			return recs, fmt.Errorf("unexpected number of fields: %q", f)
		}

		r := Record{
			Query:  string(bytes.TrimSpace(f[Query])),
			Target: string(bytes.TrimSpace(f[Target])),
		}
		var err error
		r.Identity, err = parseFloat(f[Identity])
		if err != nil {
			return recs, fmt.Errorf("error in line: %s: %w", line, err)
		}
		r.AlignmentLength, err = parseInt(f[AlignmentLength])
		if err != nil {
			return recs, fmt.Errorf("error in line: %s: %w", line, err)
		}
		r.Mismatches, err = parseInt(f[Mismatches])
		if err != nil {
			return recs, fmt.Errorf("error in line: %s: %w", line, err)
		}
		r.GapOpens, err = parseInt(f[GapOpens])
		if err != nil {
			return recs, fmt.Errorf("error in line: %s: %w", line, err)
		}
		r.QueryStart, err = parseInt(f[QueryStart])
		if err != nil {
			return recs, fmt.Errorf("error in line: %s: %w", line, err)
		}
		r.QueryStart-- // Use zero-based indexing internally.
		r.QueryEnd, err = parseInt(f[QueryEnd])
		if err != nil {
			return recs, fmt.Errorf("error in line: %s: %w", line, err)
		}
		r.TargetStart, err = parseInt(f[TargetStart])
		if err != nil {
			return recs, fmt.Errorf("error in line: %s: %w", line, err)
		}
		r.TargetStart-- // Use zero-based indexing internally.
		r.TargetEnd, err = parseInt(f[TargetEnd])
		if err != nil {
			return recs, fmt.Errorf("error in line: %s: %w", line, err)
		}
		r.EValue, err = parseFloat(f[EValue])
		if err != nil {
			return recs, fmt.Errorf("error in line: %s: %w", line, err)
		}
		r.BitScore, err = parseFloat(f[BitScore])
		if err != nil {
			return recs, fmt.Errorf("error in line: %s: %w", line, err)
		}
		recs = append(recs, r)
	}
	err := sc.Err()
	return recs, err
}

// Numeric fields are trimmed since flanking whitespace
// is not consistently absent.
func parseInt(b []byte) (int, error) {
	return strconv.Atoi(string(bytes.TrimSpace(b)))
}

func parseFloat(b []byte) (float64, error) {
	return strconv.ParseFloat(string(bytes.TrimSpace(b)), 64)
}

// Best returns the highest scoring record for each query.
func Best(recs []Record) map[string]Record {
	best := make(map[string]Record)
	for _, r := range recs {
		b, ok := best[r.Query]
		if !ok || r.BitScore > b.BitScore || (r.BitScore == b.BitScore && r.EValue < b.EValue) {
			best[r.Query] = r
		}
	}
	return best
}

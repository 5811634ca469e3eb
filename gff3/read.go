// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gff3

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/biogo/biogo/seq"

	"github.com/kortschak/balrog/orf"
)

// Feature is a CDS feature read from a GFF3 document.
type Feature struct {
	SeqID string
	Gene  orf.Candidate
}

// ReadCDS returns the CDS features in the GFF3 document read from r.
// Other feature types, comments and directives are ignored. Scores
// are not retained.
func ReadCDS(r io.Reader) ([]Feature, error) {
	var feats []Feature
	sc := bufio.NewScanner(r)
	var line int
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "##FASTA" {
			break
		}
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 9 {
			return nil, fmt.Errorf("gff3: line %d: expected 9 fields, got %d", line, len(fields))
		}
		if fields[2] != "CDS" {
			continue
		}
		start, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("gff3: line %d: invalid start: %w", line, err)
		}
		end, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("gff3: line %d: invalid end: %w", line, err)
		}
		if start < 1 || end-start+1 < 6 {
			return nil, fmt.Errorf("gff3: line %d: invalid feature extent: %d-%d", line, start, end)
		}
		left, right := start-1, end
		var c orf.Candidate
		switch fields[6] {
		case "+":
			c = orf.Candidate{Start: left, Stop: right - 3, Strand: seq.Plus}
		case "-":
			c = orf.Candidate{Start: right - 3, Stop: left, Strand: seq.Minus}
		default:
			return nil, fmt.Errorf("gff3: line %d: invalid CDS strand: %q", line, fields[6])
		}
		c.Length = right - left
		feats = append(feats, Feature{SeqID: fields[0], Gene: c})
	}
	err := sc.Err()
	if err != nil {
		return nil, fmt.Errorf("gff3: %w", err)
	}
	return feats, nil
}

// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codon provides the genetic codes used to find and translate
// prokaryotic open reading frames.
package codon

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned for translation tables that are not
// implemented.
var ErrUnsupported = errors.New("unsupported translation table")

// Table is a genetic code. A Table is immutable and safe for
// concurrent use.
type Table struct {
	id     int
	aa     [64]byte
	starts [64]bool
}

// The standard genetic code, indexed by codon with T=0, C=1, A=2, G=3
// and the first base most significant.
const standard = "" +
	"FFLLSSSSYY**CC*W" + // T..
	"LLLLPPPPHHQQRRRR" + // C..
	"IIIMTTTTNNKKSSRR" + // A..
	"VVVVAAAADDEEGGGG" //   G..

var tables = map[int]*Table{
	11: newTable(11, nil),
	4:  newTable(4, map[string]byte{"TGA": 'W'}),
}

func newTable(id int, diff map[string]byte) *Table {
	t := Table{id: id}
	copy(t.aa[:], standard)
	for c, aa := range diff {
		i, ok := index([]byte(c))
		if !ok {
			panic("codon: invalid codon in table definition: " + c)
		}
		t.aa[i] = aa
	}
	for _, c := range []string{"ATG", "GTG", "TTG"} {
		i, _ := index([]byte(c))
		t.starts[i] = true
	}
	return &t
}

// ForID returns the genetic code for the given NCBI translation table
// number. Only tables 11 and 4 are available.
func ForID(id int) (*Table, error) {
	t, ok := tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d (only tables 11 and 4 are implemented)", ErrUnsupported, id)
	}
	return t, nil
}

// ID returns the NCBI translation table number of t.
func (t *Table) ID() int { return t.id }

// IsStart returns whether the first three bases of b are a start codon.
func (t *Table) IsStart(b []byte) bool {
	i, ok := index(b)
	return ok && t.starts[i]
}

// IsStop returns whether the first three bases of b are a stop codon.
func (t *Table) IsStop(b []byte) bool {
	i, ok := index(b)
	return ok && t.aa[i] == '*'
}

// Translate returns the amino acid encoded by the first three bases of b.
// Codons containing ambiguous bases translate to 'X'.
func (t *Table) Translate(b []byte) byte {
	i, ok := index(b)
	if !ok {
		return 'X'
	}
	return t.aa[i]
}

// TranslateORF returns the protein encoded by orf, which must begin with a
// start codon. Translation stops before the first stop codon. The initiating
// codon is translated as methionine regardless of its sequence.
func (t *Table) TranslateORF(orf []byte) []byte {
	p := make([]byte, 0, len(orf)/3)
	for i := 0; i+3 <= len(orf); i += 3 {
		aa := t.Translate(orf[i : i+3])
		if aa == '*' {
			break
		}
		if i == 0 {
			aa = 'M'
		}
		p = append(p, aa)
	}
	return p
}

// index returns the table index of the first codon in b.
func index(b []byte) (int, bool) {
	if len(b) < 3 {
		return 0, false
	}
	var i int
	for _, c := range b[:3] {
		var v int
		switch c {
		case 'T', 't', 'U', 'u':
			v = 0
		case 'C', 'c':
			v = 1
		case 'A', 'a':
			v = 2
		case 'G', 'g':
			v = 3
		default:
			return 0, false
		}
		i = i<<2 | v
	}
	return i, true
}

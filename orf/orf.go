// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package orf provides six-frame open reading frame enumeration and the
// candidate gene type used throughout gene finding.
package orf

import (
	"bytes"
	"fmt"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/seq"
	"github.com/biogo/biogo/seq/linear"
)

// TISFlank is the number of bases either side of the first base of a
// start codon included in a translation initiation site window.
const TISFlank = 16

// Candidate is a candidate gene. All coordinates are zero-based and
// relative to the forward strand of the contig. Start is the leftmost base
// of the start codon and Stop is the leftmost base of the stop codon, so
// Start < Stop for genes on the plus strand and Stop < Start for genes on
// the minus strand.
type Candidate struct {
	Start  int
	Stop   int
	Strand seq.Strand

	// Frame is the reading frame of the candidate
	// on its own strand, in [0, 3).
	Frame int

	// Length is the number of bases from the
	// start codon to the stop codon inclusive.
	Length int

	// Coding, TIS and Score are the coding score,
	// the translation initiation site score and
	// the combined score.
	Coding float64
	TIS    float64
	Score  float64
}

// Left returns the leftmost base of the candidate on the forward strand.
func (c Candidate) Left() int {
	if c.Strand == seq.Minus {
		return c.Stop
	}
	return c.Start
}

// Right returns the position one past the rightmost base of the candidate
// on the forward strand.
func (c Candidate) Right() int {
	if c.Strand == seq.Minus {
		return c.Start + 3
	}
	return c.Stop + 3
}

// Overlap returns the number of bases shared by c and o. It is negative
// when the candidates are separated by a gap.
func (c Candidate) Overlap(o Candidate) int {
	return min(c.Right(), o.Right()) - max(c.Left(), o.Left())
}

// SameStop returns whether c and o end at the same stop codon.
func (c Candidate) SameStop(o Candidate) bool {
	return c.Strand == o.Strand && c.Stop == o.Stop
}

// Nucleotides returns the bases of c read in the direction of
// translation, from the start codon through the stop codon.
func (c Candidate) Nucleotides(contig []byte) []byte {
	b := append([]byte(nil), contig[c.Left():c.Right()]...)
	if c.Strand == seq.Minus {
		b = RevComp(b)
	}
	return b
}

// TISWindow returns the bases around the start codon of c read in the
// direction of translation. The window holds TISFlank bases upstream of the
// start codon followed by TISFlank bases beginning with the start codon.
// Positions beyond the ends of contig are filled with 'N'.
func (c Candidate) TISWindow(contig []byte) []byte {
	left := c.Start - TISFlank
	if c.Strand == seq.Minus {
		left = c.Start + 3 - TISFlank
	}
	w := bytes.Repeat([]byte{'N'}, 2*TISFlank)
	for i := range w {
		p := left + i
		if p < 0 || p >= len(contig) {
			continue
		}
		w[i] = contig[p]
	}
	if c.Strand == seq.Minus {
		w = RevComp(w)
	}
	return w
}

func (c Candidate) String() string {
	return fmt.Sprintf("[%d,%d)%s frame=%d score=%.4g", c.Left(), c.Right(), strandSymbol(c.Strand), c.Frame, c.Score)
}

func strandSymbol(s seq.Strand) string {
	switch s {
	case seq.Plus:
		return "+"
	case seq.Minus:
		return "-"
	default:
		return "."
	}
}

// Clean returns an upper-case copy of b with every base other than
// A, C, G and T replaced by N.
func Clean(b []byte) []byte {
	c := make([]byte, len(b))
	for i, v := range b {
		switch v {
		case 'A', 'C', 'G', 'T':
			c[i] = v
		case 'a', 'c', 'g', 't':
			c[i] = v - 'a' + 'A'
		default:
			c[i] = 'N'
		}
	}
	return c
}

// RevComp returns the reverse complement of b in place.
func RevComp(b []byte) []byte {
	s := linear.NewSeq("", alphabet.BytesToLetters(b), alphabet.DNAredundant)
	s.RevComp()
	return alphabet.LettersToBytes(s.Seq)
}

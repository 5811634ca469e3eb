// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package orf

import (
	"github.com/biogo/biogo/seq"

	"github.com/kortschak/balrog/codon"
)

// Scanner enumerates the open reading frames of a sequence in all six
// frames. Candidates are produced lazily; forward frames are scanned before
// reverse frames and within a frame candidates are ordered by stop codon,
// longest first.
type Scanner struct {
	table *codon.Table
	min   int

	// strands holds the forward sequence and its
	// reverse complement.
	strands [2][]byte
	strand  int
	frame   int
	pos     int

	starts  []int
	pending []Candidate
	cand    Candidate
}

// NewScanner returns a Scanner reading ORFs of at least minLength bases
// from contig using the genetic code t. The contig is not retained.
func NewScanner(contig []byte, t *codon.Table, minLength int) *Scanner {
	fwd := Clean(contig)
	rev := RevComp(append([]byte(nil), fwd...))
	return &Scanner{
		table:   t,
		min:     minLength,
		strands: [2][]byte{fwd, rev},
	}
}

// Next advances the Scanner to the next candidate, which will then be
// available through the Candidate method. It returns false when there are
// no more candidates.
func (sc *Scanner) Next() bool {
	for {
		if len(sc.pending) != 0 {
			sc.cand = sc.pending[0]
			sc.pending = sc.pending[1:]
			return true
		}
		if sc.strand >= len(sc.strands) {
			return false
		}

		s := sc.strands[sc.strand]
		if sc.pos+3 > len(s) {
			sc.starts = sc.starts[:0]
			sc.frame++
			if sc.frame == 3 {
				sc.frame = 0
				sc.strand++
			}
			sc.pos = sc.frame
			continue
		}

		codon := s[sc.pos : sc.pos+3]
		switch {
		case sc.table.IsStart(codon):
			sc.starts = append(sc.starts, sc.pos)
		case sc.table.IsStop(codon):
			for _, start := range sc.starts {
				if sc.pos+3-start < sc.min {
					// Later starts are shorter.
					break
				}
				sc.pending = append(sc.pending, sc.candidate(start, sc.pos))
			}
			sc.starts = sc.starts[:0]
		}
		sc.pos += 3
	}
}

// candidate returns the Candidate for the start and stop positions on the
// current strand.
func (sc *Scanner) candidate(start, stop int) Candidate {
	c := Candidate{
		Frame:  sc.frame,
		Length: stop + 3 - start,
	}
	if sc.strand == 0 {
		c.Start = start
		c.Stop = stop
		c.Strand = seq.Plus
		return c
	}
	n := len(sc.strands[1])
	c.Start = n - start - 3
	c.Stop = n - stop - 3
	c.Strand = seq.Minus
	return c
}

// Candidate returns the most recent candidate found by a call to Next.
func (sc *Scanner) Candidate() Candidate {
	return sc.cand
}

// Enumerate returns all the ORFs in contig that are at least minLength
// bases long under the genetic code t.
func Enumerate(contig []byte, t *codon.Table, minLength int) []Candidate {
	var cands []Candidate
	sc := NewScanner(contig, t, minLength)
	for sc.Next() {
		cands = append(cands, sc.Candidate())
	}
	return cands
}

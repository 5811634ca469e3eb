// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

import (
	"fmt"

	"github.com/biogo/store/interval"

	"github.com/kortschak/balrog/orf"
)

// Optimize returns the maximum scoring path through the graph as a gene
// set in coordinate order. The score of a path is the sum of the scores of
// its candidates. Among equally scoring alternatives, paths ending at, or
// passing through, longer candidates are preferred, and then those with the
// earlier start.
func (g *Graph) Optimize() []orf.Candidate {
	n := len(g.nodes)
	if n == 0 {
		return nil
	}

	best := make([]float64, n)
	pred := make([]int, n)
	for i, c := range g.nodes {
		best[i] = c.Score
		pred[i] = -1
	}
	for i := range g.nodes {
		// best[i] is final here since all
		// predecessors of i precede it.
		for _, j := range g.succ[i] {
			s := best[i] + g.nodes[j].Score
			switch {
			case s > best[j]:
			case s == best[j] && pred[j] >= 0 && g.prefer(i, pred[j]):
			default:
				continue
			}
			best[j] = s
			pred[j] = i
		}
	}

	end := 0
	for i := 1; i < n; i++ {
		if best[i] > best[end] || (best[i] == best[end] && g.prefer(i, end)) {
			end = i
		}
	}

	var path []orf.Candidate
	for i := end; i >= 0; i = pred[i] {
		path = append(path, g.nodes[i])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// prefer returns whether node i is preferred to node j when they give
// equal totals.
func (g *Graph) prefer(i, j int) bool {
	a, b := g.nodes[i], g.nodes[j]
	if a.Length != b.Length {
		return a.Length > b.Length
	}
	return a.Left() < b.Left()
}

// Total returns the sum of the scores of genes.
func Total(genes []orf.Candidate) float64 {
	var t float64
	for _, c := range genes {
		t += c.Score
	}
	return t
}

// Audit returns an error if any pair of genes overlaps by more than
// maxOverlap bases, shares a stop codon or is duplicated.
func Audit(genes []orf.Candidate, maxOverlap int) error {
	var tree interval.IntTree
	for i, c := range genes {
		err := tree.Insert(geneInterval{uid: uintptr(i), Candidate: c}, true)
		if err != nil {
			return err
		}
	}
	tree.AdjustRanges()
	for i, c := range genes {
		for _, h := range tree.Get(geneInterval{Candidate: c}) {
			o := h.(geneInterval)
			if o.uid == uintptr(i) {
				continue
			}
			switch {
			case o.Candidate.Start == c.Start && o.Candidate.SameStop(c):
				return fmt.Errorf("duplicate gene %v", c)
			case o.Candidate.SameStop(c):
				return fmt.Errorf("genes %v and %v share a stop codon", c, o.Candidate)
			case c.Overlap(o.Candidate) > maxOverlap:
				return fmt.Errorf("genes %v and %v overlap by %d bases", c, o.Candidate, c.Overlap(o.Candidate))
			}
		}
	}
	return nil
}

type geneInterval struct {
	uid uintptr
	orf.Candidate
}

// Overlap returns whether the b interval shares any base with i.
func (i geneInterval) Overlap(b interval.IntRange) bool {
	return b.Start < i.Right() && i.Left() < b.End
}
func (i geneInterval) ID() uintptr { return i.uid }
func (i geneInterval) Range() interval.IntRange {
	return interval.IntRange{Start: i.Left(), End: i.Right()}
}

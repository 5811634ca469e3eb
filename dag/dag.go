// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dag provides selection of a coherent gene set from scored
// candidate genes. Candidates are arranged in a coordinate-ordered
// directed acyclic graph whose edges join compatible candidates, and the
// maximum scoring path through the graph is the selected gene set.
package dag

import (
	"math"
	"sort"

	"github.com/kortschak/balrog/orf"
)

// Params holds the graph construction parameters.
type Params struct {
	// MaxOverlap is the maximum number of bases
	// two consecutive genes may share.
	MaxOverlap int

	// MaxConnections is the maximum number of
	// successors of each node.
	MaxConnections int
}

// Graph is a candidate gene graph. Nodes are held in an array sorted by
// candidate coordinate and edges always point to a later node, so the
// array order is a topological order of the graph.
type Graph struct {
	nodes []orf.Candidate
	succ  [][]int

	params Params
}

// Build returns the candidate graph for cands. The cands slice is not
// retained or modified.
//
// Candidate b may follow candidate a when b starts and ends strictly
// downstream of a, the two do not share a stop codon, and they overlap
// by no more than p.MaxOverlap bases. Overlap exactly equal to MaxOverlap
// is permitted. Of the candidates that may follow a, only those starting
// before the end of the nearest positive scoring one are considered, since
// any later candidate can be reached through it with a higher total. Of
// these, the p.MaxConnections highest scoring become successors of a.
//
// Raising p.MaxOverlap never lowers the total of the optimal path only
// while p.MaxConnections is at least the number of candidates eligible
// to follow each node. A smaller MaxConnections may prune a successor
// on the optimal path of the relaxed graph.
func Build(cands []orf.Candidate, p Params) *Graph {
	nodes := make([]orf.Candidate, len(cands))
	copy(nodes, cands)
	sort.Stable(byRightLeft(nodes))

	var maxLen int
	for _, c := range nodes {
		maxLen = max(maxLen, c.Right()-c.Left())
	}

	g := &Graph{
		nodes:  nodes,
		succ:   make([][]int, len(nodes)),
		params: p,
	}
	var eligible []int
	for i, a := range nodes {
		eligible = eligible[:0]
		bound := math.MaxInt
		for j := i + 1; j < len(nodes); j++ {
			b := nodes[j]
			if bound != math.MaxInt && b.Right()-maxLen >= bound {
				// All remaining candidates start at or
				// after the bound.
				break
			}
			if b.Left() >= bound || !g.compatible(a, b) {
				continue
			}
			eligible = append(eligible, j)
			if b.Score > 0 {
				bound = min(bound, b.Right())
			}
		}
		g.succ[i] = g.best(eligible)
	}
	return g
}

// compatible returns whether b may directly follow a in a gene set.
func (g *Graph) compatible(a, b orf.Candidate) bool {
	return a.Left() < b.Left() &&
		a.Right() < b.Right() &&
		!a.SameStop(b) &&
		a.Right()-b.Left() <= g.params.MaxOverlap
}

// best returns the indices of the highest scoring MaxConnections nodes in
// idx, in ascending index order.
func (g *Graph) best(idx []int) []int {
	if len(idx) == 0 {
		return nil
	}
	keep := append([]int(nil), idx...)
	if len(keep) > g.params.MaxConnections {
		sort.SliceStable(keep, func(i, j int) bool {
			return g.nodes[keep[i]].Score > g.nodes[keep[j]].Score
		})
		keep = keep[:max(g.params.MaxConnections, 0)]
		sort.Ints(keep)
	}
	return keep
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Candidate returns the candidate held by node i.
func (g *Graph) Candidate(i int) orf.Candidate { return g.nodes[i] }

// Successors returns the indices of the successors of node i. The
// returned slice must not be modified.
func (g *Graph) Successors(i int) []int { return g.succ[i] }

// byRightLeft sorts candidates by right end, then left end and then strand,
// plus strand first.
type byRightLeft []orf.Candidate

func (c byRightLeft) Len() int { return len(c) }
func (c byRightLeft) Less(i, j int) bool {
	ri, rj := c[i].Right(), c[j].Right()
	if ri != rj {
		return ri < rj
	}
	li, lj := c[i].Left(), c[j].Left()
	if li != lj {
		return li < lj
	}
	return c[i].Strand > c[j].Strand
}
func (c byRightLeft) Swap(i, j int) { c[i], c[j] = c[j], c[i] }

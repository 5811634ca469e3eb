// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dag

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kortschak/balrog/orf"
)

// Directed returns a gonum representation of the graph. Node IDs are the
// arena indices of the candidates and edge weights are the scores of the
// successor candidates.
func (g *Graph) Directed() *simple.WeightedDirectedGraph {
	d := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for i, c := range g.nodes {
		d.AddNode(node{id: int64(i), cand: c})
	}
	for i, succ := range g.succ {
		for _, j := range succ {
			d.SetWeightedEdge(edge{
				f: d.Node(int64(i)),
				t: d.Node(int64(j)),
				w: g.nodes[j].Score,
			})
		}
	}
	return d
}

// DOT returns the graph in DOT format.
func (g *Graph) DOT(name string) ([]byte, error) {
	return dot.Marshal(g.Directed(), name, "", "\t")
}

type node struct {
	id   int64
	cand orf.Candidate
}

func (n node) ID() int64     { return n.id }
func (n node) DOTID() string { return fmt.Sprintf("n%d", n.id) }
func (n node) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "label", Value: fmt.Sprintf("%q", n.cand.String())}}
}

type edge struct {
	f, t graph.Node
	w    float64
}

func (e edge) From() graph.Node         { return e.f }
func (e edge) To() graph.Node           { return e.t }
func (e edge) ReversedEdge() graph.Edge { return edge{f: e.t, t: e.f, w: e.w} }
func (e edge) Weight() float64          { return e.w }
func (e edge) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "weight", Value: fmt.Sprint(e.w)}}
}

// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The cmpgenes program compares two gene annotations. It takes two GFF3
// file inputs describing CDS features, for example a balrog prediction and
// a reference annotation, and compares them at the base and at the gene
// level. At the base level, each coding base is labelled with the strand
// and frame of the gene covering it, and the output counts the number of
// bases where the inputs agree, the number that are coding in one, but not
// the other, and the number where the reading frames differ. At the gene
// level, genes are matched by their stop codon and the output counts the
// matched genes and the matches that also agree on the start codon. The
// analysis is emitted on stdout as a JSON object.
//
// If a dot flag is provided, the base level discordances between the
// annotations are written as a graph in DOT format, with edge weights
// representing counts of mismatched bases.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/biogo/biogo/seq"
	"github.com/biogo/store/step"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kortschak/balrog/gff3"
)

func main() {
	aFile := flag.String("a", "", "specify the input file a name (required)")
	bFile := flag.String("b", "", "specify the input file b name (required)")
	out := flag.String("dot", "", "specify file name for DOT file describing disagreements")
	none := flag.String("none", "none", "specify label for non-coding")

	flag.Parse()
	if *aFile == "" || *bFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	a, err := readCDS(*aFile)
	if err != nil {
		log.Fatal(err)
	}
	b, err := readCDS(*bFile)
	if err != nil {
		log.Fatal(err)
	}

	r, mismatches, err := compare(a, b)
	if err != nil {
		log.Fatal(err)
	}
	m, err := json.Marshal(r)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s\n", m)

	if *out != "" {
		err = dotOut(*out, *aFile, *bFile, mismatches, *none)
		if err != nil {
			log.Fatal(err)
		}
	}
}

func readCDS(path string) ([]gff3.Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	feats, err := gff3.ReadCDS(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return feats, nil
}

type bases struct {
	Agree    int `json:"agree"`
	AMissing int `json:"a-missing"`
	BMissing int `json:"b-missing"`
	Mismatch int `json:"mismatch"`
}

type genes struct {
	A          int `json:"a"`
	B          int `json:"b"`
	StopMatch  int `json:"stop-match"`
	StartMatch int `json:"start-match"`
}

type report struct {
	Bases bases `json:"bases"`
	Genes genes `json:"genes"`
}

// compare returns the base and gene level comparison of the a and b
// annotations, and the number of discordant bases for each pair of frame
// labels.
func compare(a, b []gff3.Feature) (report, map[names]int, error) {
	var r report
	frames := make(map[string]*step.Vector)
	apply := func(feats []gff3.Feature, set func(*pair, string)) error {
		for _, f := range feats {
			v, ok := frames[f.SeqID]
			if !ok {
				var err error
				v, err = step.New(0, 1, pair{})
				if err != nil {
					return err
				}
				v.Relaxed = true
				frames[f.SeqID] = v
			}
			label := frameOf(f)
			err := v.ApplyRange(f.Gene.Left(), f.Gene.Right(), func(e step.Equaler) step.Equaler {
				p := e.(pair)
				set(&p, label)
				return p
			})
			if err != nil {
				return err
			}
		}
		return nil
	}
	err := apply(a, func(p *pair, label string) { p.a = label })
	if err != nil {
		return r, nil, err
	}
	err = apply(b, func(p *pair, label string) { p.b = label })
	if err != nil {
		return r, nil, err
	}

	var seqs []string
	for s := range frames {
		seqs = append(seqs, s)
	}
	sort.Strings(seqs)

	mismatches := make(map[names]int)
	for _, s := range seqs {
		frames[s].Do(func(start, end int, e step.Equaler) {
			p := e.(pair)
			if p.isZero() {
				return
			}
			len := end - start
			switch {
			case p.a == p.b:
				r.Bases.Agree += len
			case p.a == "":
				r.Bases.AMissing += len
				mismatches[p.names] += len
			case p.b == "":
				r.Bases.BMissing += len
				mismatches[p.names] += len
			default:
				r.Bases.Mismatch += len
				mismatches[p.names] += len
			}
		})
	}

	starts := make(map[stop]int)
	for _, f := range a {
		starts[stopOf(f)] = f.Gene.Start
	}
	for _, f := range b {
		start, ok := starts[stopOf(f)]
		if !ok {
			continue
		}
		r.Genes.StopMatch++
		if start == f.Gene.Start {
			r.Genes.StartMatch++
		}
	}
	r.Genes.A = len(a)
	r.Genes.B = len(b)

	return r, mismatches, nil
}

// frameOf returns the strand and frame label of the feature f.
func frameOf(f gff3.Feature) string {
	if f.Gene.Strand == seq.Minus {
		return fmt.Sprintf("-%d", f.Gene.Right()%3)
	}
	return fmt.Sprintf("+%d", f.Gene.Left()%3)
}

type stop struct {
	seqID  string
	strand seq.Strand
	pos    int
}

func stopOf(f gff3.Feature) stop {
	return stop{seqID: f.SeqID, strand: f.Gene.Strand, pos: f.Gene.Stop}
}

// pair is a step vector element with the frame
// labels of the two annotations.
type pair struct {
	names
}

type names struct {
	a, b string
}

func (p pair) isZero() bool {
	return p.names == names{}
}

func (p pair) Equal(e step.Equaler) bool {
	return p.names == e.(pair).names
}

// dotOut writes the discordance graph of the two annotations to path.
// Edges are directed from the frame label of aFile to the frame label
// of bFile.
func dotOut(path, aFile, bFile string, edges map[names]int, none string) error {
	g := newLabelGraph(none)
	for p, w := range edges {
		g.SetWeightedEdge(edge{
			f: g.nodeFor(aFile, p.a),
			t: g.nodeFor(bFile, p.b),
			w: float64(w),
		})
	}
	b, err := dot.Marshal(g, "discord", "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o664)
}

type labelGraph struct {
	*simple.WeightedDirectedGraph
	idFor map[string]int64
	none  string
}

func newLabelGraph(none string) labelGraph {
	return labelGraph{
		WeightedDirectedGraph: simple.NewWeightedDirectedGraph(0, 0),
		idFor:                 make(map[string]int64),
		none:                  none,
	}
}

func (g labelGraph) nodeFor(file, label string) graph.Node {
	if label == "" {
		label = g.none
	}
	name := file + ":" + label
	id, ok := g.idFor[name]
	if ok {
		return g.Node(id)
	}
	n := node{id: int64(len(g.idFor)), file: file, label: label}
	g.idFor[name] = n.id
	g.AddNode(n)
	return n
}

type node struct {
	id          int64
	file, label string
}

func (n node) ID() int64     { return n.id }
func (n node) DOTID() string { return fmt.Sprintf("%s:%s", n.file, n.label) }
func (n node) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "label", Value: fmt.Sprintf("%q", n.label)}}
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

// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gff3 provides writing of predicted genes in GFF3 format.
package gff3

import (
	"bufio"
	"fmt"
	"io"

	"github.com/biogo/biogo/seq"

	"github.com/kortschak/balrog/orf"
)

const (
	// Source is the source field of written features.
	Source = "balrog"

	// Attributes is the attribute field of written features.
	Attributes = "inference=ab initio prediction:Balrog;product=hypothetical protein"
)

// Region is a sequence region described in the GFF3 header.
type Region struct {
	Name   string
	Length int
}

// Annotation is the set of genes predicted on a sequence region.
type Annotation struct {
	Region
	Genes []orf.Candidate
}

// Writer writes GFF3 records.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter returns a new Writer writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteHeader writes the GFF3 version line and a sequence-region
// directive for each of regions.
func (w *Writer) WriteHeader(regions []Region) error {
	w.printf("##gff-version 3\n")
	for _, r := range regions {
		w.printf("##sequence-region %s %d %d\n", r.Name, 1, r.Length)
	}
	return w.err
}

// WriteGene writes a CDS feature for c on the named sequence. Coordinates
// are one-based and inclusive of the stop codon.
func (w *Writer) WriteGene(name string, c orf.Candidate) error {
	start := c.Left() + 1
	end := c.Right()
	strand := '+'
	if c.Strand == seq.Minus {
		strand = '-'
	}
	w.printf("%s\t%s\tCDS\t%d\t%d\t.\t%c\t0\t%s\n", name, Source, start, end, strand, Attributes)
	return w.err
}

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

func (w *Writer) printf(format string, args ...interface{}) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, format, args...)
}

// Write writes a complete GFF3 document for the given annotations:
// a header describing all the regions followed by the genes of each region
// in order.
func Write(dst io.Writer, annots []Annotation) error {
	w := NewWriter(dst)
	regions := make([]Region, len(annots))
	for i, a := range annots {
		regions[i] = a.Region
	}
	err := w.WriteHeader(regions)
	if err != nil {
		return err
	}
	for _, a := range annots {
		for _, c := range a.Genes {
			err = w.WriteGene(a.Name, c)
			if err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/biogo/hts/fai"

	"github.com/kortschak/balrog/internal/pipeline"
)

var gzipMagic = []byte{0x1f, 0x8b}

// openInput returns a contig source for the FASTA file at path. Plain
// files are indexed and their sequences read on demand. Gzipped files,
// plain files that cannot be indexed and standard input, given as "-",
// are read completely.
func openInput(path string) (pipeline.Source, io.Closer, error) {
	if path == "-" {
		contigs, err := readFasta(os.Stdin)
		return contigs, io.NopCloser(nil), err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	magic := make([]byte, len(gzipMagic))
	_, err = io.ReadFull(f, magic)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		f.Close()
		return nil, nil, err
	}
	_, err = f.Seek(0, io.SeekStart)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	if bytes.Equal(magic, gzipMagic) {
		defer f.Close()
		r, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		defer r.Close()
		contigs, err := readFasta(r)
		return contigs, io.NopCloser(nil), err
	}

	src, err := newIndexed(f)
	if err == nil {
		return src, f, nil
	}

	// Files with irregular line lengths or duplicate
	// identifiers cannot be indexed but are still valid.
	log.Printf("cannot index %s, reading whole file: %v", path, err)
	defer f.Close()
	_, err = f.Seek(0, io.SeekStart)
	if err != nil {
		return nil, nil, err
	}
	contigs, err := readFasta(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return contigs, io.NopCloser(nil), nil
}

// readFasta returns all the sequences in the FASTA stream r.
func readFasta(r io.Reader) (pipeline.Contigs, error) {
	var contigs pipeline.Contigs
	sc := seqio.NewScanner(fasta.NewReader(bufio.NewReader(r), linear.NewSeq("", nil, alphabet.DNAredundant)))
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		contigs = append(contigs, pipeline.Contig{
			ID:   firstWord(s.ID),
			Desc: s.Desc,
			Seq:  alphabet.LettersToBytes(s.Seq),
		})
	}
	err := sc.Error()
	if err != nil {
		return nil, fmt.Errorf("error during sequence read: %w", err)
	}
	return contigs, nil
}

func firstWord(s string) string {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s
	}
	return s[:i]
}

// indexed is a contig source reading sequences from a FASTA file
// through its fai index.
type indexed struct {
	mu   sync.Mutex
	file *fai.File
	recs []fai.Record
}

func newIndexed(f *os.File) (*indexed, error) {
	idx, err := fai.NewIndex(f)
	if err != nil {
		return nil, err
	}
	_, err = f.Seek(0, io.SeekStart)
	if err != nil {
		return nil, err
	}
	recs := make([]fai.Record, 0, len(idx))
	for _, r := range idx {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Start < recs[j].Start })
	return &indexed{file: fai.NewFile(f, idx), recs: recs}, nil
}

func (s *indexed) Len() int { return len(s.recs) }

func (s *indexed) Contig(i int) (pipeline.Contig, error) {
	rec := s.recs[i]
	c := pipeline.Contig{ID: rec.Name}
	if rec.Length == 0 {
		return c, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.file.SeqRange(rec.Name, 0, rec.Length)
	if err != nil {
		return c, fmt.Errorf("%s: %w", rec.Name, err)
	}
	c.Seq, err = io.ReadAll(r)
	if err != nil {
		return c, fmt.Errorf("%s: %w", rec.Name, err)
	}
	return c, nil
}

// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/biogo/seq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kortschak/balrog/homology"
	"github.com/kortschak/balrog/internal/config"
	"github.com/kortschak/balrog/internal/pipeline"
	"github.com/kortschak/balrog/internal/store"
	"github.com/kortschak/balrog/orf"
	"github.com/kortschak/balrog/score"
)

// wrap breaks s into lines of n bases.
func wrap(s string, n int) string {
	var b strings.Builder
	for len(s) > n {
		b.WriteString(s[:n])
		b.WriteByte('\n')
		s = s[n:]
	}
	b.WriteString(s)
	b.WriteByte('\n')
	return b.String()
}

var (
	seqA = strings.Repeat("ACGTTGCA", 20)
	seqB = strings.Repeat("GGCATTAC", 9) + "GATC"
)

func fastaFile() string {
	return ">contigA first contig\n" + wrap(seqA, 60) +
		">contigB\n" + wrap(seqB, 60)
}

func checkContigs(t *testing.T, src pipeline.Source) {
	t.Helper()
	require.Equal(t, 2, src.Len())
	a, err := src.Contig(0)
	require.NoError(t, err)
	assert.Equal(t, "contigA", a.ID)
	assert.Equal(t, seqA, string(a.Seq))
	b, err := src.Contig(1)
	require.NoError(t, err)
	assert.Equal(t, "contigB", b.ID)
	assert.Equal(t, seqB, string(b.Seq))
}

func TestOpenInputPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genome.fasta")
	require.NoError(t, os.WriteFile(path, []byte(fastaFile()), 0o644))

	src, closer, err := openInput(path)
	require.NoError(t, err)
	defer closer.Close()
	_, ok := src.(*indexed)
	assert.True(t, ok, "plain input should be indexed")
	checkContigs(t, src)

	// Random access must not depend on read order.
	b, err := src.Contig(1)
	require.NoError(t, err)
	assert.Equal(t, seqB, string(b.Seq))
}

func TestOpenInputGzip(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(fastaFile()))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	path := filepath.Join(t.TempDir(), "genome.fasta.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	src, closer, err := openInput(path)
	require.NoError(t, err)
	defer closer.Close()
	checkContigs(t, src)
	c, err := src.Contig(0)
	require.NoError(t, err)
	assert.Equal(t, "first contig", c.Desc)
}

func TestOpenInputIrregularLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragged.fasta")
	require.NoError(t, os.WriteFile(path, []byte(">c1 desc\nATGAAA\nATGAAACCC\nTAA\n"), 0o644))

	src, closer, err := openInput(path)
	require.NoError(t, err)
	defer closer.Close()
	_, ok := src.(*indexed)
	assert.False(t, ok, "ragged input cannot be indexed")
	require.Equal(t, 1, src.Len())
	c, err := src.Contig(0)
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "desc", c.Desc)
	assert.Equal(t, "ATGAAAATGAAACCCTAA", string(c.Seq))
}

func TestOpenInputDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.fasta")
	require.NoError(t, os.WriteFile(path, []byte(">c1\nACGT\n>c1\nTTGA\n"), 0o644))

	src, closer, err := openInput(path)
	require.NoError(t, err)
	defer closer.Close()
	require.Equal(t, 2, src.Len())
	c, err := src.Contig(1)
	require.NoError(t, err)
	assert.Equal(t, "TTGA", string(c.Seq))
}

func TestOpenInputMissing(t *testing.T) {
	_, _, err := openInput(filepath.Join(t.TempDir(), "missing.fasta"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "unexpected error: %v", err)
}

func TestWrite(t *testing.T) {
	results := []pipeline.Result{
		{
			Contig: "done", Length: 300, Done: true,
			Genes: []homology.Gene{{Candidate: orf.Candidate{Start: 75, Stop: 222, Strand: seq.Plus, Length: 150}}},
		},
		{Contig: "skipped", Length: 200, Done: true, Err: score.ErrOracle},
		{Contig: "unfinished", Length: 100},
	}
	var buf bytes.Buffer
	require.NoError(t, write(&buf, results))
	const want = `##gff-version 3
##sequence-region done 1 300
##sequence-region skipped 1 200
done	balrog	CDS	76	225	.	+	0	inference=ab initio prediction:Balrog;product=hypothetical protein
`
	assert.Equal(t, want, buf.String())
}

const helperEnv = "BALROG_WANT_MODEL_SERVER"

// TestModelServer is not a real test. It is run as a model server
// that scores proteins by length and fails all TIS requests.
func TestModelServer(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		t.Skip("helper process")
	}
	type request struct {
		Model string   `json:"model"`
		Seqs  []string `json:"seqs"`
	}
	type response struct {
		Scores []float64 `json:"scores"`
		Error  string    `json:"error,omitempty"`
	}
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(nil, 1<<24)
	enc := json.NewEncoder(os.Stdout)
	for sc.Scan() {
		var req request
		err := json.Unmarshal(sc.Bytes(), &req)
		if err != nil {
			enc.Encode(response{Error: err.Error()})
			continue
		}
		if req.Model == "tis" {
			enc.Encode(response{Error: "no TIS model loaded"})
			continue
		}
		var resp response
		for _, s := range req.Seqs {
			resp.Scores = append(resp.Scores, float64(len(s))/10)
		}
		enc.Encode(resp)
	}
	os.Exit(0)
}

func TestRunOracleFailure(t *testing.T) {
	t.Setenv(helperEnv, "1")
	dir := t.TempDir()
	in := filepath.Join(dir, "genome.fasta")
	contig := strings.Repeat("C", 75) + "ATG" + strings.Repeat("GCC", 48) + "TAA" + strings.Repeat("C", 75)
	require.NoError(t, os.WriteFile(in, []byte(">contig\n"+wrap(contig, 60)), 0o644))
	out := filepath.Join(dir, "genes.gff3")

	cfg := config.Default()
	cfg.TempDir = dir
	cfg.ScoreCache = "scores.db"
	cfg.Threads = 1
	cfg.Verbose = false
	cfg.Homology.Enabled = false
	cfg.Model.Command = os.Args[0]
	cfg.Model.ExtraFlags = "-test.run=^TestModelServer$"
	require.NoError(t, cfg.Validate())

	err := run(context.Background(), cfg, in, out, "")
	assert.True(t, errors.Is(err, score.ErrOracle), "unexpected error: %v", err)

	// The output is written and the cache is closed
	// before the failure is reported.
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "##gff-version 3\n"), "missing GFF3 header: %q", b)

	db, err := score.OpenCacheDB(filepath.Join(dir, "balrog", "scores.db"))
	require.NoError(t, err)
	defer db.Close()
	it, err := db.SeekFirst()
	require.NoError(t, err)
	kinds := make(map[byte]int)
	for {
		k, _, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		key, err := store.UnmarshalScoreKey(k)
		require.NoError(t, err)
		kinds[key.Kind]++
	}
	assert.Equal(t, 1, kinds[store.Gene], "gene score should be cached")
	assert.Zero(t, kinds[store.TIS], "failed TIS scores should not be cached")
}

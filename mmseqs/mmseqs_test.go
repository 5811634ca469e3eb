// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmseqs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCommand(t *testing.T) {
	cmd, err := CreateDB{In: "genes.faa", Out: "genes.db", Verbosity: "0"}.BuildCommand()
	require.NoError(t, err)
	assert.Equal(t, []string{"mmseqs", "createdb", "genes.faa", "genes.db", "-v", "0"}, cmd.Args)

	cmd, err = Search{
		Query: "q", Target: "ref", Result: "res", TmpDir: "tmp",
		Sensitivity: 7.5, Threads: 2,
	}.BuildCommand()
	require.NoError(t, err)
	assert.Equal(t, []string{"mmseqs", "search", "q", "ref", "res", "tmp", "-s", "7.5", "--threads", "2"}, cmd.Args)

	cmd, err = ConvertAlis{Cmd: "/opt/mmseqs", Query: "q", Target: "ref", Result: "res", Out: "hits.m8"}.BuildCommand()
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/mmseqs", "convertalis", "q", "ref", "res", "hits.m8"}, cmd.Args)

	_, err = CreateDB{In: "genes.faa"}.BuildCommand()
	assert.Error(t, err)
	_, err = CreateIndex{DB: "ref"}.BuildCommand()
	assert.Error(t, err)
	_, err = Search{Query: "q"}.BuildCommand()
	assert.Error(t, err)
}

const m8 = `contig_1	ref_7	0.812	120	22	1	1	120	5	124	1.2e-40	150.2
contig_1	ref_9	0.500	80	40	2	10	89	1	80	3.0e-05	45.0
contig_2	ref_3	 0.9 	50	5	0	1	50	1	50	1e-10	 60.5
`

func TestParseTabular(t *testing.T) {
	recs, err := ParseTabular(strings.NewReader(m8))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, Record{
		Query:           "contig_1",
		Target:          "ref_7",
		Identity:        0.812,
		AlignmentLength: 120,
		Mismatches:      22,
		GapOpens:        1,
		QueryStart:      0,
		QueryEnd:        120,
		TargetStart:     4,
		TargetEnd:       124,
		EValue:          1.2e-40,
		BitScore:        150.2,
	}, recs[0])
	assert.Equal(t, 60.5, recs[2].BitScore)

	best := Best(recs)
	assert.Len(t, best, 2)
	assert.Equal(t, "ref_7", best["contig_1"].Target)
	assert.Equal(t, "ref_3", best["contig_2"].Target)

	_, err = ParseTabular(strings.NewReader("a\tb\tc\n"))
	assert.Error(t, err)
	_, err = ParseTabular(strings.NewReader(strings.Replace(m8, "150.2", "x", 1)))
	assert.Error(t, err)
}

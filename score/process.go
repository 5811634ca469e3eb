// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package score

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/biogo/external"
)

// Server is the command line of an external model server.
//
// The server reads newline-delimited JSON requests on stdin of the form
//  {"model": "gene"|"tis", "seqs": ["MKL...", ...]}
// and writes one JSON response per request on stdout of the form
//  {"scores": [0.93, ...]}
// or
//  {"error": "message"}
// Scores must be in the order of the request sequences.
type Server struct {
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}balrog-model{{end}}"` // balrog-model

	GeneModel string `buildarg:"{{with .}}--gene-model{{split}}{{.}}{{end}}"` // --gene-model <s>
	TISModel  string `buildarg:"{{with .}}--tis-model{{split}}{{.}}{{end}}"`  // --tis-model <s>
	Device    string `buildarg:"{{with .}}--device{{split}}{{.}}{{end}}"`     // --device <s>
	Threads   int    `buildarg:"{{if .}}--threads{{split}}{{.}}{{end}}"`      // --threads <n>

	// ExtraFlags will be passed through to the server as flags.
	ExtraFlags string
}

func (s Server) BuildCommand() (*exec.Cmd, error) {
	cl := external.Must(external.Build(s))
	var extra []string
	if s.ExtraFlags != "" {
		extra = strings.Split(s.ExtraFlags, " ")
	}
	return exec.Command(cl[0], append(cl[1:], extra...)...), nil
}

// Process is an Oracle backed by a running model server. A single
// Process may be shared by concurrent callers; requests are served one at
// a time.
type Process struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	enc    *json.Encoder
	dec    *json.Decoder
	failed error
}

type request struct {
	Model string   `json:"model"`
	Seqs  []string `json:"seqs"`
}

type response struct {
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

// NewProcess starts cmd and returns a Process communicating with it. If
// logger is not nil, the server's stderr is written to it.
func NewProcess(cmd *exec.Cmd, logger io.Writer) (*Process, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = logger
	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("%w: starting model server: %w", ErrOracle, err)
	}
	return &Process{
		cmd:   cmd,
		stdin: stdin,
		enc:   json.NewEncoder(stdin),
		dec:   json.NewDecoder(bufio.NewReader(stdout)),
	}, nil
}

// ScoreGenes satisfies the Oracle interface.
func (p *Process) ScoreGenes(ctx context.Context, proteins [][]byte) ([]float64, error) {
	return p.call(ctx, "gene", proteins)
}

// ScoreTIS satisfies the Oracle interface.
func (p *Process) ScoreTIS(ctx context.Context, windows [][]byte) ([]float64, error) {
	return p.call(ctx, "tis", windows)
}

func (p *Process) call(ctx context.Context, model string, items [][]byte) ([]float64, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	req := request{Model: model, Seqs: make([]string, len(items))}
	for i, s := range items {
		req.Seqs[i] = string(s)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed != nil {
		return nil, p.failed
	}

	// A broken exchange leaves the stream in an unknown state,
	// so every later call fails with the same error.
	err = p.enc.Encode(req)
	if err != nil {
		p.failed = fmt.Errorf("%w: sending %s request: %w", ErrOracle, model, err)
		return nil, p.failed
	}
	var resp response
	err = p.dec.Decode(&resp)
	if err != nil {
		p.failed = fmt.Errorf("%w: reading %s response: %w", ErrOracle, model, err)
		return nil, p.failed
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: model server: %s", ErrOracle, resp.Error)
	}
	if len(resp.Scores) != len(items) {
		return nil, fmt.Errorf("%w: %s response has %d scores for %d items", ErrOracle, model, len(resp.Scores), len(items))
	}
	return resp.Scores, nil
}

// Close closes the server's input and waits for it to exit.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed == nil {
		p.failed = errors.New("model server closed")
	}
	err := p.stdin.Close()
	werr := p.cmd.Wait()
	if err != nil {
		return err
	}
	return werr
}

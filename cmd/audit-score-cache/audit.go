// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The audit-score-cache command allows the score cache generated by balrog
// with the -cache flag to be queried. The cache holds the model scores of
// every translated candidate protein and every start site window that has
// been submitted to the model server, keyed by model kind and the SHA-256
// digest of the scored sequence. Output from audit-score-cache is a JSON
// stream on stdout corresponding to the following Go struct.
//  struct {
//  	Model  string  // "gene" or "tis"
//  	Digest string  // hex encoded SHA-256 of the scored sequence
//  	Score  float64
//  }
// If a sequence is given with -seq, only the entry for that sequence is
// written.
package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"modernc.org/kv"

	"github.com/kortschak/balrog/internal/store"
)

var models = map[string]byte{
	"gene": store.Gene,
	"tis":  store.TIS,
}

func main() {
	path := flag.String("db", "", "specify score cache db file to audit (required)")
	model := flag.String("model", "", "specify the model kind to audit (gene or tis, default all)")
	query := flag.String("seq", "", "specify a sequence to look up (requires -model)")
	flag.Parse()
	if *path == "" {
		flag.Usage()
		os.Exit(2)
	}
	kind, ok := models[*model]
	if *model != "" && !ok {
		log.Fatalf("unknown model kind: %q", *model)
	}
	if *query != "" && !ok {
		log.Fatal("-seq requires -model")
	}

	db, err := kv.Open(*path, &kv.Options{Compare: store.ByKindDigest})
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if *query != "" {
		err = lookup(os.Stdout, db, store.KeyFor(kind, []byte(*query)))
	} else {
		err = audit(os.Stdout, db, kind)
	}
	if err != nil {
		log.Fatal(err)
	}
}

type entry struct {
	Model  string
	Digest string
	Score  float64
}

// audit writes all the entries in db for the model kind to dst. If kind
// is zero all entries are written.
func audit(dst io.Writer, db *kv.DB, kind byte) error {
	enc := json.NewEncoder(dst)
	it, err := db.SeekFirst()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	for {
		k, v, err := it.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		e, err := decode(k, v)
		if err != nil {
			return err
		}
		if kind != 0 && models[e.Model] != kind {
			continue
		}
		err = enc.Encode(e)
		if err != nil {
			return err
		}
	}
}

// lookup writes the entry for key to dst.
func lookup(dst io.Writer, db *kv.DB, key store.ScoreKey) error {
	k := store.MarshalScoreKey(key)
	v, err := db.Get(nil, k)
	if err != nil {
		return err
	}
	if v == nil {
		return errors.New("sequence not found")
	}
	e, err := decode(k, v)
	if err != nil {
		return err
	}
	return json.NewEncoder(dst).Encode(e)
}

func decode(k, v []byte) (entry, error) {
	key, err := store.UnmarshalScoreKey(k)
	if err != nil {
		return entry{}, err
	}
	s, err := store.UnmarshalScore(v)
	if err != nil {
		return entry{}, err
	}
	var model string
	switch key.Kind {
	case store.Gene:
		model = "gene"
	case store.TIS:
		model = "tis"
	default:
		return entry{}, fmt.Errorf("unknown model kind in key: %q", key.Kind)
	}
	return entry{Model: model, Digest: hex.EncodeToString(key.Digest[:]), Score: s}, nil
}

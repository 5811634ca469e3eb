// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store provides the key and value encodings of the persistent
// score cache.
package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// Model kinds held in the score cache.
const (
	Gene byte = 'g'
	TIS  byte = 't'
)

// DigestSize is the length of an item digest in a key.
const DigestSize = sha256.Size

// ScoreKey is a score cache key.
type ScoreKey struct {
	Kind   byte
	Digest [DigestSize]byte
}

// KeyFor returns the key for the item scored by the model kind.
func KeyFor(kind byte, item []byte) ScoreKey {
	return ScoreKey{Kind: kind, Digest: sha256.Sum256(item)}
}

var order = binary.BigEndian

// MarshalScoreKey returns the binary encoding of k.
func MarshalScoreKey(k ScoreKey) []byte {
	var buf bytes.Buffer
	buf.WriteByte(k.Kind)
	buf.Write(k.Digest[:])
	return buf.Bytes()
}

// UnmarshalScoreKey decodes a key encoded by MarshalScoreKey.
func UnmarshalScoreKey(data []byte) (ScoreKey, error) {
	var k ScoreKey
	if len(data) != 1+DigestSize {
		return k, fmt.Errorf("invalid score key length: %d", len(data))
	}
	k.Kind = data[0]
	copy(k.Digest[:], data[1:])
	return k, nil
}

// ByKindDigest is a kv compare function, grouping keys by model kind and
// ordering by digest.
func ByKindDigest(x, y []byte) int {
	// Group by model.
	switch {
	case len(x) == 0 || len(y) == 0:
		return len(x) - len(y)
	case x[0] < y[0]:
		return -1
	case x[0] > y[0]:
		return 1
	}
	return bytes.Compare(x[1:], y[1:])
}

// MarshalScore returns a slice encoding s as a float64.
func MarshalScore(s float64) []byte {
	var buf [8]byte
	order.PutUint64(buf[:], math.Float64bits(s))
	return buf[:]
}

// UnmarshalScore decodes a score encoded by MarshalScore.
func UnmarshalScore(data []byte) (float64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid score length: %d", len(data))
	}
	return math.Float64frombits(order.Uint64(data)), nil
}

// Package random provides seed generation for macro dice rolls.
//
// Seeds come from crypto/rand unless the caller pins one for replay.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

// SeedSource reports where a roll seed came from.
type SeedSource string

const (
	SeedSourceClient SeedSource = "CLIENT"
	SeedSourceServer SeedSource = "SERVER"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// ResolveSeed returns the requested seed when present, otherwise a fresh one.
func ResolveSeed(requested *int64) (int64, SeedSource, error) {
	if requested != nil {
		return *requested, SeedSourceClient, nil
	}
	seed, err := NewSeed()
	if err != nil {
		return 0, "", err
	}
	return seed, SeedSourceServer, nil
}

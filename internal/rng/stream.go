// Package rng provides deterministic per-district pseudorandom streams.
//
// A stream's seed is a pure function of (global seed, district id, stage
// name), so populations and tier-1 decisions reproduce byte-for-byte no
// matter which worker runs which district, in what order, or how many
// workers exist. This is what makes two runs with the same seed
// comparable; it is mandatory, not an optimization.
package rng

import (
	"hash/fnv"
	"math/rand"

	"electsim/ports"
)

// seedSpace bounds the per-stream offset, mirroring the
// seed + hash(district_id) % 10000 scheme of the persona generator.
const seedSpace = 10000

// Streams implements ports.RNG.
type Streams struct{}

// New returns a stream factory.
func New() *Streams {
	return &Streams{}
}

// StreamSeed computes the deterministic seed for a (district, stage) pair.
func StreamSeed(districtID, stage string, baseSeed int64) int64 {
	h := fnv.New32a()
	h.Write([]byte(districtID))
	h.Write([]byte(":"))
	h.Write([]byte(stage))
	return baseSeed + int64(h.Sum32()%seedSpace)
}

// Stream returns a private generator for the (district, stage) pair.
func (s *Streams) Stream(districtID string, stage string, baseSeed int64) *rand.Rand {
	return rand.New(rand.NewSource(StreamSeed(districtID, stage, baseSeed)))
}

var _ ports.RNG = (*Streams)(nil)

// Stage names used by the engine. Each stage owns its own stream so that
// consumption in one stage can never shift the sequence seen by another.
const (
	StagePersonas    = "personas"
	StageVotes       = "votes"
	StageCalibration = "calibration"
)

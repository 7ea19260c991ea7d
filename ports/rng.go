package ports

import "math/rand"

// RNG hands out deterministic pseudorandom streams. Every concurrent unit
// (district worker) owns private streams seeded as a pure function of the
// global seed, the district identifier and a stage name; a process-global
// random source must never be reached for inside parallel code.
type RNG interface {
	// Stream returns a rand.Rand whose seed depends only on
	// (baseSeed, districtID, stage). Two calls with equal arguments
	// return independent generators producing identical sequences.
	Stream(districtID string, stage string, baseSeed int64) *rand.Rand
}

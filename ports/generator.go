package ports

import (
	"electsim/domain/election"
	"electsim/domain/persona"
)

// PersonaSource produces the synthetic population for one district.
// Implementations must be deterministic: the same (district, count, seed)
// yields byte-identical populations regardless of call order or
// concurrency, because the stream seed is a pure function of the global
// seed and the district identifier.
type PersonaSource interface {
	// Generate returns exactly count personas for the district.
	Generate(district election.District, count int, seed int64) ([]persona.Persona, error)

	// Name identifies the strategy ("archetype" or "demographic") for the
	// experiment parameter snapshot.
	Name() string
}

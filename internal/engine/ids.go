package engine

import "github.com/google/uuid"

// IDGenerator produces actor IDs. Implementations must be safe for concurrent
// use. testutil.FixedIDGenerator gives deterministic IDs in tests.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 actor IDs.
//
// Format: "0190f1c2-7b1d-7a4e-9c3b-5d2e8f6a1b40" (36 characters).
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7. Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

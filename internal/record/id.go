package record

import "github.com/google/uuid"

// IDGenerator produces ids for collections without primary keys.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator generates random (version 4) UUIDs.
//
// Format: "550e8400-e29b-41d4-a716-446655440000" (36 characters). The
// alphabet has no delimiter, so generated ids never split a key.
//
// Thread-safety: UUIDGenerator is stateless and safe for concurrent use.
type UUIDGenerator struct{}

// Generate returns a fresh UUID. Panics only if the system random source
// fails.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

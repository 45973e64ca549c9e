package silo

// Config holds the tunables a World is constructed with.
type Config struct {
	// ChunkByteBudget bounds the SoA byte footprint of a single chunk; chunk
	// capacity for an archetype is derived from it (see chunkCapacityFor).
	ChunkByteBudget int

	// LaneByteCapacity is the default/initial size of a command-buffer lane.
	LaneByteCapacity int

	// ProvisionThreshold is the ready-queue depth below which a chunk group
	// proactively provisions an extra chunk instead of waiting for
	// allocation pressure to force it.
	ProvisionThreshold int

	// SpinIterations bounds fast-path ready-queue pops before a caller falls
	// back to the slower, mutex-guarded path (ChunkGroup.add_entity slow path).
	SpinIterations int
}

// DefaultConfig returns a Config with sensible tunable defaults.
func DefaultConfig() Config {
	return Config{
		ChunkByteBudget:    16 * 1024,
		LaneByteCapacity:   64 * 1024,
		ProvisionThreshold: 2,
		SpinIterations:     32,
	}
}

package ports

// NoiseSource yields uniform values in [0, 1). *rand.Rand satisfies it; tests
// inject constant sources to make synthesis fully deterministic.
type NoiseSource interface {
	Float64() float64
}

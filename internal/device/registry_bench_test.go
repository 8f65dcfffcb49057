package device

import (
	"testing"
)

// setupBenchRegistry creates a registry with zero-latency devices and one
// observer, so the benchmarks measure locking and notification only.
func setupBenchRegistry(b *testing.B) *Registry {
	b.Helper()
	reg, err := NewRegistry(
		NewMotor(1, Latency{}),
		NewLight(1, "Blue LED", Latency{}),
		NewLight(2, "White LED", Latency{}),
		NewAltimeter(1, 0, 3000, Latency{}),
	)
	if err != nil {
		b.Fatalf("creating registry: %v", err)
	}
	reg.AddObserver(ObserverFunc(func(Event) {}))
	return reg
}

func BenchmarkRegistryLookup(b *testing.B) {
	reg := setupBenchRegistry(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.Lookup(KindLight, 2) //nolint:errcheck // benchmark
	}
}

func BenchmarkHandleRead_Parallel(b *testing.B) {
	reg := setupBenchRegistry(b)
	h, err := reg.Lookup(KindMotor, 1)
	if err != nil {
		b.Fatalf("Lookup() error = %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			h.Read() //nolint:errcheck // benchmark
		}
	})
}

func BenchmarkHandleWrite(b *testing.B) {
	reg := setupBenchRegistry(b)
	h, err := reg.Lookup(KindLight, 1)
	if err != nil {
		b.Fatalf("Lookup() error = %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Write(i % 256) //nolint:errcheck // benchmark
	}
}

func BenchmarkRegistryCatalogue(b *testing.B) {
	reg := setupBenchRegistry(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.Catalogue()
	}
}

package telemetry

import (
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"
)

// Range bounds a fake field, inclusive at both ends.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies in [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// FakeRanges are the bounds used for synthetic telemetry. The position is a
// small box around the Aksaray launch area.
var FakeRanges = map[string]Range{
	FieldAltitude:    {1000, 2000},
	FieldGPSAltitude: {995, 2005},
	FieldLatitude:    {39.9254 - 0.001, 39.9254 + 0.001},
	FieldLongitude:   {32.8667 - 0.001, 32.8667 + 0.001},
	FieldAccelX:      {-1, 1},
	FieldAccelY:      {-1, 1},
	FieldAccelZ:      {9.5, 10.5},
	FieldGyroX:       {-5, 5},
	FieldGyroY:       {-5, 5},
	FieldGyroZ:       {-5, 5},
	FieldAngle:       {0, 90},
	FieldStatus:      {0, 3},
}

// FakeGenerator produces bounded random records for running the pipeline
// without hardware. A fixed seed gives a reproducible sequence.
type FakeGenerator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	dists map[string]distuv.Uniform
}

// NewFakeGenerator seeds a generator. Generators with equal seeds produce
// equal sequences.
func NewFakeGenerator(seed uint64) *FakeGenerator {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	g := &FakeGenerator{
		rng:   rand.New(src),
		dists: make(map[string]distuv.Uniform, len(FloatFields)),
	}
	for _, name := range FloatFields {
		r := FakeRanges[name]
		g.dists[name] = distuv.Uniform{Min: r.Min, Max: r.Max, Src: src}
	}
	return g
}

// Next returns a new synthetic record.
func (g *FakeGenerator) Next() Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	status := FakeRanges[FieldStatus]
	span := int(status.Max-status.Min) + 1
	return Record{
		Altitude:    g.draw(FieldAltitude),
		GPSAltitude: g.draw(FieldGPSAltitude),
		Latitude:    g.draw(FieldLatitude),
		Longitude:   g.draw(FieldLongitude),
		AccelX:      g.draw(FieldAccelX),
		AccelY:      g.draw(FieldAccelY),
		AccelZ:      g.draw(FieldAccelZ),
		GyroX:       g.draw(FieldGyroX),
		GyroY:       g.draw(FieldGyroY),
		GyroZ:       g.draw(FieldGyroZ),
		Angle:       g.draw(FieldAngle),
		Status:      int(status.Min) + g.rng.IntN(span),
	}
}

func (g *FakeGenerator) draw(field string) float64 {
	d := g.dists[field]
	return d.Rand()
}

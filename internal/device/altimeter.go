package device

import "math/rand/v2"

// AltimeterReading is one altitude sample.
type AltimeterReading struct {
	Altitude int `json:"altitude"`
}

// Fields implements Status.
func (r AltimeterReading) Fields() map[string]any {
	return map[string]any{"altitude": r.Altitude}
}

// Altimeter is a stateless sensor. Every read acquires a fresh sample within
// [min, max].
type Altimeter struct {
	id      int
	min     int
	max     int
	latency Latency
	sample  func(n int) int // returns a value in [0, n)
}

// NewAltimeter returns an altimeter sampling within [minAltitude, maxAltitude].
// Only latency.Read is used.
func NewAltimeter(id, minAltitude, maxAltitude int, latency Latency) *Altimeter {
	return &Altimeter{
		id:      id,
		min:     minAltitude,
		max:     maxAltitude,
		latency: latency,
		sample:  rand.IntN,
	}
}

// Ref implements Device.
func (a *Altimeter) Ref() Ref { return Ref{Kind: KindAltimeter, ID: a.id} }

// Info implements Device.
func (a *Altimeter) Info() Info {
	return Info{Kind: KindAltimeter, ID: a.id, Description: "Altimeter", Writable: false}
}

// Range returns the operational range of the sensor.
func (a *Altimeter) Range() (minAltitude, maxAltitude int) {
	return a.min, a.max
}

// ReadAltitude acquires a sample after the acquisition latency.
func (a *Altimeter) ReadAltitude() AltimeterReading {
	hold(a.latency.Read)
	return AltimeterReading{Altitude: a.min + a.sample(a.max-a.min+1)}
}

// Read implements Device.
func (a *Altimeter) Read() Status { return a.ReadAltitude() }

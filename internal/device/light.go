package device

// Brightness bounds.
const (
	MinBrightness = 0
	MaxBrightness = 255
)

// LightStatus is a snapshot of an indicator light.
type LightStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Level       int    `json:"brightness_level"`
}

// Fields implements Status.
func (s LightStatus) Fields() map[string]any {
	return map[string]any{"brightness_level": s.Level}
}

// Light is a dimmable LED.
type Light struct {
	id          int
	description string
	latency     Latency
	level       int
}

// NewLight returns a light at minimum brightness.
func NewLight(id int, description string, latency Latency) *Light {
	return &Light{id: id, description: description, latency: latency, level: MinBrightness}
}

// Ref implements Device.
func (l *Light) Ref() Ref { return Ref{Kind: KindLight, ID: l.id} }

// Info implements Device.
func (l *Light) Info() Info {
	return Info{Kind: KindLight, ID: l.id, Description: l.description, Writable: true}
}

// Level returns the brightness level after the read latency.
func (l *Light) Level() LightStatus {
	hold(l.latency.Read)
	return l.snapshot()
}

// SetLevel changes the brightness. Out-of-range values fail immediately
// with a *RangeError.
func (l *Light) SetLevel(level int) (LightStatus, error) {
	if err := checkRange("brightness level", level, MinBrightness, MaxBrightness); err != nil {
		return LightStatus{}, err
	}
	hold(l.latency.Write)
	l.level = level
	return l.snapshot(), nil
}

// Read implements Device.
func (l *Light) Read() Status { return l.Level() }

// Write implements Writer.
func (l *Light) Write(v int) (Status, error) {
	s, err := l.SetLevel(v)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (l *Light) snapshot() LightStatus {
	return LightStatus{ID: l.id, Description: l.description, Level: l.level}
}

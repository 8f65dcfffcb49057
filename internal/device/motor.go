package device

// Motor speed bounds.
const (
	MinSpeed = 0
	MaxSpeed = 1000
)

// MotorStatus is a snapshot of the motor controller.
type MotorStatus struct {
	Speed    int  `json:"speed"`
	TurnedOn bool `json:"turned_on"`
}

// Fields implements Status.
func (s MotorStatus) Fields() map[string]any {
	return map[string]any{"speed": s.Speed, "turned_on": s.TurnedOn}
}

// Motor is the rotor controller. It is OFF while its speed is zero and ON
// otherwise; turnedOn always equals speed != 0 after a completed write.
type Motor struct {
	id       int
	latency  Latency
	speed    int
	turnedOn bool
}

// NewMotor returns a motor in the OFF state.
func NewMotor(id int, latency Latency) *Motor {
	return &Motor{id: id, latency: latency, speed: MinSpeed}
}

// Ref implements Device.
func (m *Motor) Ref() Ref { return Ref{Kind: KindMotor, ID: m.id} }

// Info implements Device.
func (m *Motor) Info() Info {
	return Info{Kind: KindMotor, ID: m.id, Description: "Hexacopter motor", Writable: true}
}

// Status returns the current speed and power state after the read latency.
func (m *Motor) Status() MotorStatus {
	hold(m.latency.Read)
	return m.snapshot()
}

// SetSpeed drives the motor to speed. Out-of-range values fail immediately
// with a *RangeError; valid values occupy the write latency before returning.
func (m *Motor) SetSpeed(speed int) (MotorStatus, error) {
	if err := checkRange("speed", speed, MinSpeed, MaxSpeed); err != nil {
		return MotorStatus{}, err
	}
	hold(m.latency.Write)
	m.speed = speed
	m.turnedOn = speed != 0
	return m.snapshot(), nil
}

// Read implements Device.
func (m *Motor) Read() Status { return m.Status() }

// Write implements Writer.
func (m *Motor) Write(v int) (Status, error) {
	s, err := m.SetSpeed(v)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Motor) snapshot() MotorStatus {
	return MotorStatus{Speed: m.speed, TurnedOn: m.turnedOn}
}

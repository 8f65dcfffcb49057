package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/drone-gateway/internal/device"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/mqtt"
)

// WebSocket channels device events are broadcast on.
const (
	ChannelStateChanged = "device.state_changed"
	ChannelSample       = "device.sample"
)

// defaultRecordTimeout bounds a single history insert.
const defaultRecordTimeout = 5 * time.Second

// Logger defines the logging interface used by the observers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func orNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// EventPayload is the JSON form of a device event on MQTT and WebSocket.
type EventPayload struct {
	ID         string         `json:"id"`
	Kind       device.Kind    `json:"kind"`
	DeviceID   int            `json:"device_id"`
	Operation  device.Op      `json:"operation"`
	State      map[string]any `json:"state"`
	DurationMS int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewEventPayload converts ev.
func NewEventPayload(ev device.Event) EventPayload {
	state := map[string]any{}
	if ev.Status != nil {
		state = ev.Status.Fields()
	}
	return EventPayload{
		ID:         ev.ID,
		Kind:       ev.Ref.Kind,
		DeviceID:   ev.Ref.ID,
		Operation:  ev.Op,
		State:      state,
		DurationMS: ev.Duration.Milliseconds(),
		Timestamp:  ev.At,
	}
}

// HistoryObserver records completed writes. Reads are not persisted: an
// altimeter polled every second would otherwise dominate the table.
type HistoryObserver struct {
	repo    HistoryRepository
	timeout time.Duration
	logger  Logger
}

// NewHistoryObserver returns an observer that writes to repo.
func NewHistoryObserver(repo HistoryRepository, logger Logger) *HistoryObserver {
	return &HistoryObserver{repo: repo, timeout: defaultRecordTimeout, logger: orNoop(logger)}
}

// DeviceEvent implements device.Observer.
func (o *HistoryObserver) DeviceEvent(ev device.Event) {
	if ev.Op != device.OpWrite {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if err := o.repo.Record(ctx, ev); err != nil {
		o.logger.Warn("failed to record device operation", "device", ev.Ref.String(), "error", err)
	}
}

// Publisher is the part of the MQTT client the publisher needs.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
}

// MQTTPublisher mirrors device state onto MQTT. Writes go to the retained
// state topic so late subscribers see the current setpoint; reads go to the
// sample topic.
type MQTTPublisher struct {
	pub    Publisher
	topics mqtt.Topics
	logger Logger
}

// NewMQTTPublisher returns an observer publishing through pub.
func NewMQTTPublisher(pub Publisher, topics mqtt.Topics, logger Logger) *MQTTPublisher {
	return &MQTTPublisher{pub: pub, topics: topics, logger: orNoop(logger)}
}

// DeviceEvent implements device.Observer.
func (p *MQTTPublisher) DeviceEvent(ev device.Event) {
	payload, err := json.Marshal(NewEventPayload(ev))
	if err != nil {
		p.logger.Error("failed to marshal device event", "device", ev.Ref.String(), "error", err)
		return
	}

	kind := string(ev.Ref.Kind)
	if ev.Op == device.OpWrite {
		err = p.pub.PublishRetained(p.topics.DeviceState(kind, ev.Ref.ID), payload)
	} else {
		err = p.pub.PublishEvent(p.topics.DeviceSample(kind, ev.Ref.ID), payload)
	}
	if err != nil {
		p.logger.Debug("device event not published", "device", ev.Ref.String(), "error", err)
	}
}

// OperationWriter is the part of the InfluxDB client the recorder needs.
type OperationWriter interface {
	WriteDeviceOperation(op influxdb.Operation)
}

// InfluxRecorder writes every device operation as an InfluxDB point.
type InfluxRecorder struct {
	w OperationWriter
}

// NewInfluxRecorder returns an observer writing through w.
func NewInfluxRecorder(w OperationWriter) *InfluxRecorder {
	return &InfluxRecorder{w: w}
}

// DeviceEvent implements device.Observer.
func (r *InfluxRecorder) DeviceEvent(ev device.Event) {
	value := ev.Value
	if reading, ok := ev.Status.(device.AltimeterReading); ok {
		value = reading.Altitude
	}

	r.w.WriteDeviceOperation(influxdb.Operation{
		Kind:     string(ev.Ref.Kind),
		DeviceID: ev.Ref.ID,
		Op:       string(ev.Op),
		Value:    value,
		Duration: ev.Duration,
		At:       ev.At,
	})
}

// Broadcaster is the part of the WebSocket hub the observer needs.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// HubObserver pushes device events to WebSocket subscribers.
type HubObserver struct {
	hub Broadcaster
}

// NewHubObserver returns an observer broadcasting on hub.
func NewHubObserver(hub Broadcaster) *HubObserver {
	return &HubObserver{hub: hub}
}

// DeviceEvent implements device.Observer.
func (o *HubObserver) DeviceEvent(ev device.Event) {
	channel := ChannelSample
	if ev.Op == device.OpWrite {
		channel = ChannelStateChanged
	}
	o.hub.Broadcast(channel, NewEventPayload(ev))
}

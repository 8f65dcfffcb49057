package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementDeviceOperations is the measurement device operations are
// written to.
const MeasurementDeviceOperations = "device_operations"

// Operation is one completed device read or write.
type Operation struct {
	Kind     string // motor, light, altimeter
	DeviceID int
	Op       string // read or write
	Value    int
	Duration time.Duration
	At       time.Time
}

// WriteDeviceOperation queues op for the next batch.
func (c *Client) WriteDeviceOperation(op Operation) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewOperationPoint(op))
	c.queued.Add(1)
}

// NewOperationPoint builds the line-protocol point for op. A zero At is
// replaced with the current time.
func NewOperationPoint(op Operation) *write.Point {
	at := op.At
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(
		MeasurementDeviceOperations,
		map[string]string{
			"device_kind": op.Kind,
			"device_id":   strconv.Itoa(op.DeviceID),
			"operation":   op.Op,
		},
		map[string]interface{}{
			"value":       int64(op.Value),
			"duration_ms": float64(op.Duration.Microseconds()) / 1000,
		},
		at,
	)
}

// WritePoint writes a custom point timestamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
	c.queued.Add(1)
}

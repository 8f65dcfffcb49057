package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/drone-gateway/internal/device"
	"github.com/nerrad567/drone-gateway/internal/dispatch"
)

func TestRecorder_Worker(t *testing.T) {
	r := NewRecorder()

	r.Queued(3)
	if got := testutil.ToFloat64(workersQueued); got != 3 {
		t.Errorf("queued = %v, want 3", got)
	}

	r.Started(2, 5*time.Millisecond)
	if got := testutil.ToFloat64(workersActive); got != 2 {
		t.Errorf("active = %v, want 2", got)
	}

	before := testutil.ToFloat64(operationFailures)
	r.Finished(1, time.Millisecond, errors.New("stalled"))
	r.Finished(0, time.Millisecond, nil)
	if got := testutil.ToFloat64(operationFailures) - before; got != 1 {
		t.Errorf("failures delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(workersActive); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
}

func TestRecorder_Request(t *testing.T) {
	r := NewRecorder()

	c := requestsTotal.WithLabelValues("motors", "set", "400")
	before := testutil.ToFloat64(c)
	r.Request("motors", dispatch.ActionSet, http.StatusBadRequest, time.Millisecond)
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("requests_total delta = %v, want 1", got)
	}
}

func TestRecorder_DeviceEvent(t *testing.T) {
	r := NewRecorder()
	r.DeviceEvent(device.Event{Ref: device.Ref{Kind: device.KindLight, ID: 2}, Op: device.OpWrite, Duration: time.Second})

	if n := testutil.CollectAndCount(deviceOperationDuration); n == 0 {
		t.Error("no device duration series collected")
	}
}

func TestRegister_Once(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("no metric families registered")
	}
}

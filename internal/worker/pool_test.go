package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := New(size)
	if err != nil {
		t.Fatalf("New(%d) error = %v", size, err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestNew_InvalidSize(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := New(n); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("New(%d) error = %v, want ErrInvalidSize", n, err)
		}
	}
}

func TestPool_SubmitResult(t *testing.T) {
	p := newTestPool(t, 2)

	fut, err := p.Submit(func() (any, error) { return 42, nil }, nil)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	v, err := fut.Result()
	if err != nil || v != 42 {
		t.Errorf("Result() = %v, %v; want 42, nil", v, err)
	}

	wantErr := errors.New("device fault")
	fut, _ = p.Submit(func() (any, error) { return nil, wantErr }, nil)
	if _, err := fut.Result(); !errors.Is(err, wantErr) {
		t.Errorf("Result() error = %v, want %v", err, wantErr)
	}
}

func TestPool_ThenRunsAfterResolve(t *testing.T) {
	p := newTestPool(t, 1)

	got := make(chan any, 1)
	_, err := p.Submit(func() (any, error) { return "ok", nil }, func(f *Future) {
		select {
		case <-f.Done():
		default:
			t.Error("then called before future resolved")
		}
		v, _ := f.Result()
		got <- v
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case v := <-got:
		if v != "ok" {
			t.Errorf("then saw %v, want ok", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("then was never called")
	}
}

func TestPool_BoundedConcurrency(t *testing.T) {
	const size = 3
	p := newTestPool(t, size)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		_, err := p.Submit(func() (any, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		}, func(*Future) { wg.Done() })
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	wg.Wait()

	if peak.Load() > size {
		t.Errorf("peak concurrent ops = %d, want <= %d", peak.Load(), size)
	}
	if s := p.Stats(); s.PeakActive > size || s.Completed != 20 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestPool_QueuesInArrivalOrder(t *testing.T) {
	p := newTestPool(t, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	p.Submit(func() (any, error) { close(started); <-release; return nil, nil }, nil) //nolint:errcheck
	<-started

	var mu sync.Mutex
	var order []int
	futs := make([]*Future, 0, 10)
	for i := range 10 {
		f, err := p.Submit(func() (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		}, nil)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		futs = append(futs, f)
	}

	if q := p.Stats().Queued; q != 10 {
		t.Errorf("Stats().Queued = %d, want 10", q)
	}
	close(release)
	for _, f := range futs {
		f.Result() //nolint:errcheck
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("execution order = %v, want ascending", order)
		}
	}
}

func TestPool_PanicRecovered(t *testing.T) {
	p := newTestPool(t, 1)

	fut, _ := p.Submit(func() (any, error) { panic("sensor on fire") }, nil)
	if _, err := fut.Result(); !errors.Is(err, ErrOperationPanicked) {
		t.Fatalf("Result() error = %v, want ErrOperationPanicked", err)
	}

	// The worker must survive the panic.
	fut, _ = p.Submit(func() (any, error) { return 1, nil }, nil)
	if v, err := fut.Result(); err != nil || v != 1 {
		t.Errorf("Result() after panic = %v, %v", v, err)
	}
}

func TestPool_CloseDrainsQueue(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var done atomic.Int32
	for range 5 {
		p.Submit(func() (any, error) { //nolint:errcheck
			time.Sleep(time.Millisecond)
			done.Add(1)
			return nil, nil
		}, nil)
	}
	p.Close()

	if n := done.Load(); n != 5 {
		t.Errorf("completed %d operations before Close returned, want 5", n)
	}
	if _, err := p.Submit(func() (any, error) { return nil, nil }, nil); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrPoolClosed", err)
	}
	p.Close()
}

func TestFuture_AwaitContext(t *testing.T) {
	p := newTestPool(t, 1)

	release := make(chan struct{})
	fut, _ := p.Submit(func() (any, error) { <-release; return "late", nil }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := fut.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Await() error = %v, want DeadlineExceeded", err)
	}

	// The operation still completes after the waiter gave up.
	close(release)
	if v, err := fut.Result(); err != nil || v != "late" {
		t.Errorf("Result() = %v, %v", v, err)
	}
	if fut.Duration() <= 0 {
		t.Error("Duration() not recorded")
	}
}

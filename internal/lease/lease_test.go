package lease

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeService struct {
	starts     atomic.Int32
	stops      atomic.Int32
	readyAfter int32
	probes     atomic.Int32
	startErr   error
}

func (f *fakeService) Start(context.Context) error { f.starts.Add(1); return f.startErr }
func (f *fakeService) Stop(context.Context) error  { f.stops.Add(1); return nil }
func (f *fakeService) Ready(context.Context) bool {
	return f.probes.Add(1) > f.readyAfter
}

func newTestController(svc Service) *Controller {
	c := NewController(svc)
	c.poll = 5 * time.Millisecond
	return c
}

func TestStartIsIdempotent(t *testing.T) {
	svc := &fakeService{}
	c := newTestController(svc)

	for i := 0; i < 3; i++ {
		if err := c.RequestStart(context.Background()); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}

	if got := svc.starts.Load(); got != 1 {
		t.Errorf("start commands = %d, want 1", got)
	}
	if c.State() != StateStarting {
		t.Errorf("state = %v, want starting", c.State())
	}
}

func TestStartFailureResetsState(t *testing.T) {
	svc := &fakeService{startErr: errors.New("no such container")}
	c := newTestController(svc)

	if err := c.RequestStart(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if c.State() != StateStopped {
		t.Errorf("state after failed start = %v, want stopped", c.State())
	}

	// A retry should issue the command again.
	svc.startErr = nil
	if err := c.RequestStart(context.Background()); err != nil {
		t.Fatalf("retry start: %v", err)
	}
	if got := svc.starts.Load(); got != 2 {
		t.Errorf("start commands = %d, want 2", got)
	}
}

func TestStopWhenAlreadyStoppedIsNoop(t *testing.T) {
	svc := &fakeService{}
	c := newTestController(svc)

	if err := c.RequestStop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := svc.stops.Load(); got != 0 {
		t.Errorf("stop commands = %d, want 0", got)
	}
}

func TestAwaitReadyPollsUntilServing(t *testing.T) {
	svc := &fakeService{readyAfter: 3}
	c := newTestController(svc)

	if err := c.RequestStart(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.AwaitReady(context.Background(), time.Second); err != nil {
		t.Fatalf("await: %v", err)
	}

	if c.State() != StateReady {
		t.Errorf("state = %v, want ready", c.State())
	}
	if got := svc.probes.Load(); got != 4 {
		t.Errorf("probes = %d, want 4", got)
	}
}

func TestAwaitReadyTimesOut(t *testing.T) {
	svc := &fakeService{readyAfter: 1 << 30}
	c := newTestController(svc)

	if err := c.AwaitReady(context.Background(), 30*time.Millisecond); err == nil {
		t.Fatal("expected timeout error")
	}
	if c.State() == StateReady {
		t.Error("state should not be ready after timeout")
	}
}

func TestFullCycle(t *testing.T) {
	svc := &fakeService{}
	c := newTestController(svc)

	if err := c.RequestStart(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.AwaitReady(context.Background(), time.Second); err != nil {
		t.Fatalf("await: %v", err)
	}
	if err := c.RequestStop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if c.State() != StateStopped {
		t.Errorf("state = %v, want stopped", c.State())
	}
	if svc.starts.Load() != 1 || svc.stops.Load() != 1 {
		t.Errorf("commands = %d starts, %d stops, want 1/1", svc.starts.Load(), svc.stops.Load())
	}
}

func TestStateStrings(t *testing.T) {
	want := map[State]string{
		StateStopped:  "stopped",
		StateStarting: "starting",
		StateReady:    "ready",
		StateStopping: "stopping",
	}
	for s, str := range want {
		if s.String() != str {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), str)
		}
	}
}

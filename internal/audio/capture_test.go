package audio

import (
	"testing"
)

func TestOutputBackpressure(t *testing.T) {
	// Mirrors the non-blocking send in the stream loop: a full channel
	// drops instead of stalling the device callback.
	c := &Capturer{outCh: make(chan []float32, 4)}

	for i := 0; i < 4; i++ {
		select {
		case c.outCh <- []float32{0}:
		default:
			t.Fatalf("channel blocked at chunk %d, expected buffer of 4", i)
		}
	}

	select {
	case c.outCh <- []float32{0}:
		t.Error("full channel should not accept another chunk")
	default:
	}
}

func TestStopWithoutStart(t *testing.T) {
	c := &Capturer{outCh: make(chan []float32, 1)}
	c.Stop() // must be a no-op, not a panic
	c.Stop()
}

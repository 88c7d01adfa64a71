// Package audio captures microphone input for the mic client, with
// backpressure on the output channel.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Capturer reads mono float32 frames from the default input device.
type Capturer struct {
	outCh        chan []float32
	sampleRate   int
	framesPerBuf int

	mu      sync.Mutex
	stream  *portaudio.Stream
	cancel  context.CancelFunc
	running bool
}

// NewCapturer initializes the audio host. framesPerBuf controls the chunk
// size sent downstream.
func NewCapturer(sampleRate, framesPerBuf, bufferChunks int) (*Capturer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio init: %w", err)
	}
	return &Capturer{
		outCh:        make(chan []float32, bufferChunks),
		sampleRate:   sampleRate,
		framesPerBuf: framesPerBuf,
	}, nil
}

// Output returns the channel for receiving audio chunks.
func (c *Capturer) Output() <-chan []float32 { return c.outCh }

// Start opens the default input device and begins streaming. Calling Start
// on a running capturer is a no-op.
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return fmt.Errorf("no input device: %w", err)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.sampleRate),
		FramesPerBuffer: c.framesPerBuf,
	}

	buf := make([]float32, c.framesPerBuf)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start stream: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.stream = stream
	c.cancel = cancel
	c.running = true
	slog.Info("capturing audio", "device", dev.Name, "sample_rate", c.sampleRate)

	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			default:
			}

			if err := stream.Read(); err != nil {
				slog.Debug("audio read error", "error", err)
				return
			}

			select {
			case c.outCh <- append([]float32(nil), buf...):
			default:
				slog.Debug("audio buffer full, dropping chunk")
			}
		}
	}()

	return nil
}

// Stop halts capture and releases the audio host.
func (c *Capturer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.cancel()
	_ = c.stream.Stop()
	_ = c.stream.Close()
	c.stream = nil
	c.running = false
	_ = portaudio.Terminate()
}

// Package session coordinates a camera, still captures and recordings for one
// owner. Every Coordinator owns its own device and recorder; nothing is shared
// between instances.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/acentior/camkit/internal/encoders"
	"github.com/acentior/camkit/internal/metrics"
	"github.com/acentior/camkit/pkg/camera"
	"github.com/acentior/camkit/pkg/capture"
	"github.com/acentior/camkit/pkg/media"
	"github.com/acentior/camkit/pkg/recorder"
)

var logger = log.New(log.Writer(), "[session]", log.LstdFlags)

type Option func(*Coordinator)

// WithErrorHandler registers fn to be called once per distinct failure.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Coordinator) { c.onError = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithEncoders replaces the default encoder service.
func WithEncoders(svc encoders.Service) Option {
	return func(c *Coordinator) { c.encoders = svc }
}

func WithRecorderOptions(opts ...recorder.Option) Option {
	return func(c *Coordinator) { c.recorderOpts = append(c.recorderOpts, opts...) }
}

// Coordinator is the control surface of the pipeline.
//
// A device failure puts the coordinator in an error-held state: Err reports
// the failure and Capture and StartRecording refuse to run until StartCamera
// succeeds again.
type Coordinator struct {
	device       *camera.Session
	rec          *recorder.Recorder
	encoders     encoders.Service
	recorderOpts []recorder.Option
	metrics      *metrics.Metrics
	onError      func(error)

	mu       sync.Mutex
	err      error
	reported error
	disposed bool
}

func New(acquirer media.Acquirer, opts ...Option) *Coordinator {
	c := &Coordinator{
		device:   camera.NewSession(acquirer),
		encoders: &encoders.EncoderService{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rec = recorder.New(c.encoders, c.recorderOpts...)
	c.device.OnEnded(c.deviceEnded)
	return c
}

// StartCamera opens the camera with constraints. Calling it again with equal
// constraints returns the open stream without touching the device.
func (c *Coordinator) StartCamera(ctx context.Context, constraints media.Constraints) (media.Stream, error) {
	if c.isDisposed() {
		return nil, media.ErrDisposed
	}
	prev := c.device.Stream()
	stream, err := c.device.Start(ctx, constraints)
	if err != nil {
		c.device.Stop(nil)
		c.metrics.DeviceStarted(err)
		c.hold(err)
		return nil, err
	}
	if c.isDisposed() {
		// Dispose ran while the device was being acquired
		c.device.Stop(stream)
		return nil, media.ErrDisposed
	}
	if stream != prev {
		c.metrics.DeviceStarted(nil)
	}

	c.mu.Lock()
	c.err = nil
	c.reported = nil
	c.mu.Unlock()
	return stream, nil
}

// StopCamera stops stream, or the current stream when nil.
func (c *Coordinator) StopCamera(stream media.Stream) {
	c.device.Stop(stream)
}

// Stream returns the live stream, nil when the camera is off.
func (c *Coordinator) Stream() media.Stream {
	return c.device.Stream()
}

// Capture takes a still from sink, or from the live stream when sink is nil.
func (c *Coordinator) Capture(ctx context.Context, sink media.Sink, settings capture.Settings) (*capture.Image, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	img, err := capture.Capture(ctx, c.source(sink), settings)
	c.metrics.Captured(err)
	c.settle(err)
	return img, err
}

// StartRecording records sink, or the live stream when sink is nil. A
// recording already running is discarded.
func (c *Coordinator) StartRecording(ctx context.Context, sink media.Sink, settings recorder.Settings) (*recorder.Recorder, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	onChunk := settings.OnChunk
	settings.OnChunk = func(chunk recorder.Chunk) {
		c.metrics.Chunk(len(chunk.Data))
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	if err := c.rec.Start(ctx, c.source(sink), settings); err != nil {
		c.settle(err)
		return nil, err
	}
	c.settle(nil)
	return c.rec, nil
}

// StopRecording finalizes the running recording.
func (c *Coordinator) StopRecording() (*recorder.Clip, error) {
	if c.isDisposed() {
		return nil, media.ErrDisposed
	}
	clip, err := c.rec.Stop()
	if !errors.Is(err, media.ErrNotRecording) {
		c.metrics.Recorded(err)
	}
	c.settle(err)
	return clip, err
}

// RecordedClip returns the clip of the last stopped recording.
func (c *Coordinator) RecordedClip() (*recorder.Clip, error) {
	return c.rec.Clip()
}

func (c *Coordinator) Recorder() *recorder.Recorder {
	return c.rec
}

// Err returns the held device error, if any.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Dispose discards any recording in progress and stops the camera. It may be
// called any number of times, including before the camera was started.
func (c *Coordinator) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.mu.Unlock()

	c.rec.Cancel()
	c.device.Stop(nil)
	logger.Printf("disposed")
}

func (c *Coordinator) source(sink media.Sink) media.Source {
	if sink != nil {
		return media.Source{Sink: sink}
	}
	return media.Source{Stream: c.device.Stream()}
}

func (c *Coordinator) isDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

func (c *Coordinator) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return media.ErrDisposed
	}
	if c.err != nil {
		return fmt.Errorf("camera unavailable: %w", c.err)
	}
	return nil
}

func (c *Coordinator) deviceEnded(_ media.Stream, err error) {
	if c.isDisposed() {
		return
	}
	c.metrics.DeviceFault()
	c.hold(fmt.Errorf("%w: %v", media.ErrDeviceLost, err))
}

// hold enters the error-held state.
func (c *Coordinator) hold(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	logger.Printf("device error: %v", err)
	c.report(err)
}

// settle reports a failed operation, or re-arms reporting after a success.
func (c *Coordinator) settle(err error) {
	if err != nil {
		c.report(err)
		return
	}
	c.mu.Lock()
	c.reported = nil
	c.mu.Unlock()
}

func (c *Coordinator) report(err error) {
	c.mu.Lock()
	if c.onError == nil || err == c.reported {
		c.mu.Unlock()
		return
	}
	c.reported = err
	handler := c.onError
	c.mu.Unlock()
	handler(err)
}

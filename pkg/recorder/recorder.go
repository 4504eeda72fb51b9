// Package recorder records a live source into an encoded clip.
//
// A Recorder moves through Idle, Rendering, Recording, Stopping and Stopped.
// Frames reach the encoder through one of two bindings: BindSurface renders
// every frame onto a surface first (needed for mirroring and resizing) while
// BindDirect feeds the source frames to the encoder at their native size.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/acentior/camkit/internal/encoders"
	"github.com/acentior/camkit/pkg/media"
	"github.com/acentior/camkit/pkg/size"
	"github.com/acentior/camkit/pkg/surface"
	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

var logger *log.Logger

func init() {
	logger = log.New(log.Writer(), "[recorder]", log.LstdFlags)
}

// DefaultRenderInterval is the render loop cadence, one display refresh at 60Hz.
const DefaultRenderInterval = time.Second / 60

type State int

const (
	Idle State = iota
	Rendering
	Recording
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Rendering:
		return "rendering"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Binding int

const (
	BindDirect Binding = iota
	BindSurface
)

func (b Binding) String() string {
	if b == BindSurface {
		return "surface"
	}
	return "direct"
}

type Settings struct {
	Mirror bool
	Width  int
	Height int
	// FrameRate caps how often frames are handed to the encoder. 0 encodes
	// every rendered frame.
	FrameRate int
	Codec     encoders.VideoCodec
	// OnChunk is called for every chunk, in order. Chunks come from the
	// recording loop, except the encoder's tail which Stop emits on the
	// caller's goroutine after the loop has exited.
	OnChunk func(Chunk)
}

func (s Settings) binding() Binding {
	if s.Mirror || s.Width > 0 || s.Height > 0 {
		return BindSurface
	}
	return BindDirect
}

// Chunk is one piece of encoder output.
type Chunk struct {
	Seq       int
	Data      []byte
	Timestamp time.Time
}

// Clip is a finished recording.
type Clip struct {
	ID        string
	URL       string
	Bytes     []byte
	MIMEType  string
	Chunks    int
	Size      size.Size
	StartedAt time.Time
	StoppedAt time.Time
}

type Option func(*Recorder)

// WithRenderInterval overrides DefaultRenderInterval.
func WithRenderInterval(d time.Duration) Option {
	return func(r *Recorder) { r.renderInterval = d }
}

// WithDefaultCodec sets the codec used when Settings.Codec is NoCodec.
func WithDefaultCodec(c encoders.VideoCodec) Option {
	return func(r *Recorder) { r.defaultCodec = c }
}

// Recorder is a single recording session. Starting it again discards the
// recording in progress.
type Recorder struct {
	encoders       encoders.Service
	renderInterval time.Duration
	defaultCodec   encoders.VideoCodec

	// ops serializes Start, Stop and Cancel
	ops sync.Mutex

	mu      sync.Mutex
	state   State
	binding Binding
	current *run
	pending *pendingStart
	clip    *Clip
	clipErr error
}

func New(svc encoders.Service, opts ...Option) *Recorder {
	r := &Recorder{
		encoders:       svc,
		renderInterval: DefaultRenderInterval,
		defaultCodec:   encoders.H264Codec,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) Binding() Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.binding
}

func (r *Recorder) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Start begins recording src. A recording already in progress is cancelled
// first and its chunks are dropped. Start returns once the encoder is running.
func (r *Recorder) Start(ctx context.Context, src media.Source, settings Settings) error {
	if src.Empty() {
		return media.ErrNoSource
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := &pendingStart{cancel: cancel}
	r.mu.Lock()
	if r.pending != nil {
		r.pending.cancel()
	}
	r.pending = p
	r.mu.Unlock()

	r.ops.Lock()
	defer r.ops.Unlock()
	defer func() {
		r.mu.Lock()
		if r.pending == p {
			r.pending = nil
		}
		r.mu.Unlock()
	}()

	r.discard()
	r.mu.Lock()
	r.state = Idle
	r.clip, r.clipErr = nil, nil
	r.mu.Unlock()

	sink, release, err := src.Acquire()
	if err != nil {
		release()
		return err
	}
	if err := media.WaitReady(ctx, sink); err != nil {
		release()
		return err
	}
	target, err := size.Resolve(sink.Dimensions(), settings.Width, settings.Height)
	if err != nil {
		release()
		if errors.Is(err, size.ErrNoNativeSize) {
			return media.ErrNotReady
		}
		return err
	}

	codec := settings.Codec
	if codec == encoders.NoCodec {
		codec = r.defaultCodec
	}
	rn := &run{
		id:        uuid.NewString(),
		sink:      sink,
		release:   release,
		target:    target,
		onChunk:   settings.OnChunk,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	if settings.FrameRate > 0 {
		rn.frameInterval = time.Second / time.Duration(settings.FrameRate)
	}
	binding := settings.binding()
	loopCtx, stopLoop := context.WithCancel(context.Background())
	rn.cancel = stopLoop

	r.mu.Lock()
	r.state = Rendering
	r.binding = binding
	r.current = rn
	r.mu.Unlock()

	if binding == BindSurface {
		rn.surface = surface.New(target, settings.Mirror)
		rn.started = true
		go rn.renderLoop(loopCtx, r.renderInterval)
	}

	enc, err := r.encoders.NewEncoder(codec, target, settings.FrameRate)
	if err != nil {
		r.discard()
		return fmt.Errorf("starting encoder: %w", err)
	}
	encSize, err := enc.VideoSize()
	if err != nil {
		enc.Close()
		r.discard()
		return fmt.Errorf("starting encoder: %w", err)
	}
	rn.attach(enc, encSize)

	if binding == BindDirect {
		interval := rn.frameInterval
		if interval == 0 {
			interval = r.renderInterval
		}
		rn.started = true
		go rn.directLoop(loopCtx, interval)
	}
	r.setState(Recording)
	logger.Printf("recording %s started: %s binding, %s, codec %d", rn.id, binding, target.String(), codec)
	return nil
}

// Stop finalizes the recording and returns the clip. The render loop and
// source are released before the chunks are assembled.
func (r *Recorder) Stop() (*Clip, error) {
	r.ops.Lock()
	defer r.ops.Unlock()

	r.mu.Lock()
	rn := r.current
	if rn == nil || r.state != Recording {
		r.mu.Unlock()
		return nil, media.ErrNotRecording
	}
	r.state = Stopping
	r.mu.Unlock()

	rn.shutdown()
	enc := rn.encoder()
	tail, err := enc.Finish()
	if err != nil {
		rn.fail(err)
	} else if len(tail) > 0 {
		rn.emit(tail, time.Now())
	}
	if err := enc.Close(); err != nil {
		logger.Printf("closing encoder: %v", err)
	}

	clip, clipErr := rn.assemble(enc.MIMEType())

	r.mu.Lock()
	r.state = Stopped
	r.current = nil
	r.clip, r.clipErr = clip, clipErr
	r.mu.Unlock()

	if clipErr != nil {
		logger.Printf("recording %s stopped without data: %v", rn.id, clipErr)
	} else {
		logger.Printf("recording %s stopped: %d chunks, %d bytes", rn.id, clip.Chunks, len(clip.Bytes))
	}
	return clip, clipErr
}

// Clip returns the clip of a stopped recording without finalizing again.
func (r *Recorder) Clip() (*Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Stopped {
		return nil, media.ErrNotRecording
	}
	return r.clip, r.clipErr
}

// Cancel aborts a pending Start and discards the recording in progress
// without assembling a clip. It is a no-op when nothing is recording.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	if r.pending != nil {
		r.pending.cancel()
	}
	r.mu.Unlock()

	r.ops.Lock()
	defer r.ops.Unlock()
	r.discard()
}

// discard tears down the current run. Callers hold ops.
func (r *Recorder) discard() {
	r.mu.Lock()
	rn := r.current
	r.current = nil
	if rn != nil {
		r.state = Idle
	}
	r.mu.Unlock()
	if rn == nil {
		return
	}

	rn.shutdown()
	if enc := rn.encoder(); enc != nil {
		if err := enc.Close(); err != nil {
			logger.Printf("closing encoder: %v", err)
		}
	}
	logger.Printf("recording %s discarded", rn.id)
}

type pendingStart struct {
	cancel context.CancelFunc
}

// run is the state of one recording from Start to Stop.
type run struct {
	id            string
	sink          media.Sink
	release       func()
	target        size.Size
	surface       *surface.Surface
	frameInterval time.Duration
	onChunk       func(Chunk)
	startedAt     time.Time

	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
	shutOnce sync.Once

	mu      sync.Mutex
	enc     encoders.Encoder
	encSize size.Size
	chunks  []Chunk
	err     error
}

func (rn *run) attach(enc encoders.Encoder, encSize size.Size) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.enc = enc
	rn.encSize = encSize
}

func (rn *run) encoder() encoders.Encoder {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.enc
}

// renderLoop draws every frame onto the surface and hands it to the encoder
// once one is attached, at most once per frameInterval.
func (rn *run) renderLoop(ctx context.Context, interval time.Duration) {
	defer close(rn.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastEncode time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		frame, err := rn.sink.Frame()
		if err != nil {
			rn.fail(err)
			return
		}
		pixels := rn.surface.Render(frame)

		rn.mu.Lock()
		enc, encSize := rn.enc, rn.encSize
		rn.mu.Unlock()
		if enc == nil {
			continue
		}
		now := time.Now()
		if rn.frameInterval > 0 && !lastEncode.IsZero() && now.Sub(lastEncode) < rn.frameInterval {
			continue
		}
		lastEncode = now
		if !rn.encode(enc, fit(pixels, encSize), now) {
			return
		}
	}
}

// directLoop feeds source frames straight to the encoder.
func (rn *run) directLoop(ctx context.Context, interval time.Duration) {
	defer close(rn.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	enc := rn.encoder()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			frame, err := rn.sink.Frame()
			if err != nil {
				rn.fail(err)
				return
			}
			if !rn.encode(enc, fit(toRGBA(frame), rn.encSize), now) {
				return
			}
		}
	}
}

func (rn *run) encode(enc encoders.Encoder, frame *image.RGBA, at time.Time) bool {
	payload, err := enc.Encode(frame)
	if err != nil {
		rn.fail(err)
		return false
	}
	if len(payload) > 0 {
		rn.emit(payload, at)
	}
	return true
}

func (rn *run) emit(data []byte, at time.Time) {
	rn.mu.Lock()
	chunk := Chunk{Seq: len(rn.chunks), Data: data, Timestamp: at}
	rn.chunks = append(rn.chunks, chunk)
	cb := rn.onChunk
	rn.mu.Unlock()
	if cb != nil {
		cb(chunk)
	}
}

func (rn *run) fail(err error) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.err == nil {
		rn.err = err
		logger.Printf("recording %s: %v", rn.id, err)
	}
}

// shutdown stops the loop and releases the surface and source. It does not
// touch the encoder.
func (rn *run) shutdown() {
	rn.shutOnce.Do(func() {
		rn.cancel()
		if rn.started {
			<-rn.done
		}
		if rn.surface != nil {
			rn.surface.Release()
		}
		rn.release()
	})
}

func (rn *run) assemble(mimeType string) (*Clip, error) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if len(rn.chunks) == 0 {
		if rn.err != nil {
			return nil, fmt.Errorf("%w: %v", media.ErrEncodingFailed, rn.err)
		}
		return nil, media.ErrEncodingFailed
	}
	parts := make([][]byte, len(rn.chunks))
	for i, c := range rn.chunks {
		parts[i] = c.Data
	}
	data := bytes.Join(parts, nil)
	return &Clip{
		ID:        rn.id,
		URL:       media.DataURL(mimeType, data),
		Bytes:     data,
		MIMEType:  mimeType,
		Chunks:    len(rn.chunks),
		Size:      rn.encSize,
		StartedAt: rn.startedAt,
		StoppedAt: time.Now(),
	}, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	rgbaImg := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgbaImg, rgbaImg.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgbaImg
}

// fit scales img to the size the encoder expects.
func fit(img *image.RGBA, target size.Size) *image.RGBA {
	b := img.Bounds()
	if target.Empty() || (b.Dx() == target.Width && b.Dy() == target.Height) {
		return img
	}
	return toRGBA(resize.Resize(uint(target.Width), uint(target.Height), img, resize.Lanczos3))
}

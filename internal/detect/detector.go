package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Frame is one chunk of mono audio handed to the detector.
type Frame struct {
	// Samples are PCM samples in [-1, 1].
	Samples []float32

	// SampleRate is the capture rate in Hz.
	SampleRate int

	// At is the capture timestamp. A zero value uses the wall clock.
	At time.Time
}

// Detector runs the overlap state machine over a stream of frames.
//
// Callbacks are invoked from the goroutine that feeds the detector, never
// concurrently. A malformed frame is dropped (reported via OnError) and the
// stream carries on; a single bad frame must not cost the session its overlap
// signals.
type Detector struct {
	// OnSignal receives each emitted interruption candidate. Required.
	OnSignal func(Signal)

	// OnError receives the error for each dropped frame. Optional.
	OnError func(error)

	cfg Config
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	state   State
	stopped bool

	stopOnce sync.Once
}

// New creates a Detector with the given tuning. Zero config fields fall back
// to the package defaults.
func New(cfg Config, onSignal func(Signal), log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		OnSignal: onSignal,
		cfg:      cfg.withDefaults(),
		log:      log.With("component", "detect"),
		now:      time.Now,
	}
}

// ProcessFrame feeds one frame through the state machine. Frames arriving
// after Stop are dropped; a malformed frame is dropped without touching the
// state, and the next valid frame processes normally.
//
// Callbacks run under the detector's lock so that Stop, once returned,
// guarantees no further callback. Callbacks must therefore not call back
// into the detector.
func (d *Detector) ProcessFrame(f Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if err := validateFrame(f); err != nil {
		d.log.Warn("dropping unsupported audio frame", "error", err)
		if d.OnError != nil {
			d.OnError(err)
		}
		return
	}

	now := f.At
	if now.IsZero() {
		now = d.now()
	}

	var sig *Signal
	d.state, sig = Advance(d.state, RMS(f.Samples), now, d.cfg)

	if sig != nil && d.OnSignal != nil {
		d.log.Debug("overlap signal", "at", sig.At, "confidence", sig.Confidence)
		d.OnSignal(*sig)
	}
}

// Run consumes frames until the channel closes, ctx is cancelled, or Stop is
// called.
func (d *Detector) Run(ctx context.Context, frames <-chan Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			d.ProcessFrame(f)
		}
	}
}

// Stop turns the detector off. It is idempotent; after the first call no
// further frame produces a callback.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()
	})
}

// validateFrame rejects frames the RMS pipeline cannot interpret.
func validateFrame(f Frame) error {
	if len(f.Samples) == 0 {
		return fmt.Errorf("detect: empty frame")
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("detect: invalid sample rate %d", f.SampleRate)
	}
	return nil
}

// Package detect implements the speech-overlap detector.
//
// The detector watches the RMS energy of incoming audio frames and looks for
// the acoustic shape of an interruption: a sustained energy spike (two voices
// at once) followed by a collapse (one voice yielding). It is deliberately
// conservative; a signal means "worth a look", never an accusation, and the
// confidence grade tops out at medium.
package detect

import (
	"math"
	"time"

	"github.com/shinelabs/shine/pkg/event"
)

// Default tuning values.
const (
	// DefaultSpeechThreshold is the RMS level above which a frame counts as
	// speech.
	DefaultSpeechThreshold = 0.03

	// DefaultSpikeRatio scales the speech threshold to the overlap-spike
	// level.
	DefaultSpikeRatio = 1.8

	// DefaultMinSpikeDuration is how long a spike must sustain before its
	// collapse can emit a signal.
	DefaultMinSpikeDuration = 150 * time.Millisecond

	// DefaultEmitCooldown is the minimum gap between two emitted signals.
	DefaultEmitCooldown = 3 * time.Second
)

// Config tunes the detector. The zero value is replaced field-by-field with
// the defaults above.
type Config struct {
	// SpeechThreshold is the RMS level above which a frame counts as speech.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// SpikeRatio scales SpeechThreshold to the overlap-spike level.
	SpikeRatio float64 `yaml:"spike_ratio"`

	// MinSpikeDuration is how long a spike must sustain before its collapse
	// can emit a signal.
	MinSpikeDuration time.Duration `yaml:"min_spike_duration"`

	// EmitCooldown is the minimum gap between two emitted signals.
	EmitCooldown time.Duration `yaml:"emit_cooldown"`
}

// withDefaults returns cfg with zero fields replaced by the default tuning.
func (cfg Config) withDefaults() Config {
	if cfg.SpeechThreshold <= 0 {
		cfg.SpeechThreshold = DefaultSpeechThreshold
	}
	if cfg.SpikeRatio <= 0 {
		cfg.SpikeRatio = DefaultSpikeRatio
	}
	if cfg.MinSpikeDuration <= 0 {
		cfg.MinSpikeDuration = DefaultMinSpikeDuration
	}
	if cfg.EmitCooldown <= 0 {
		cfg.EmitCooldown = DefaultEmitCooldown
	}
	return cfg
}

// spikeLevel is the RMS level at which overlapping speech is assumed.
func (cfg Config) spikeLevel() float64 {
	return cfg.SpeechThreshold * cfg.SpikeRatio
}

// Signal is one detected interruption candidate.
type Signal struct {
	// At is when the energy collapse completed the overlap shape.
	At time.Time

	// Confidence is medium when the collapse was sharp (RMS fell below half
	// the speech threshold) and low otherwise.
	Confidence event.Confidence
}

// phase is the detector's position in the overlap shape.
type phase int

const (
	phaseIdle phase = iota
	phaseSpeaking
	phaseSpikeActive
)

// State is the detector state threaded through [Advance]. The zero value is
// the idle state.
type State struct {
	phase      phase
	spikeStart time.Time
	lastEmit   time.Time
}

// Advance feeds one RMS observation into the state machine and returns the
// next state, plus a Signal when this observation completed an overlap shape.
//
// A signal is emitted only when all of the following hold: the energy drops
// below the speech threshold out of an active spike, the spike lasted at
// least MinSpikeDuration, and the previous emission is at least EmitCooldown
// in the past. Everything else is a silent state change.
func Advance(s State, rms float64, now time.Time, cfg Config) (State, *Signal) {
	cfg = cfg.withDefaults()

	switch {
	case rms >= cfg.spikeLevel():
		if s.phase != phaseSpikeActive {
			s.phase = phaseSpikeActive
			s.spikeStart = now
		}
		return s, nil

	case rms >= cfg.SpeechThreshold:
		// A spike that sags back to normal speech level resolves without a
		// signal; the overlap shape requires a drop straight below the
		// threshold.
		s.phase = phaseSpeaking
		s.spikeStart = time.Time{}
		return s, nil

	default:
		wasSpike := s.phase == phaseSpikeActive
		spikeHeld := now.Sub(s.spikeStart) >= cfg.MinSpikeDuration
		cooledDown := s.lastEmit.IsZero() || now.Sub(s.lastEmit) >= cfg.EmitCooldown
		s.phase = phaseIdle

		if !wasSpike || !spikeHeld || !cooledDown {
			return s, nil
		}

		conf := event.ConfidenceLow
		if rms < cfg.SpeechThreshold/2 {
			conf = event.ConfidenceMedium
		}
		s.lastEmit = now
		return s, &Signal{At: now, Confidence: conf}
	}
}

// RMS computes the root-mean-square energy of a frame of samples in [-1, 1].
// An empty frame has zero energy.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

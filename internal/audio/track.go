package audio

import (
	"math"

	"github.com/Mouradif/aurio/internal/project"
)

// MaxOscillators bounds the per-note phase storage so NoteOn never
// allocates on the audio thread. Instruments with more oscillators render
// only the first MaxOscillators.
const MaxOscillators = 8

// TrackConfig is the renderable slice of a track: instrument, envelope and
// mix position. The engine publishes the full list as one atomically
// swappable snapshot, so values here are never mutated after creation.
type TrackConfig struct {
	ID         int
	Instrument project.Instrument
	ADSR       project.ADSR
	Volume     float64
	Pan        float64
}

// NewTrackConfig derives a runtime config from track data.
func NewTrackConfig(t *project.TrackData) TrackConfig {
	return TrackConfig{
		ID:         t.ID,
		Instrument: t.Instrument,
		ADSR:       t.ADSR,
		Volume:     t.Volume,
		Pan:        t.Pan,
	}
}

// NumOscillators returns the oscillator count clamped to MaxOscillators.
func (c *TrackConfig) NumOscillators() int {
	n := c.Instrument.NumOscillators()
	if n > MaxOscillators {
		return MaxOscillators
	}
	return n
}

// EnvelopePhase is the segment the envelope is currently in.
type EnvelopePhase uint8

const (
	PhaseAttack EnvelopePhase = iota
	PhaseDecay
	PhaseSustain
	PhaseRelease
)

// NotePlaybackState is the audio-thread-private state of one sounding
// pitch: envelope position and one phase accumulator per oscillator.
type NotePlaybackState struct {
	Velocity    uint8
	Phase       EnvelopePhase
	PhaseTime   float64
	Level       float64
	ReleaseFrom float64 // level captured when release began
	OscPhases   [MaxOscillators]float64
	OscCount    int
	SamplePos   float64 // sampler playhead, unused until sampler rendering lands
	active      bool
}

// PlaybackState is a dense 128-slot table keyed by MIDI pitch, one per
// track. Dense rather than a map so NoteOn/NoteOff are O(1) and the audio
// thread never allocates.
type PlaybackState struct {
	Notes [NumPitches]NotePlaybackState
}

// NoteOn occupies the pitch slot, restarting it if it already sounds.
func (s *PlaybackState) NoteOn(pitch, velocity uint8, oscCount int) {
	if pitch >= NumPitches {
		return
	}
	if oscCount > MaxOscillators {
		oscCount = MaxOscillators
	}
	s.Notes[pitch] = NotePlaybackState{
		Velocity: velocity,
		Phase:    PhaseAttack,
		OscCount: oscCount,
		active:   true,
	}
}

// NoteOff moves the pitch into release, capturing the current level so the
// release ramp starts from wherever the envelope actually is.
func (s *PlaybackState) NoteOff(pitch uint8) {
	if pitch >= NumPitches {
		return
	}
	n := &s.Notes[pitch]
	if !n.active || n.Phase == PhaseRelease {
		return
	}
	n.ReleaseFrom = n.Level
	n.Phase = PhaseRelease
	n.PhaseTime = 0
}

// StopAll clears every slot immediately, without release tails.
func (s *PlaybackState) StopAll() {
	for i := range s.Notes {
		s.Notes[i].active = false
	}
}

// ActiveCount reports how many pitches are sounding.
func (s *PlaybackState) ActiveCount() int {
	count := 0
	for i := range s.Notes {
		if s.Notes[i].active {
			count++
		}
	}
	return count
}

// IsActive reports whether the pitch slot is occupied.
func (s *PlaybackState) IsActive(pitch uint8) bool {
	return pitch < NumPitches && s.Notes[pitch].active
}

// RenderSample produces one mono sample for the track, summing every
// occupied pitch slot, and advances envelope and oscillator state by one
// sample. It never allocates and never blocks.
func (s *PlaybackState) RenderSample(cfg *TrackConfig, sampleRate float64) float64 {
	var output float64

	for pitch := range s.Notes {
		n := &s.Notes[pitch]
		if !n.active {
			continue
		}

		envelope := n.envelopeOutput(&cfg.ADSR)
		velocityScale := float64(n.Velocity) / 127.0

		if cfg.Instrument.MultiOsc != nil {
			oscs := cfg.Instrument.MultiOsc.Oscillators
			for i := 0; i < n.OscCount && i < len(oscs); i++ {
				osc := &oscs[i]
				freq := NoteFreq(TransposePitch(uint8(pitch), osc.Semitone))

				phase := n.OscPhases[i]
				var sample float64
				switch osc.Wave {
				case project.WaveSquare:
					if phase < 0.5 {
						sample = -1.0
					} else {
						sample = 1.0
					}
				case project.WaveSaw:
					sample = 2.0*phase - 1.0
				default:
					sample = math.Sin(phase * 2.0 * math.Pi)
				}

				output += sample * envelope * velocityScale * osc.Gain

				n.OscPhases[i] += freq / sampleRate
				if n.OscPhases[i] >= 1.0 {
					n.OscPhases[i] -= 1.0
				}
			}
		}
		// Sampler instruments contribute silence until sample playback
		// is implemented; the envelope still runs so slots free normally.

		if n.advanceEnvelope(&cfg.ADSR, sampleRate) {
			n.active = false
		}
	}

	return output
}

// envelopeOutput computes the envelope value for the current phase without
// advancing time. Attack ramps 0→1, decay 1→sustain, release ramps the
// captured entry level down to 0. Zero-length segments evaluate at their
// endpoint.
func (n *NotePlaybackState) envelopeOutput(adsr *project.ADSR) float64 {
	switch n.Phase {
	case PhaseAttack:
		if adsr.Attack == 0 {
			return 1.0
		}
		return math.Min(n.PhaseTime/adsr.Attack, 1.0)
	case PhaseDecay:
		progress := 1.0
		if adsr.Decay > 0 {
			progress = math.Min(n.PhaseTime/adsr.Decay, 1.0)
		}
		return 1.0 - (1.0-adsr.Sustain)*progress
	case PhaseSustain:
		return adsr.Sustain
	default: // PhaseRelease
		progress := 1.0
		if adsr.Release > 0 {
			progress = math.Min(n.PhaseTime/adsr.Release, 1.0)
		}
		return n.ReleaseFrom * (1.0 - progress)
	}
}

// advanceEnvelope moves the envelope forward one sample and handles phase
// boundary crossings. Returns true once release has fully elapsed and the
// slot should be vacated.
func (n *NotePlaybackState) advanceEnvelope(adsr *project.ADSR, sampleRate float64) bool {
	dt := 1.0 / sampleRate
	n.PhaseTime += dt

	switch n.Phase {
	case PhaseAttack:
		if n.PhaseTime >= adsr.Attack {
			n.Phase = PhaseDecay
			n.PhaseTime = 0
			n.Level = 1.0
		} else {
			n.Level = n.PhaseTime / adsr.Attack
		}
	case PhaseDecay:
		if n.PhaseTime >= adsr.Decay {
			n.Phase = PhaseSustain
			n.PhaseTime = 0
			n.Level = adsr.Sustain
		} else {
			n.Level = 1.0 - (1.0-adsr.Sustain)*(n.PhaseTime/adsr.Decay)
		}
	case PhaseSustain:
		n.Level = adsr.Sustain
	case PhaseRelease:
		if n.PhaseTime > adsr.Release {
			n.Level = 0
			return true
		}
		if adsr.Release > 0 {
			n.Level = n.ReleaseFrom * (1.0 - n.PhaseTime/adsr.Release)
		} else {
			n.Level = 0
		}
	}

	return false
}

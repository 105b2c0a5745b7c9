package project

// Wave selects the oscillator shape.
type Wave string

const (
	WaveSine   Wave = "sine"
	WaveSquare Wave = "square"
	WaveSaw    Wave = "saw"
)

// OscConfig describes one oscillator of a MultiOsc instrument. Semitone
// transposes the played pitch; gain scales this oscillator's contribution.
type OscConfig struct {
	Wave     Wave    `yaml:"wave"`
	Gain     float64 `yaml:"gain"`
	Semitone int     `yaml:"semitone"`
}

// MultiOsc sums a bank of oscillators per voice.
type MultiOsc struct {
	Oscillators []OscConfig `yaml:"oscillators"`
}

// Sampler plays a sample from the project library, pitched around
// RootPitch. Rendering is not implemented yet; sampler tracks are silent.
type Sampler struct {
	SampleID  string `yaml:"sample_id"`
	RootPitch uint8  `yaml:"root_pitch"`
}

// Instrument is a closed variant: exactly one of the fields is set.
type Instrument struct {
	MultiOsc *MultiOsc `yaml:"multi_osc,omitempty"`
	Sampler  *Sampler  `yaml:"sampler,omitempty"`
}

// NumOscillators returns the oscillator count, 0 for samplers.
func (in *Instrument) NumOscillators() int {
	if in.MultiOsc != nil {
		return len(in.MultiOsc.Oscillators)
	}
	return 0
}

// ADSR holds the envelope parameters. Attack, decay and release are in
// seconds; sustain is a level in 0..1.
type ADSR struct {
	Attack  float64 `yaml:"attack"`
	Decay   float64 `yaml:"decay"`
	Sustain float64 `yaml:"sustain"`
	Release float64 `yaml:"release"`
}

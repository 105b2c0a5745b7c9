package project

import "sort"

// Note is one note of a pattern, positioned in beats relative to the
// sequence start. Pitch and velocity follow MIDI conventions.
type Note struct {
	Pitch         uint8   `yaml:"pitch"`
	Velocity      uint8   `yaml:"velocity"`
	StartBeat     float64 `yaml:"start_beat"`
	DurationBeats float64 `yaml:"duration_beats"`
}

// EndBeat is the beat at which the note stops sounding.
func (n Note) EndBeat() float64 {
	return n.StartBeat + n.DurationBeats
}

// TimeSignature is beats-per-bar over the beat unit (4 = quarter note).
type TimeSignature struct {
	Num uint32 `yaml:"num"`
	Den uint32 `yaml:"den"`
}

// StaticPattern is a literal note list.
type StaticPattern struct {
	DurationBars  uint32        `yaml:"duration_bars"`
	TimeSignature TimeSignature `yaml:"time_signature"`
	Notes         []Note        `yaml:"notes"`
}

// GeneratedPattern carries a script that produces the notes on demand.
type GeneratedPattern struct {
	DurationBars  uint32        `yaml:"duration_bars"`
	TimeSignature TimeSignature `yaml:"time_signature"`
	Function      string        `yaml:"function"`
}

// Sequence is a closed variant: exactly one of the fields is set.
type Sequence struct {
	Static    *StaticPattern    `yaml:"static,omitempty"`
	Generated *GeneratedPattern `yaml:"generated,omitempty"`
}

// Clone deep-copies the sequence, including note storage.
func (s *Sequence) Clone() Sequence {
	switch {
	case s.Static != nil:
		st := *s.Static
		st.Notes = append([]Note(nil), st.Notes...)
		return Sequence{Static: &st}
	case s.Generated != nil:
		gen := *s.Generated
		return Sequence{Generated: &gen}
	}
	return Sequence{}
}

func (s *Sequence) shape() (bars uint32, sig TimeSignature) {
	switch {
	case s.Static != nil:
		return s.Static.DurationBars, s.Static.TimeSignature
	case s.Generated != nil:
		return s.Generated.DurationBars, s.Generated.TimeSignature
	}
	return 0, TimeSignature{Num: 4, Den: 4}
}

// DurationSamples converts the sequence length into whole samples at the
// given tempo. A beat is one quarter note, so a bar of num/den spans
// num·(4/den) beats.
func (s *Sequence) DurationSamples(bpm, sampleRate float64) uint64 {
	bars, sig := s.shape()
	if sig.Den == 0 || bpm <= 0 {
		return 0
	}

	quarterNotes := float64(sig.Num) * float64(bars) * (4.0 / float64(sig.Den))
	samplesPerQuarter := (60.0 / bpm) * sampleRate

	return uint64(quarterNotes * samplesPerQuarter)
}

// MergeOverlaps collapses same-pitch notes that overlap or touch into one
// note spanning their union, keeping the loudest velocity. The result is
// sorted by start beat, then pitch.
func MergeOverlaps(notes []Note) []Note {
	if len(notes) == 0 {
		return nil
	}

	byPitch := make(map[uint8][]Note)
	for _, n := range notes {
		byPitch[n.Pitch] = append(byPitch[n.Pitch], n)
	}

	result := make([]Note, 0, len(notes))

	for _, group := range byPitch {
		sort.Slice(group, func(i, j int) bool {
			return group[i].StartBeat < group[j].StartBeat
		})

		current := group[0]
		for _, n := range group[1:] {
			if n.StartBeat <= current.EndBeat() {
				if n.EndBeat() > current.EndBeat() {
					current.DurationBeats = n.EndBeat() - current.StartBeat
				}
				if n.Velocity > current.Velocity {
					current.Velocity = n.Velocity
				}
			} else {
				result = append(result, current)
				current = n
			}
		}
		result = append(result, current)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartBeat != result[j].StartBeat {
			return result[i].StartBeat < result[j].StartBeat
		}
		return result[i].Pitch < result[j].Pitch
	})

	return result
}

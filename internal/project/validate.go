package project

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTracks is returned for a project with an empty track list.
	ErrNoTracks = errors.New("project has no tracks")
)

// Validate checks the structural invariants the engine relies on: sane
// tempo and sample rate, one variant per instrument/sequence, initial
// nodes that exist, and edges whose endpoints exist.
func (p *Project) Validate() error {
	if p.BPM <= 0 {
		return fmt.Errorf("bpm must be positive, got %v", p.BPM)
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", p.SampleRate)
	}
	if len(p.Tracks) == 0 {
		return ErrNoTracks
	}

	seen := make(map[int]bool, len(p.Tracks))
	for i := range p.Tracks {
		t := &p.Tracks[i]
		if seen[t.ID] {
			return fmt.Errorf("duplicate track id %d", t.ID)
		}
		seen[t.ID] = true

		if err := t.validate(); err != nil {
			return fmt.Errorf("track %d (%s): %w", t.ID, t.Name, err)
		}
	}

	return nil
}

func (t *TrackData) validate() error {
	if (t.Instrument.MultiOsc == nil) == (t.Instrument.Sampler == nil) {
		return errors.New("instrument must be exactly one of multi_osc or sampler")
	}
	if t.ADSR.Sustain < 0 || t.ADSR.Sustain > 1 {
		return fmt.Errorf("sustain must be in 0..1, got %v", t.ADSR.Sustain)
	}
	if t.ADSR.Attack < 0 || t.ADSR.Decay < 0 || t.ADSR.Release < 0 {
		return errors.New("envelope times must be non-negative")
	}
	if t.Volume < 0 {
		return fmt.Errorf("volume must be non-negative, got %v", t.Volume)
	}
	if t.Pan < -1 || t.Pan > 1 {
		return fmt.Errorf("pan must be in -1..1, got %v", t.Pan)
	}

	if _, ok := t.Graph.Node(t.InitialNode); !ok {
		return fmt.Errorf("initial node %q not in graph", t.InitialNode)
	}

	ids := make(map[string]bool, len(t.Graph.Nodes))
	for i := range t.Graph.Nodes {
		n := &t.Graph.Nodes[i]
		if n.ID == "" {
			return errors.New("node with empty id")
		}
		if ids[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		ids[n.ID] = true

		if (n.Sequence.Static == nil) == (n.Sequence.Generated == nil) {
			return fmt.Errorf("node %q: sequence must be exactly one of static or generated", n.ID)
		}
		if n.Sequence.Static != nil {
			for _, note := range n.Sequence.Static.Notes {
				if note.Pitch > 127 {
					return fmt.Errorf("node %q: pitch %d out of range", n.ID, note.Pitch)
				}
				if note.Velocity > 127 {
					return fmt.Errorf("node %q: velocity %d out of range", n.ID, note.Velocity)
				}
				if note.StartBeat < 0 {
					return fmt.Errorf("node %q: negative start_beat %v", n.ID, note.StartBeat)
				}
				if note.DurationBeats <= 0 {
					return fmt.Errorf("node %q: duration_beats must be positive, got %v", n.ID, note.DurationBeats)
				}
			}
		}
	}

	for _, e := range t.Graph.Edges {
		if !ids[e.From] {
			return fmt.Errorf("edge %s->%s: unknown source node", e.From, e.To)
		}
		if !ids[e.To] {
			return fmt.Errorf("edge %s->%s: unknown target node", e.From, e.To)
		}
	}

	return nil
}

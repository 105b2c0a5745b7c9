// Package timing turns sequences into timestamped events and advances each
// track along its state graph as the clock passes sequence boundaries.
package timing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Mouradif/aurio/internal/events"
	"github.com/Mouradif/aurio/internal/project"
)

// Evaluator produces notes from a generated pattern's script source. The
// track and node identify the activation so scoped script variables
// resolve against the right context.
type Evaluator interface {
	EvaluatePattern(trackID int, nodeID, source string) ([]project.Note, error)
}

// ErrTopologyChanged is reported when a reload's node or edge structure
// differs from the live graph. Only pattern and instrument data hot-swap;
// structural edits need a full project load.
var ErrTopologyChanged = errors.New("graph topology changed; full project load required")

// EvalError marks a failed script evaluation. The expansion it came from
// was scheduled with an empty note list; playback continues.
type EvalError struct {
	TrackID int
	Err     error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("track %d: %v", e.TrackID, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// ResolveNotes materializes a sequence's notes and merges same-pitch
// overlaps. For generated sequences a nil evaluator yields an empty list
// and no error; a failing script yields an empty list alongside its error.
func ResolveNotes(seq *project.Sequence, trackID int, nodeID string, eval Evaluator) ([]project.Note, error) {
	switch {
	case seq.Static != nil:
		return project.MergeOverlaps(seq.Static.Notes), nil
	case seq.Generated != nil:
		if eval == nil {
			return nil, nil
		}
		notes, err := eval.EvaluatePattern(trackID, nodeID, seq.Generated.Function)
		if err != nil {
			return nil, err
		}
		return project.MergeOverlaps(notes), nil
	}
	return nil, nil
}

// ExpandSequence schedules one activation of a sequence starting at
// startSample: a NoteOn for every note beginning inside the sequence and a
// NoteOff for every note ending at or before its end, pushed in timestamp
// order.
//
// The push is all-or-nothing: if the queue cannot hold the whole
// expansion, nothing is pushed and events.ErrQueueFull is returned, so
// scheduling stays idempotent per (track, node, start sample). A script
// failure is reported as *EvalError after the (empty) expansion succeeds.
func ExpandSequence(seq *project.Sequence, trackID int, nodeID string, startSample uint64, bpm, sampleRate float64, q *events.Queue, eval Evaluator) error {
	notes, evalErr := ResolveNotes(seq, trackID, nodeID, eval)

	samplesPerBeat := (60.0 / bpm) * sampleRate
	sequenceEnd := startSample + seq.DurationSamples(bpm, sampleRate)

	scheduled := make([]events.ScheduledEvent, 0, len(notes)*2)

	for _, note := range notes {
		on := startSample + uint64(note.StartBeat*samplesPerBeat)
		if on < sequenceEnd {
			scheduled = append(scheduled, events.NoteOn(on, trackID, note.Pitch, note.Velocity))
		}

		off := startSample + uint64(note.EndBeat()*samplesPerBeat)
		if off <= sequenceEnd {
			scheduled = append(scheduled, events.NoteOff(off, trackID, note.Pitch))
		}
	}

	sort.SliceStable(scheduled, func(i, j int) bool {
		return scheduled[i].Timestamp < scheduled[j].Timestamp
	})

	if q.Free() < len(scheduled) {
		return events.ErrQueueFull
	}
	for _, ev := range scheduled {
		if err := q.Push(ev); err != nil {
			return err
		}
	}

	if evalErr != nil {
		return &EvalError{TrackID: trackID, Err: evalErr}
	}
	return nil
}

package timing

import (
	"errors"
	"testing"

	"github.com/Mouradif/aurio/internal/events"
	"github.com/Mouradif/aurio/internal/project"
)

type stubEval struct {
	notes []project.Note
	err   error
	calls int
}

func (s *stubEval) EvaluatePattern(int, string, string) ([]project.Note, error) {
	s.calls++
	return s.notes, s.err
}

func staticSeq(bars uint32, sig project.TimeSignature, notes ...project.Note) project.Sequence {
	return project.Sequence{Static: &project.StaticPattern{
		DurationBars:  bars,
		TimeSignature: sig,
		Notes:         notes,
	}}
}

func oneBeat(notes ...project.Note) project.Sequence {
	return staticSeq(1, project.TimeSignature{Num: 1, Den: 4}, notes...)
}

func drain(q *events.Queue) []events.ScheduledEvent {
	var out []events.ScheduledEvent
	for {
		ev, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func TestExpandSequenceBasic(t *testing.T) {
	// One note spanning the whole one-beat sequence at 60 bpm / 48 kHz:
	// on at 0, off exactly at the sequence end.
	q := events.NewQueue(64)
	seq := oneBeat(project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 1})

	if err := ExpandSequence(&seq, 0, "a", 0, 60, 48000, q, nil); err != nil {
		t.Fatalf("expand: %v", err)
	}

	got := drain(q)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(got), got)
	}

	on := got[0]
	if on.Event.Kind != events.KindNoteOn || on.Timestamp != 0 {
		t.Errorf("first event = %+v, want NoteOn@0", on)
	}
	if on.Event.Pitch != 60 || on.Event.Velocity != 100 {
		t.Errorf("note on carries %d/%d, want 60/100", on.Event.Pitch, on.Event.Velocity)
	}

	off := got[1]
	if off.Event.Kind != events.KindNoteOff || off.Timestamp != 48000 {
		t.Errorf("second event = %+v, want NoteOff@48000", off)
	}
}

func TestExpandSequenceBoundaryRules(t *testing.T) {
	// A note starting exactly at the sequence end is dropped; a note
	// whose off lands past the end keeps its on but loses its off.
	q := events.NewQueue(64)
	seq := oneBeat(
		project.Note{Pitch: 60, Velocity: 100, StartBeat: 1, DurationBeats: 1},   // on at end: dropped
		project.Note{Pitch: 62, Velocity: 100, StartBeat: 0.5, DurationBeats: 1}, // off past end: on only
	)

	if err := ExpandSequence(&seq, 3, "a", 0, 60, 48000, q, nil); err != nil {
		t.Fatalf("expand: %v", err)
	}

	got := drain(q)
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(got), got)
	}
	if got[0].Event.Kind != events.KindNoteOn || got[0].Event.Pitch != 62 || got[0].Timestamp != 24000 {
		t.Errorf("got %+v, want NoteOn(62)@24000", got[0])
	}
}

func TestExpandSequenceOffAtExactEndHonoured(t *testing.T) {
	q := events.NewQueue(64)
	seq := staticSeq(1, project.TimeSignature{Num: 4, Den: 4},
		project.Note{Pitch: 60, Velocity: 100, StartBeat: 3, DurationBeats: 1})

	if err := ExpandSequence(&seq, 0, "a", 1000, 120, 48000, q, nil); err != nil {
		t.Fatalf("expand: %v", err)
	}

	// At 120 bpm a beat is 24000 samples; the bar ends at 1000+96000.
	got := drain(q)
	if len(got) != 2 {
		t.Fatalf("expected on and off, got %+v", got)
	}
	if got[1].Timestamp != 1000+96000 {
		t.Errorf("off at %d, want %d", got[1].Timestamp, 1000+96000)
	}
}

func TestExpandSequenceOrdering(t *testing.T) {
	// Events must leave the producer in non-decreasing timestamp order
	// regardless of note declaration order.
	q := events.NewQueue(256)
	seq := staticSeq(1, project.TimeSignature{Num: 4, Den: 4},
		project.Note{Pitch: 72, Velocity: 90, StartBeat: 3, DurationBeats: 0.5},
		project.Note{Pitch: 60, Velocity: 90, StartBeat: 0, DurationBeats: 0.5},
		project.Note{Pitch: 67, Velocity: 90, StartBeat: 2, DurationBeats: 0.5},
		project.Note{Pitch: 64, Velocity: 90, StartBeat: 1, DurationBeats: 0.5},
	)

	if err := ExpandSequence(&seq, 0, "a", 0, 120, 44100, q, nil); err != nil {
		t.Fatalf("expand: %v", err)
	}

	got := drain(q)
	if len(got) != 8 {
		t.Fatalf("expected 8 events, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp < got[i-1].Timestamp {
			t.Errorf("event %d at %d precedes event %d at %d",
				i, got[i].Timestamp, i-1, got[i-1].Timestamp)
		}
	}
}

func TestExpandSequenceMergesOverlaps(t *testing.T) {
	// Two overlapping notes on the same pitch schedule as one on/off pair
	// spanning their union at the loudest velocity.
	q := events.NewQueue(64)
	seq := staticSeq(1, project.TimeSignature{Num: 4, Den: 4},
		project.Note{Pitch: 60, Velocity: 80, StartBeat: 0, DurationBeats: 2},
		project.Note{Pitch: 60, Velocity: 120, StartBeat: 1, DurationBeats: 2},
	)

	if err := ExpandSequence(&seq, 0, "a", 0, 60, 48000, q, nil); err != nil {
		t.Fatalf("expand: %v", err)
	}

	got := drain(q)
	if len(got) != 2 {
		t.Fatalf("expected 2 events after merge, got %d: %+v", len(got), got)
	}
	if got[0].Event.Velocity != 120 {
		t.Errorf("merged velocity = %d, want 120", got[0].Event.Velocity)
	}
	if got[0].Timestamp != 0 || got[1].Timestamp != 3*48000 {
		t.Errorf("merged span = %d..%d, want 0..%d", got[0].Timestamp, got[1].Timestamp, 3*48000)
	}
}

func TestExpandSequenceQueueFullIsAtomic(t *testing.T) {
	// The ring holds 4; two notes need 4 slots and fit, three need 6 and
	// must leave the queue untouched.
	q := events.NewQueue(4)
	fits := oneBeat(
		project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 0.25},
		project.Note{Pitch: 62, Velocity: 100, StartBeat: 0.5, DurationBeats: 0.25},
	)
	if err := ExpandSequence(&fits, 0, "a", 0, 60, 48000, q, nil); err != nil {
		t.Fatalf("expand that fits: %v", err)
	}
	drain(q)

	overflow := oneBeat(
		project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 0.1},
		project.Note{Pitch: 62, Velocity: 100, StartBeat: 0.2, DurationBeats: 0.1},
		project.Note{Pitch: 64, Velocity: 100, StartBeat: 0.4, DurationBeats: 0.1},
	)
	err := ExpandSequence(&overflow, 0, "a", 0, 60, 48000, q, nil)
	if !errors.Is(err, events.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("failed expansion left %d events behind", q.Len())
	}
}

func TestExpandGeneratedSequence(t *testing.T) {
	eval := &stubEval{notes: []project.Note{
		{Pitch: 64, Velocity: 90, StartBeat: 0, DurationBeats: 0.5},
	}}

	q := events.NewQueue(64)
	seq := project.Sequence{Generated: &project.GeneratedPattern{
		DurationBars:  1,
		TimeSignature: project.TimeSignature{Num: 1, Den: 4},
		Function:      "return make_notes()",
	}}

	if err := ExpandSequence(&seq, 0, "a", 0, 60, 48000, q, eval); err != nil {
		t.Fatalf("expand: %v", err)
	}
	if eval.calls != 1 {
		t.Errorf("evaluator called %d times, want 1", eval.calls)
	}

	got := drain(q)
	if len(got) != 2 || got[0].Event.Pitch != 64 {
		t.Errorf("generated expansion = %+v", got)
	}
}

func TestExpandGeneratedFailureYieldsEmptyAndError(t *testing.T) {
	eval := &stubEval{err: errors.New("script blew up")}

	q := events.NewQueue(64)
	seq := project.Sequence{Generated: &project.GeneratedPattern{
		DurationBars:  1,
		TimeSignature: project.TimeSignature{Num: 1, Den: 4},
		Function:      "boom()",
	}}

	err := ExpandSequence(&seq, 7, "a", 0, 60, 48000, q, eval)

	var evalErr *EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvalError, got %v", err)
	}
	if evalErr.TrackID != 7 {
		t.Errorf("EvalError track = %d, want 7", evalErr.TrackID)
	}
	if q.Len() != 0 {
		t.Errorf("failing script scheduled %d events, want 0", q.Len())
	}
}

func TestExpandGeneratedWithoutEvaluator(t *testing.T) {
	q := events.NewQueue(64)
	seq := project.Sequence{Generated: &project.GeneratedPattern{
		DurationBars:  1,
		TimeSignature: project.TimeSignature{Num: 1, Den: 4},
		Function:      "return {}",
	}}

	if err := ExpandSequence(&seq, 0, "a", 0, 60, 48000, q, nil); err != nil {
		t.Fatalf("nil evaluator should schedule silence without error, got %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("expected no events, got %d", q.Len())
	}
}

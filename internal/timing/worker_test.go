package timing

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/Mouradif/aurio/internal/events"
	"github.com/Mouradif/aurio/internal/project"
)

func loopTrack(id int, seq project.Sequence) project.TrackData {
	return project.TrackData{
		ID:          id,
		Name:        "t",
		InitialNode: "a",
		Graph: project.StateGraph{
			Nodes: []project.Node{{ID: "a", Sequence: seq}},
			Edges: []project.Edge{{From: "a", To: "a", Timing: project.TimingImmediate}},
		},
	}
}

func twoNodeTrack(id int, seqA, seqB project.Sequence) project.TrackData {
	return project.TrackData{
		ID:          id,
		Name:        "t",
		InitialNode: "a",
		Graph: project.StateGraph{
			Nodes: []project.Node{
				{ID: "a", Sequence: seqA},
				{ID: "b", Sequence: seqB},
			},
			Edges: []project.Edge{
				{From: "a", To: "b", Timing: project.TimingImmediate},
				{From: "b", To: "a", Timing: project.TimingImmediate},
			},
		},
	}
}

func newTestWorker(t *testing.T, queue *events.Queue, clock *atomic.Uint64, eval Evaluator, onError func(error), tracks ...project.TrackData) *Worker {
	t.Helper()
	return NewWorker(WorkerConfig{
		Queue:      queue,
		Clock:      clock,
		BPM:        60,
		SampleRate: 48000,
		Tracks:     tracks,
		Evaluator:  eval,
		OnError:    onError,
	})
}

func kinds(evs []events.ScheduledEvent) []events.Kind {
	out := make([]events.Kind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Event.Kind
	}
	return out
}

func TestSingleLoopingSequence(t *testing.T) {
	// One track looping a one-beat note at 60 bpm / 48 kHz. After the
	// first boundary the queue holds the first pass, the boundary flush
	// and the second pass.
	queue := events.NewQueue(events.DefaultQueueCapacity)
	var clock atomic.Uint64

	seq := oneBeat(project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 1})
	w := newTestWorker(t, queue, &clock, nil, nil, loopTrack(0, seq))
	w.Prime()

	clock.Store(48000)
	w.step(clock.Load())

	got := drain(queue)
	want := []struct {
		kind events.Kind
		ts   uint64
	}{
		{events.KindNoteOn, 0},
		{events.KindNoteOff, 48000},
		{events.KindStopAllNotes, 48000},
		{events.KindNodeTransition, 48000},
		{events.KindNoteOn, 48000},
		{events.KindNoteOff, 96000},
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(got), kinds(got))
	}
	for i, exp := range want {
		if got[i].Event.Kind != exp.kind || got[i].Timestamp != exp.ts {
			t.Errorf("event %d = kind %v @ %d, want kind %v @ %d",
				i, got[i].Event.Kind, got[i].Timestamp, exp.kind, exp.ts)
		}
	}
}

func TestBoundaryClosure(t *testing.T) {
	// At every sequence end there is a StopAllNotes with exactly that
	// timestamp.
	queue := events.NewQueue(events.DefaultQueueCapacity)
	var clock atomic.Uint64

	seq := oneBeat(project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 0.5})
	w := newTestWorker(t, queue, &clock, nil, nil, loopTrack(0, seq))
	w.Prime()

	for _, boundary := range []uint64{48000, 96000, 144000} {
		clock.Store(boundary)
		w.step(clock.Load())
	}

	var stops []uint64
	for _, ev := range drain(queue) {
		if ev.Event.Kind == events.KindStopAllNotes {
			stops = append(stops, ev.Timestamp)
		}
	}

	want := []uint64{48000, 96000, 144000}
	if len(stops) != len(want) {
		t.Fatalf("expected %d StopAllNotes, got %d", len(want), len(stops))
	}
	for i := range want {
		if stops[i] != want[i] {
			t.Errorf("stop %d at %d, want %d", i, stops[i], want[i])
		}
	}
}

func TestTwoNodeGraphTransition(t *testing.T) {
	// A→B→A with one-beat sequences: by 96000 the track traversed a, b
	// and began a again, with exactly two StopAllNotes.
	queue := events.NewQueue(events.DefaultQueueCapacity)
	var clock atomic.Uint64

	seqA := oneBeat(project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 1})
	seqB := oneBeat(project.Note{Pitch: 72, Velocity: 100, StartBeat: 0, DurationBeats: 1})
	w := newTestWorker(t, queue, &clock, nil, nil, twoNodeTrack(0, seqA, seqB))
	w.Prime()

	status := w.Status()
	if len(status) != 1 || status[0].NodeID != "a" {
		t.Fatalf("initial status = %+v, want node a", status)
	}

	clock.Store(48000)
	w.step(clock.Load())
	if got := w.Status()[0].NodeID; got != "b" {
		t.Errorf("after first boundary: node %q, want b", got)
	}

	clock.Store(96000)
	w.step(clock.Load())
	if got := w.Status()[0].NodeID; got != "a" {
		t.Errorf("after second boundary: node %q, want a", got)
	}

	stopCount := 0
	var transitions []string
	for _, ev := range drain(queue) {
		switch ev.Event.Kind {
		case events.KindStopAllNotes:
			stopCount++
		case events.KindNodeTransition:
			transitions = append(transitions, ev.Event.NodeID)
		}
	}
	if stopCount != 2 {
		t.Errorf("expected exactly 2 StopAllNotes, got %d", stopCount)
	}
	if len(transitions) != 2 || transitions[0] != "b" || transitions[1] != "a" {
		t.Errorf("transitions = %v, want [b a]", transitions)
	}
}

func TestLatePollSchedulesFromObservedClock(t *testing.T) {
	// When the poll lands past the boundary, the next sequence starts at
	// the observed clock, not the theoretical end, so events are never in
	// the past.
	queue := events.NewQueue(events.DefaultQueueCapacity)
	var clock atomic.Uint64

	seq := oneBeat(project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 1})
	w := newTestWorker(t, queue, &clock, nil, nil, loopTrack(0, seq))
	w.Prime()
	drain(queue)

	late := uint64(48000 + 777)
	clock.Store(late)
	w.step(clock.Load())

	got := drain(queue)
	if len(got) == 0 {
		t.Fatal("expected boundary events")
	}
	for _, ev := range got {
		if ev.Timestamp < late {
			t.Errorf("event %v scheduled at %d, before observed clock %d", ev.Event.Kind, ev.Timestamp, late)
		}
	}
	if w.tracks[0].endSample != late+48000 {
		t.Errorf("next boundary = %d, want %d", w.tracks[0].endSample, late+48000)
	}
}

func TestIndependentTrackLengths(t *testing.T) {
	// Two tracks with different sequence lengths advance independently.
	queue := events.NewQueue(events.DefaultQueueCapacity)
	var clock atomic.Uint64

	short := oneBeat(project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 1})
	long := staticSeq(1, project.TimeSignature{Num: 2, Den: 4},
		project.Note{Pitch: 40, Velocity: 100, StartBeat: 0, DurationBeats: 2})

	w := newTestWorker(t, queue, &clock, nil, nil, loopTrack(0, short), loopTrack(1, long))
	w.Prime()
	drain(queue)

	// At 48000 only track 0 has ended (track 1 runs to 96000).
	clock.Store(48000)
	w.step(clock.Load())

	for _, ev := range drain(queue) {
		if ev.Event.TrackID != 0 {
			t.Errorf("track %d emitted %v before its boundary", ev.Event.TrackID, ev.Event.Kind)
		}
	}

	if w.tracks[0].endSample != 96000 {
		t.Errorf("track 0 next boundary = %d, want 96000", w.tracks[0].endSample)
	}
	if w.tracks[1].endSample != 96000 {
		t.Errorf("track 1 boundary moved to %d, want 96000", w.tracks[1].endSample)
	}
}

func TestScriptFailureAdvancesOnSchedule(t *testing.T) {
	// A generated node whose script fails plays silence but transitions on
	// time, and the error is surfaced exactly once per activation.
	queue := events.NewQueue(events.DefaultQueueCapacity)
	var clock atomic.Uint64

	var reported []error
	onError := func(err error) { reported = append(reported, err) }

	broken := project.Sequence{Generated: &project.GeneratedPattern{
		DurationBars:  1,
		TimeSignature: project.TimeSignature{Num: 1, Den: 4},
		Function:      "boom()",
	}}
	good := oneBeat(project.Note{Pitch: 64, Velocity: 90, StartBeat: 0, DurationBeats: 1})

	eval := &stubEval{err: errors.New("boom")}
	w := newTestWorker(t, queue, &clock, eval, onError, twoNodeTrack(0, broken, good))
	w.Prime()

	if len(reported) != 1 {
		t.Fatalf("expected 1 reported error after prime, got %d", len(reported))
	}
	var evalErr *EvalError
	if !errors.As(reported[0], &evalErr) {
		t.Fatalf("reported %v, want EvalError", reported[0])
	}
	if queue.Len() != 0 {
		t.Errorf("broken node scheduled %d events", queue.Len())
	}

	// The node still occupies its full duration, then advances.
	clock.Store(48000)
	w.step(clock.Load())
	if got := w.Status()[0].NodeID; got != "b" {
		t.Errorf("after boundary: node %q, want b", got)
	}

	sawNoteOn := false
	for _, ev := range drain(queue) {
		if ev.Event.Kind == events.KindNoteOn && ev.Event.Pitch == 64 {
			sawNoteOn = true
		}
	}
	if !sawNoteOn {
		t.Error("good node after broken one did not schedule")
	}
}

func TestQueueFullSkipsExpansionAndRetries(t *testing.T) {
	// A full queue drops the expansion (one silent pass) but the boundary
	// math stays on schedule and the next boundary schedules again.
	queue := events.NewQueue(8)
	var clock atomic.Uint64

	var reported []error
	onError := func(err error) { reported = append(reported, err) }

	seq := oneBeat(
		project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 0.25},
		project.Note{Pitch: 62, Velocity: 100, StartBeat: 0.5, DurationBeats: 0.25},
	)
	w := newTestWorker(t, queue, &clock, nil, onError, loopTrack(0, seq))
	w.Prime() // 4 of 8 slots used, unconsumed

	clock.Store(48000)
	w.step(clock.Load()) // boundary events fit, the 4-event expansion does not

	if len(reported) == 0 {
		t.Fatal("expected overflow to be reported")
	}
	if !errors.Is(reported[0], events.ErrQueueFull) {
		t.Errorf("reported %v, want ErrQueueFull", reported[0])
	}
	if w.tracks[0].endSample != 96000 {
		t.Errorf("boundary after skip = %d, want 96000", w.tracks[0].endSample)
	}

	// Drain and hit the next boundary: scheduling resumes.
	drain(queue)
	clock.Store(96000)
	w.step(clock.Load())

	sawNoteOn := false
	for _, ev := range drain(queue) {
		if ev.Event.Kind == events.KindNoteOn {
			sawNoteOn = true
		}
	}
	if !sawNoteOn {
		t.Error("scheduling did not resume after overflow")
	}
}

func TestReloadSwapsPatternsKeepsPosition(t *testing.T) {
	queue := events.NewQueue(events.DefaultQueueCapacity)
	var clock atomic.Uint64

	seq := oneBeat(project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 1})
	w := newTestWorker(t, queue, &clock, nil, nil, loopTrack(0, seq))
	w.Prime()
	drain(queue)

	// Same topology, new pattern content.
	newSeq := oneBeat(project.Note{Pitch: 72, Velocity: 80, StartBeat: 0, DurationBeats: 1})
	w.applyReload([]project.TrackData{loopTrack(0, newSeq)})

	if got := w.Status()[0].NodeID; got != "a" {
		t.Errorf("reload moved track to node %q, want a", got)
	}
	if w.tracks[0].endSample != 48000 {
		t.Errorf("reload changed boundary to %d, want 48000", w.tracks[0].endSample)
	}

	// The swapped pattern plays from the next activation.
	clock.Store(48000)
	w.step(clock.Load())

	sawNewPitch := false
	for _, ev := range drain(queue) {
		if ev.Event.Kind == events.KindNoteOn && ev.Event.Pitch == 72 {
			sawNewPitch = true
		}
	}
	if !sawNewPitch {
		t.Error("reloaded pattern never scheduled")
	}
}

func TestReloadRejectsTopologyChange(t *testing.T) {
	// Only patterns hot-swap. A reload whose node or edge structure
	// differs is ignored, reported, and the live graph keeps playing.
	queue := events.NewQueue(events.DefaultQueueCapacity)
	var clock atomic.Uint64

	var reported []error
	onError := func(err error) { reported = append(reported, err) }

	seq := oneBeat(project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 1})
	w := newTestWorker(t, queue, &clock, nil, onError, loopTrack(0, seq))
	w.Prime()
	drain(queue)

	// Renamed node and rewritten edge: a topology change.
	replacement := loopTrack(0, seq)
	replacement.Graph.Nodes[0].ID = "z"
	replacement.Graph.Edges[0] = project.Edge{From: "z", To: "z"}
	replacement.InitialNode = "z"
	w.applyReload([]project.TrackData{replacement})

	if len(reported) != 1 || !errors.Is(reported[0], ErrTopologyChanged) {
		t.Fatalf("expected ErrTopologyChanged reported once, got %v", reported)
	}
	if got := w.Status()[0].NodeID; got != "a" {
		t.Errorf("rejected reload moved track to node %q, want a", got)
	}

	// The live graph is untouched: the old pattern keeps scheduling.
	clock.Store(48000)
	w.step(clock.Load())

	sawOldPitch := false
	for _, ev := range drain(queue) {
		if ev.Event.Kind == events.KindNoteOn && ev.Event.Pitch == 60 {
			sawOldPitch = true
		}
	}
	if !sawOldPitch {
		t.Error("rejected reload stopped the live graph from playing")
	}
}

func TestReloadRejectsEdgeRewire(t *testing.T) {
	// Same node ids but a redirected edge is still a topology change.
	queue := events.NewQueue(events.DefaultQueueCapacity)
	var clock atomic.Uint64

	var reported []error
	onError := func(err error) { reported = append(reported, err) }

	seqA := oneBeat(project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 1})
	seqB := oneBeat(project.Note{Pitch: 72, Velocity: 100, StartBeat: 0, DurationBeats: 1})
	w := newTestWorker(t, queue, &clock, nil, onError, twoNodeTrack(0, seqA, seqB))
	w.Prime()
	drain(queue)

	rewired := twoNodeTrack(0, seqA, seqB)
	rewired.Graph.Edges[0].To = "a" // was a->b
	w.applyReload([]project.TrackData{rewired})

	if len(reported) != 1 || !errors.Is(reported[0], ErrTopologyChanged) {
		t.Fatalf("expected ErrTopologyChanged, got %v", reported)
	}

	// The original a->b edge still governs the transition.
	clock.Store(48000)
	w.step(clock.Load())
	if got := w.Status()[0].NodeID; got != "b" {
		t.Errorf("after boundary: node %q, want b from the live edge", got)
	}
}

func TestReloadRevivesZeroLengthTrack(t *testing.T) {
	// A track silenced by a zero-length sequence resumes when a
	// same-topology reload gives the node a playable duration.
	queue := events.NewQueue(events.DefaultQueueCapacity)
	var clock atomic.Uint64

	empty := staticSeq(0, project.TimeSignature{Num: 1, Den: 4})
	w := newTestWorker(t, queue, &clock, nil, nil, loopTrack(0, empty))
	w.Prime()

	if got := w.Status()[0].NodeID; got != "" {
		t.Fatalf("zero-length track reports node %q, want silent", got)
	}

	clock.Store(1000)
	revived := loopTrack(0, oneBeat(project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 1}))
	w.applyReload([]project.TrackData{revived})

	if got := w.Status()[0].NodeID; got != "a" {
		t.Errorf("revived track reports node %q, want a", got)
	}

	w.step(clock.Load())
	sawNoteOn := false
	for _, ev := range drain(queue) {
		if ev.Event.Kind == events.KindNoteOn {
			sawNoteOn = true
		}
	}
	if !sawNoteOn {
		t.Error("revived track never scheduled")
	}
}

func TestNodeWithoutEdgesLoops(t *testing.T) {
	queue := events.NewQueue(events.DefaultQueueCapacity)
	var clock atomic.Uint64

	track := loopTrack(0, oneBeat(project.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 1}))
	track.Graph.Edges = nil

	w := newTestWorker(t, queue, &clock, nil, nil, track)
	w.Prime()
	drain(queue)

	clock.Store(48000)
	w.step(clock.Load())

	if got := w.Status()[0].NodeID; got != "a" {
		t.Errorf("edge-less node moved to %q, want a", got)
	}
	sawNoteOn := false
	for _, ev := range drain(queue) {
		if ev.Event.Kind == events.KindNoteOn {
			sawNoteOn = true
		}
	}
	if !sawNoteOn {
		t.Error("edge-less node did not reschedule itself")
	}
}

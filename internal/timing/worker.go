package timing

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mouradif/aurio/internal/events"
	"github.com/Mouradif/aurio/internal/project"
)

// pollInterval is the back-off between clock polls. The audio callback
// tolerates boundary events arriving a few milliseconds late, so there is
// no need to spin.
const pollInterval = time.Millisecond

// TrackStatus is one track's current graph position, published for
// observers.
type TrackStatus struct {
	TrackID int
	NodeID  string
}

type trackState struct {
	id        int
	graph     project.StateGraph
	current   string
	endSample uint64
	// silent marks a track whose current node cannot be played (missing
	// node, zero-length sequence). The track stays quiet; everything else
	// keeps running.
	silent bool
}

// WorkerConfig wires a Worker to its collaborators.
type WorkerConfig struct {
	Queue      *events.Queue
	Clock      *atomic.Uint64
	BPM        float64
	SampleRate float64
	Tracks     []project.TrackData
	Evaluator  Evaluator
	// OnError receives non-fatal scheduling errors (script failures,
	// queue overflow) for publication on the update channel. May be nil.
	OnError func(error)
	Log     *logrus.Entry
}

// Worker owns the producer end of the event queue and a private clone of
// every track's graph. It polls the shared sample counter and, when a
// track's sequence ends, flushes its voices, follows the first outgoing
// edge and schedules the next sequence.
type Worker struct {
	queue      *events.Queue
	clock      *atomic.Uint64
	bpm        float64
	sampleRate float64
	eval       Evaluator
	onError    func(error)
	log        *logrus.Entry

	tracks []trackState
	reload chan []project.TrackData
	status atomic.Pointer[[]TrackStatus]

	stop chan struct{}
	done chan struct{}
}

// NewWorker clones the given tracks into a worker. Call Prime before Run.
func NewWorker(cfg WorkerConfig) *Worker {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	w := &Worker{
		queue:      cfg.Queue,
		clock:      cfg.Clock,
		bpm:        cfg.BPM,
		sampleRate: cfg.SampleRate,
		eval:       cfg.Evaluator,
		onError:    cfg.OnError,
		log:        log,
		tracks:     make([]trackState, 0, len(cfg.Tracks)),
		reload:     make(chan []project.TrackData, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	for _, t := range cfg.Tracks {
		w.tracks = append(w.tracks, trackState{
			id:      t.ID,
			graph:   t.Graph.Clone(),
			current: t.InitialNode,
		})
	}

	w.publishStatus()
	return w
}

// Prime performs each track's first expansion at sample 0. It must run
// before the audio stream starts consuming.
func (w *Worker) Prime() {
	for i := range w.tracks {
		t := &w.tracks[i]
		node, ok := t.graph.Node(t.current)
		if !ok {
			w.silence(t, "initial node missing")
			continue
		}

		duration := node.Sequence.DurationSamples(w.bpm, w.sampleRate)
		if duration == 0 {
			w.silence(t, "zero-length sequence")
			continue
		}

		if err := ExpandSequence(&node.Sequence, t.id, t.current, 0, w.bpm, w.sampleRate, w.queue, w.eval); err != nil {
			w.reportScheduleError(t.id, err)
		}
		t.endSample = duration
	}
}

// Run polls until Stop is called. It owns the queue's producer end for its
// whole lifetime.
func (w *Worker) Run() {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		case tracks := <-w.reload:
			w.applyReload(tracks)
		default:
		}

		w.step(w.clock.Load())
		time.Sleep(pollInterval)
	}
}

// Stop halts the worker and waits for the loop to exit.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// Reload hands the worker fresh track data. Patterns on matching node ids
// take effect at each track's next activation; graph position and
// scheduled end samples are preserved. A track whose node or edge
// structure differs from the live graph is ignored and reported: topology
// changes require a full project load. Non-blocking: a pending reload is
// superseded.
func (w *Worker) Reload(tracks []project.TrackData) {
	for {
		select {
		case w.reload <- tracks:
			return
		default:
			select {
			case <-w.reload:
			default:
			}
		}
	}
}

// Status returns the latest published per-track node positions.
func (w *Worker) Status() []TrackStatus {
	if s := w.status.Load(); s != nil {
		return *s
	}
	return nil
}

// step advances every track whose sequence has ended by the given clock.
func (w *Worker) step(now uint64) {
	for i := range w.tracks {
		t := &w.tracks[i]
		if t.silent || now < t.endSample {
			continue
		}
		w.advance(t, now)
	}
}

// advance flushes the track's voices, follows the first outgoing edge
// (looping on the same node when there is none) and schedules the next
// sequence starting at the transition sample. Starting at the observed
// clock rather than the theoretical end keeps scheduling from drifting
// behind a late poll.
func (w *Worker) advance(t *trackState, now uint64) {
	if err := w.queue.Push(events.StopAllNotes(now, t.id)); err != nil {
		w.reportScheduleError(t.id, err)
	}

	next := t.current
	if edge, ok := t.graph.FirstEdge(t.current); ok {
		next = edge.To
	}

	node, ok := t.graph.Node(next)
	if !ok {
		w.silence(t, "transition target missing")
		return
	}

	duration := node.Sequence.DurationSamples(w.bpm, w.sampleRate)
	if duration == 0 {
		t.current = next
		w.silence(t, "zero-length sequence")
		return
	}

	if next != t.current {
		w.log.WithFields(logrus.Fields{
			"track": t.id,
			"from":  t.current,
			"to":    next,
		}).Debug("node transition")
	}

	if err := w.queue.Push(events.NodeTransition(now, t.id, next)); err != nil {
		w.reportScheduleError(t.id, err)
	}

	t.current = next

	if err := ExpandSequence(&node.Sequence, t.id, t.current, now, w.bpm, w.sampleRate, w.queue, w.eval); err != nil {
		// A full queue skips this sequence; it stays silent until the
		// next boundary. Script errors already scheduled an empty
		// expansion. Either way the clock math below keeps the graph on
		// schedule.
		w.reportScheduleError(t.id, err)
	}

	t.endSample = now + duration
	w.publishStatus()
}

func (w *Worker) applyReload(tracks []project.TrackData) {
	byID := make(map[int]*project.TrackData, len(tracks))
	for i := range tracks {
		byID[tracks[i].ID] = &tracks[i]
	}

	for i := range w.tracks {
		t := &w.tracks[i]
		data, ok := byID[t.id]
		if !ok {
			continue
		}

		// Only pattern content hot-swaps. A reload whose node or edge
		// structure differs from the live graph is ignored; topology
		// changes go through a full project load.
		if !sameTopology(&t.graph, &data.Graph) {
			w.log.WithField("track", t.id).Warn("reload ignored: graph topology changed")
			if w.onError != nil {
				w.onError(fmt.Errorf("track %d: %w", t.id, ErrTopologyChanged))
			}
			continue
		}

		for j := range data.Graph.Nodes {
			src := &data.Graph.Nodes[j]
			if node, ok := t.graph.Node(src.ID); ok {
				node.Sequence = src.Sequence.Clone()
			}
		}

		if t.silent {
			// A track silenced by a zero-length sequence can come back
			// once the swapped pattern has a playable duration.
			if node, ok := t.graph.Node(t.current); ok {
				if node.Sequence.DurationSamples(w.bpm, w.sampleRate) > 0 {
					t.silent = false
					t.endSample = w.clock.Load()
				}
			}
		}
	}

	w.publishStatus()
}

// sameTopology reports whether two graphs have the same node-id set and
// the same edges (source and target, in declaration order). Condition and
// timing strings are not topology; they may change freely.
func sameTopology(live, next *project.StateGraph) bool {
	if len(live.Nodes) != len(next.Nodes) || len(live.Edges) != len(next.Edges) {
		return false
	}

	ids := make(map[string]bool, len(live.Nodes))
	for i := range live.Nodes {
		ids[live.Nodes[i].ID] = true
	}
	for i := range next.Nodes {
		if !ids[next.Nodes[i].ID] {
			return false
		}
	}

	for i := range live.Edges {
		if live.Edges[i].From != next.Edges[i].From || live.Edges[i].To != next.Edges[i].To {
			return false
		}
	}

	return true
}

func (w *Worker) silence(t *trackState, reason string) {
	t.silent = true
	w.log.WithFields(logrus.Fields{
		"track": t.id,
		"node":  t.current,
	}).Warn("track silenced: " + reason)
	w.publishStatus()
}

func (w *Worker) reportScheduleError(trackID int, err error) {
	var evalErr *EvalError
	switch {
	case errors.Is(err, events.ErrQueueFull):
		w.log.WithField("track", trackID).WithError(err).Warn("expansion skipped")
	case errors.As(err, &evalErr):
		w.log.WithField("track", trackID).WithError(evalErr.Err).Error("pattern script failed")
	default:
		w.log.WithField("track", trackID).WithError(err).Error("scheduling failed")
	}
	if w.onError != nil {
		w.onError(err)
	}
}

func (w *Worker) publishStatus() {
	status := make([]TrackStatus, 0, len(w.tracks))
	for i := range w.tracks {
		t := &w.tracks[i]
		id := t.current
		if t.silent {
			id = ""
		}
		status = append(status, TrackStatus{TrackID: t.id, NodeID: id})
	}
	w.status.Store(&status)
}

package engine

import (
	"sync/atomic"

	"github.com/Mouradif/aurio/internal/audio"
	"github.com/Mouradif/aurio/internal/events"
)

const (
	// maxTracks bounds the playback states pre-allocated per session so a
	// hot reload can grow the track list without the audio thread
	// allocating.
	maxTracks = 32
	// maxChunkFrames is the largest slice of a device buffer rendered in
	// one pass through the fixed mix buffers.
	maxChunkFrames = 2048
	// maxEventsPerBuffer caps how many events one chunk drains; anything
	// beyond stays queued for the next chunk.
	maxEventsPerBuffer = 1024

	channelCount  = 2
	bytesPerFrame = channelCount * 2 // 16-bit samples
)

// configSnapshot is the immutable view the audio thread reads once per
// buffer: the track configs plus the track-id → state-index mapping.
type configSnapshot struct {
	configs []audio.TrackConfig
	index   map[int]int
	gainL   []float64
	gainR   []float64
}

func newConfigSnapshot(configs []audio.TrackConfig) *configSnapshot {
	snap := &configSnapshot{
		configs: configs,
		index:   make(map[int]int, len(configs)),
		gainL:   make([]float64, len(configs)),
		gainR:   make([]float64, len(configs)),
	}
	for i := range configs {
		snap.index[configs[i].ID] = i
		snap.gainL[i], snap.gainR[i] = audio.PanGains(configs[i].Pan)
	}
	return snap
}

// callback is the audio thread's entry point: an io.Reader the output
// device pulls interleaved stereo int16 frames from. Inside Read there is
// no allocation, no locking and no I/O; all scratch space is fixed at
// construction.
type callback struct {
	clock      *atomic.Uint64
	queue      *events.Queue
	snap       *atomic.Pointer[configSnapshot]
	paused     *atomic.Bool
	states     []*audio.PlaybackState
	sampleRate float64

	local [maxEventsPerBuffer]events.ScheduledEvent
	mixL  [maxChunkFrames]float64
	mixR  [maxChunkFrames]float64
}

func newCallback(clock *atomic.Uint64, queue *events.Queue, snap *atomic.Pointer[configSnapshot], paused *atomic.Bool, sampleRate float64) *callback {
	states := make([]*audio.PlaybackState, maxTracks)
	for i := range states {
		states[i] = &audio.PlaybackState{}
	}
	return &callback{
		clock:      clock,
		queue:      queue,
		snap:       snap,
		paused:     paused,
		states:     states,
		sampleRate: sampleRate,
	}
}

// Read renders whole frames into buf and never returns an error: if there
// is nothing to play, the frames are silence.
func (c *callback) Read(buf []byte) (int, error) {
	frames := len(buf) / bytesPerFrame
	written := 0

	for frames > 0 {
		chunk := frames
		if chunk > maxChunkFrames {
			chunk = maxChunkFrames
		}
		c.renderChunk(buf[written:], chunk)
		written += chunk * bytesPerFrame
		frames -= chunk
	}

	return written, nil
}

func (c *callback) renderChunk(buf []byte, frames int) {
	clock := c.clock.Load()
	bufferEnd := clock + uint64(frames)

	snap := c.snap.Load()
	paused := c.paused.Load()

	// Drain the events due within this buffer. The queue's consumer end
	// never pops an event past the horizon, so nothing needs handing back.
	n := 0
	for n < maxEventsPerBuffer {
		ev, ok := c.queue.PopBefore(bufferEnd)
		if !ok {
			break
		}
		c.local[n] = ev
		n++
	}

	// The scheduler emits in timestamp order already; this insertion sort
	// is a safety net and costs nothing on sorted input.
	for i := 1; i < n; i++ {
		for j := i; j > 0 && c.local[j].Timestamp < c.local[j-1].Timestamp; j-- {
			c.local[j], c.local[j-1] = c.local[j-1], c.local[j]
		}
	}

	evIdx := 0
	for f := 0; f < frames; f++ {
		abs := clock + uint64(f)
		for evIdx < n && c.local[evIdx].Timestamp <= abs {
			c.apply(snap, &c.local[evIdx].Event)
			evIdx++
		}

		var left, right float64
		if snap != nil {
			tracks := len(snap.configs)
			if tracks > len(c.states) {
				tracks = len(c.states)
			}
			for t := 0; t < tracks; t++ {
				cfg := &snap.configs[t]
				sample := c.states[t].RenderSample(cfg, c.sampleRate) * cfg.Volume
				left += sample * snap.gainL[t]
				right += sample * snap.gainR[t]
			}
		}

		if paused {
			left, right = 0, 0
		}

		c.mixL[f] = left
		c.mixR[f] = right
	}

	writeFrames(buf, c.mixL[:frames], c.mixR[:frames])
	c.clock.Add(uint64(frames))
}

func (c *callback) apply(snap *configSnapshot, ev *events.Event) {
	if snap == nil {
		return
	}
	idx, ok := snap.index[ev.TrackID]
	if !ok || idx >= len(c.states) {
		return
	}
	state := c.states[idx]

	switch ev.Kind {
	case events.KindNoteOn:
		state.NoteOn(ev.Pitch, ev.Velocity, snap.configs[idx].NumOscillators())
	case events.KindNoteOff:
		state.NoteOff(ev.Pitch)
	case events.KindStopAllNotes:
		state.StopAll()
	case events.KindNodeTransition:
		// Observer-only; nothing to do on the audio thread.
	}
}

// writeFrames converts the float mix to interleaved little-endian int16
// with hard clipping at full scale.
func writeFrames(buf []byte, left, right []float64) {
	for i := range left {
		l := clipSample(left[i])
		r := clipSample(right[i])
		idx := i * bytesPerFrame
		buf[idx] = byte(l)
		buf[idx+1] = byte(l >> 8)
		buf[idx+2] = byte(r)
		buf[idx+3] = byte(r >> 8)
	}
}

func clipSample(v float64) int16 {
	if v > 1.0 {
		v = 1.0
	} else if v < -1.0 {
		v = -1.0
	}
	return int16(v * 32767)
}

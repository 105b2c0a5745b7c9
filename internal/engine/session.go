package engine

import (
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"

	"github.com/Mouradif/aurio/internal/audio"
	"github.com/Mouradif/aurio/internal/events"
	"github.com/Mouradif/aurio/internal/project"
	"github.com/Mouradif/aurio/internal/script"
	"github.com/Mouradif/aurio/internal/timing"
)

// session is everything that exists only while playing: the event queue,
// the sample counter, the scheduler worker, the per-track playback states
// and the audio stream. Stop drops the whole thing.
type session struct {
	queue    *events.Queue
	clock    atomic.Uint64
	snap     atomic.Pointer[configSnapshot]
	paused   atomic.Bool
	callback *callback
	worker   *timing.Worker
	runtime  *script.LuaRuntime
	player   *oto.Player
}

func buildConfigs(p *project.Project) []audio.TrackConfig {
	configs := make([]audio.TrackConfig, 0, len(p.Tracks))
	for i := range p.Tracks {
		configs = append(configs, audio.NewTrackConfig(&p.Tracks[i]))
	}
	return configs
}

// startSession builds the playback pipeline for a project: first
// expansions are primed at sample 0 before the device starts pulling, so
// the very first buffer already has its events.
func startSession(p *project.Project, vars *script.VarStore, log *logrus.Entry, onError func(error)) (*session, error) {
	s := &session{
		queue:   events.NewQueue(events.DefaultQueueCapacity),
		runtime: script.NewLuaRuntime(vars),
	}
	s.snap.Store(newConfigSnapshot(buildConfigs(p)))

	s.worker = timing.NewWorker(timing.WorkerConfig{
		Queue:      s.queue,
		Clock:      &s.clock,
		BPM:        p.BPM,
		SampleRate: float64(p.SampleRate),
		Tracks:     p.Tracks,
		Evaluator:  s.runtime,
		OnError:    onError,
		Log:        log,
	})
	s.worker.Prime()

	s.callback = newCallback(&s.clock, s.queue, &s.snap, &s.paused, float64(p.SampleRate))

	player, err := newPlayer(p.SampleRate, s.callback)
	if err != nil {
		s.worker.Stop()
		s.runtime.Close()
		return nil, err
	}
	s.player = player

	go s.worker.Run()

	return s, nil
}

// reload swaps the track configuration snapshot and hands the worker the
// new patterns. Envelope and oscillator state is untouched: a reload that
// only changes volume or pan is audible immediately and seamlessly.
func (s *session) reload(p *project.Project) {
	s.snap.Store(newConfigSnapshot(buildConfigs(p)))
	s.worker.Reload(p.Tracks)
}

// close tears the session down: the worker stops producing, the player
// stops pulling, the Lua state is released.
func (s *session) close() {
	s.worker.Stop()
	if s.player != nil {
		s.player.Close()
	}
	s.runtime.Close()
}

package engine

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mouradif/aurio/internal/project"
	"github.com/Mouradif/aurio/internal/script"
)

// statusInterval paces CurrentNodes publication.
const statusInterval = 50 * time.Millisecond

// Engine is the conductor. Create with New, drive it from any goroutine
// through Commands, observe through Updates, and call Run on a dedicated
// goroutine. Closing the command channel shuts it down.
type Engine struct {
	commands chan Command
	updates  chan Update
	log      *logrus.Entry
	vars     *script.VarStore

	project *project.Project
	session *session
	playing bool
}

// New creates an idle engine.
func New(log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		commands: make(chan Command, 16),
		updates:  make(chan Update, 64),
		log:      log,
		vars:     script.NewVarStore(),
	}
}

// Commands is the control channel. Close it to stop the engine.
func (e *Engine) Commands() chan<- Command {
	return e.commands
}

// Updates delivers status notifications. Consumers that fall behind lose
// updates rather than blocking the engine.
func (e *Engine) Updates() <-chan Update {
	return e.updates
}

// Run processes commands until the command channel closes. Any active
// session is torn down on exit.
func (e *Engine) Run() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd, ok := <-e.commands:
			if !ok {
				e.stopSession()
				return
			}
			e.handle(cmd)
		case <-ticker.C:
			e.publishNodes()
		}
	}
}

func (e *Engine) handle(cmd Command) {
	switch c := cmd.(type) {
	case LoadProject:
		e.loadProject(c.Path)
	case ReloadProject:
		e.reloadProject(c.Project)
	case Play:
		e.play()
	case Pause:
		e.pause()
	case Stop:
		e.stopSession()
		e.publish(PlaybackState{Playing: false})
		e.publish(CurrentNodes{})
	case SetVariable:
		e.vars.Set(c.Name, c.Value)
	}
}

func (e *Engine) loadProject(path string) {
	p, err := project.Load(path)
	if err != nil {
		e.log.WithError(err).Error("project load failed")
		e.publish(Error{Message: fmt.Sprintf("failed to load project: %v", err)})
		return
	}

	e.log.WithField("project", p.Name).Info("project loaded")

	e.stopSession()
	e.project = p
	e.publish(ProjectLoaded{Project: p})
	e.publish(PlaybackState{Playing: false})
}

func (e *Engine) reloadProject(p *project.Project) {
	if p == nil {
		return
	}
	if err := p.Validate(); err != nil {
		e.publish(Error{Message: fmt.Sprintf("reload rejected: %v", err)})
		return
	}

	e.project = p
	if e.session != nil {
		e.session.reload(p)
		e.log.WithField("project", p.Name).Info("project hot-swapped")
	}
}

func (e *Engine) play() {
	if e.project == nil {
		e.publish(Error{Message: "no project loaded"})
		return
	}

	if e.session == nil {
		s, err := startSession(e.project, e.vars, e.log, e.onWorkerError)
		if err != nil {
			e.log.WithError(err).Error("audio start failed")
			e.publish(Error{Message: fmt.Sprintf("failed to start audio: %v", err)})
			return
		}
		e.session = s
	}

	e.session.paused.Store(false)
	e.playing = true
	e.publish(PlaybackState{Playing: true})
}

func (e *Engine) pause() {
	if e.session != nil {
		e.session.paused.Store(true)
	}
	e.playing = false
	e.publish(PlaybackState{Playing: false})
}

func (e *Engine) stopSession() {
	if e.session == nil {
		e.playing = false
		return
	}
	e.session.close()
	e.session = nil
	e.playing = false
}

// onWorkerError runs on the scheduler goroutine; publication is
// non-blocking so it can never stall scheduling.
func (e *Engine) onWorkerError(err error) {
	e.publish(Error{Message: err.Error()})
}

func (e *Engine) publishNodes() {
	if e.session == nil || !e.playing {
		return
	}
	nodes := e.session.worker.Status()
	e.publish(CurrentNodes{Nodes: nodes})
}

func (e *Engine) publish(u Update) {
	select {
	case e.updates <- u:
	default:
	}
}

// Package engine orchestrates playback: it routes control commands, owns
// the audio stream and scheduler worker, publishes status updates, and
// holds the hot-swappable track configuration.
package engine

import (
	"github.com/Mouradif/aurio/internal/project"
	"github.com/Mouradif/aurio/internal/timing"
)

// Command is a control-thread request to the engine.
type Command interface{ isCommand() }

// LoadProject loads a project from disk, replacing the current one and
// stopping any active playback.
type LoadProject struct {
	Path string
}

// ReloadProject hot-swaps instrument, mix and pattern data into a running
// engine without interrupting the audio stream. Graph topology changes
// still require LoadProject.
type ReloadProject struct {
	Project *project.Project
}

// Play starts (or resumes) playback of the loaded project.
type Play struct{}

// Pause gates output to silence while the clock keeps advancing.
type Pause struct{}

// Stop tears the playback session down.
type Stop struct{}

// SetVariable writes a script-visible global variable.
type SetVariable struct {
	Name  string
	Value float64
}

func (LoadProject) isCommand()   {}
func (ReloadProject) isCommand() {}
func (Play) isCommand()          {}
func (Pause) isCommand()         {}
func (Stop) isCommand()          {}
func (SetVariable) isCommand()   {}

// Update is a best-effort status notification to the control thread.
// Deliveries are lossy: a slow consumer drops updates rather than stalling
// the engine.
type Update interface{ isUpdate() }

// ProjectLoaded reports a successful LoadProject.
type ProjectLoaded struct {
	Project *project.Project
}

// CurrentNodes reports each track's graph position. A track silenced by a
// missing node reports an empty node id.
type CurrentNodes struct {
	Nodes []timing.TrackStatus
}

// PlaybackState reports whether the engine is playing.
type PlaybackState struct {
	Playing bool
}

// Error reports a failure the engine survived.
type Error struct {
	Message string
}

func (ProjectLoaded) isUpdate() {}
func (CurrentNodes) isUpdate()  {}
func (PlaybackState) isUpdate() {}
func (Error) isUpdate()         {}

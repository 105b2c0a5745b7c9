// Package script evaluates generated note patterns. The scheduler only
// depends on the timing.Evaluator interface; LuaRuntime is the one
// implementation.
package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/Mouradif/aurio/internal/project"
)

// LuaRuntime runs pattern chunks in an embedded Lua state. A chunk must
// return a table of note tables:
//
//	return {
//	  {pitch = 60, velocity = 100, start_beat = 0, duration_beats = 1},
//	}
//
// A runtime is not safe for concurrent use; the scheduler worker owns its
// own instance.
type LuaRuntime struct {
	state *lua.LState
	vars  *VarStore
	// applied are the variable globals set for the previous evaluation,
	// cleared before the next one so node-scoped values never leak into
	// another node's pattern.
	applied []string
}

// NewLuaRuntime creates a runtime. vars may be nil; when set, the variables
// in scope for each activation are exposed to the pattern chunk as Lua
// globals before evaluation.
func NewLuaRuntime(vars *VarStore) *LuaRuntime {
	return &LuaRuntime{
		state: lua.NewState(),
		vars:  vars,
	}
}

// Close releases the Lua state.
func (r *LuaRuntime) Close() {
	r.state.Close()
}

// EvaluatePattern runs the chunk for one activation (track, node) and
// converts its returned table into notes. Variables from the store are
// exposed as globals, narrowest scope shadowing widest. Any Lua error,
// missing return value, or malformed note fails the whole evaluation; the
// caller substitutes an empty pattern.
func (r *LuaRuntime) EvaluatePattern(trackID int, nodeID, source string) ([]project.Note, error) {
	if r.vars != nil {
		for _, name := range r.applied {
			r.state.SetGlobal(name, lua.LNil)
		}
		r.applied = r.applied[:0]

		r.vars.visible(trackID, nodeID, func(name string, value float64) {
			r.state.SetGlobal(name, lua.LNumber(value))
			r.applied = append(r.applied, name)
		})
	}

	top := r.state.GetTop()
	defer r.state.SetTop(top)

	if err := r.state.DoString(source); err != nil {
		return nil, fmt.Errorf("pattern script: %w", err)
	}

	ret := r.state.Get(-1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("pattern script returned %s, want a table of notes", ret.Type())
	}

	var notes []project.Note
	var convErr error
	tbl.ForEach(func(_, v lua.LValue) {
		if convErr != nil {
			return
		}
		noteTbl, ok := v.(*lua.LTable)
		if !ok {
			convErr = fmt.Errorf("note entry is %s, want a table", v.Type())
			return
		}
		note, err := noteFromTable(noteTbl)
		if err != nil {
			convErr = err
			return
		}
		notes = append(notes, note)
	})
	if convErr != nil {
		return nil, fmt.Errorf("pattern script: %w", convErr)
	}

	return notes, nil
}

func noteFromTable(tbl *lua.LTable) (project.Note, error) {
	pitch, err := numberField(tbl, "pitch")
	if err != nil {
		return project.Note{}, err
	}
	velocity, err := numberField(tbl, "velocity")
	if err != nil {
		return project.Note{}, err
	}
	start, err := numberField(tbl, "start_beat")
	if err != nil {
		return project.Note{}, err
	}
	duration, err := numberField(tbl, "duration_beats")
	if err != nil {
		return project.Note{}, err
	}

	if pitch < 0 || pitch > 127 {
		return project.Note{}, fmt.Errorf("pitch %v out of range", pitch)
	}
	if velocity < 0 || velocity > 127 {
		return project.Note{}, fmt.Errorf("velocity %v out of range", velocity)
	}

	return project.Note{
		Pitch:         uint8(pitch),
		Velocity:      uint8(velocity),
		StartBeat:     start,
		DurationBeats: duration,
	}, nil
}

func numberField(tbl *lua.LTable, name string) (float64, error) {
	v := tbl.RawGetString(name)
	num, ok := v.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("note field %q is %s, want a number", name, v.Type())
	}
	return float64(num), nil
}

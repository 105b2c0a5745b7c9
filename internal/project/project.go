// Package project defines the on-disk data model: a project is a named
// collection of tracks, each carrying an instrument, an envelope and a
// state graph of note sequences.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFileName is the serialized project inside a project directory.
const ProjectFileName = "project.yaml"

// SampleRef points at an audio file in the project's sample library.
type SampleRef struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

// TrackData is the authoritative description of one track. The engine
// clones what it needs out of this at load time.
type TrackData struct {
	ID          int        `yaml:"id"`
	Name        string     `yaml:"name"`
	Instrument  Instrument `yaml:"instrument"`
	ADSR        ADSR       `yaml:"adsr"`
	Volume      float64    `yaml:"volume"`
	Pan         float64    `yaml:"pan"`
	InitialNode string     `yaml:"initial_node"`
	Graph       StateGraph `yaml:"graph"`
}

// Project is the root document. Immutable once loaded; edits produce a new
// value that is handed to the engine as a whole.
type Project struct {
	Name          string      `yaml:"name"`
	Version       string      `yaml:"version"`
	BPM           float64     `yaml:"bpm"`
	SampleRate    int         `yaml:"sample_rate"`
	SampleLibrary []SampleRef `yaml:"sample_library,omitempty"`
	Tracks        []TrackData `yaml:"tracks"`
}

// resolvePath accepts either a project directory or the project file itself.
func resolvePath(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, ProjectFileName)
	}
	return path
}

// Load reads and validates a project from path (a directory containing
// project.yaml, or the file directly).
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(resolvePath(path))
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing project: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}

	return &p, nil
}

// Save writes the project into dir, creating it (and a samples/
// subdirectory) as needed.
func (p *Project) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "samples"), 0o750); err != nil {
		return fmt.Errorf("creating samples directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("serializing project: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ProjectFileName), data, 0o640); err != nil {
		return fmt.Errorf("writing project: %w", err)
	}

	return nil
}

// Track returns the track with the given id.
func (p *Project) Track(id int) (*TrackData, bool) {
	for i := range p.Tracks {
		if p.Tracks[i].ID == id {
			return &p.Tracks[i], true
		}
	}
	return nil, false
}

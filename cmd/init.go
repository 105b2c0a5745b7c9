package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mouradif/aurio/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init <dir>",
	Short: "Scaffold a new project",
	Long:  `Create a project directory with a playable two-node example project.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := args[0]

	p := exampleProject()
	if err := p.Save(dir); err != nil {
		return err
	}

	fmt.Printf("Created project %q in %s\n", p.Name, dir)
	fmt.Printf("Play it with: aurio monitor %s\n", dir)
	return nil
}

func exampleProject() *project.Project {
	lead := project.Instrument{
		MultiOsc: &project.MultiOsc{
			Oscillators: []project.OscConfig{
				{Wave: project.WaveSaw, Gain: 0.4, Semitone: 0},
				{Wave: project.WaveSine, Gain: 0.3, Semitone: 12},
			},
		},
	}

	fourFour := project.TimeSignature{Num: 4, Den: 4}

	return &project.Project{
		Name:       "example",
		Version:    "1",
		BPM:        120,
		SampleRate: 48000,
		Tracks: []project.TrackData{
			{
				ID:          0,
				Name:        "lead",
				Instrument:  lead,
				ADSR:        project.ADSR{Attack: 0.01, Decay: 0.1, Sustain: 0.7, Release: 0.2},
				Volume:      0.8,
				Pan:         0,
				InitialNode: "verse",
				Graph: project.StateGraph{
					Nodes: []project.Node{
						{
							ID: "verse",
							Sequence: project.Sequence{Static: &project.StaticPattern{
								DurationBars:  1,
								TimeSignature: fourFour,
								Notes: []project.Note{
									{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 1},
									{Pitch: 64, Velocity: 90, StartBeat: 1, DurationBeats: 1},
									{Pitch: 67, Velocity: 90, StartBeat: 2, DurationBeats: 1},
									{Pitch: 72, Velocity: 100, StartBeat: 3, DurationBeats: 1},
								},
							}},
						},
						{
							ID: "chorus",
							Sequence: project.Sequence{Generated: &project.GeneratedPattern{
								DurationBars:  1,
								TimeSignature: fourFour,
								Function: `local notes = {}
for i = 0, 7 do
  notes[#notes + 1] = {
    pitch = 60 + (i * 3) % 12,
    velocity = 80,
    start_beat = i * 0.5,
    duration_beats = 0.5,
  }
end
return notes`,
							}},
						},
					},
					Edges: []project.Edge{
						{From: "verse", To: "chorus", Timing: project.TimingImmediate},
						{From: "chorus", To: "verse", Timing: project.TimingImmediate},
					},
				},
			},
		},
	}
}

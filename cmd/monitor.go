package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Mouradif/aurio/internal/engine"
	"github.com/Mouradif/aurio/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor <project>",
	Short: "Play a project with a live terminal monitor",
	Long: `Load a project, start playback and show a live view of each track's
graph position, with transport keys for play, pause, stop and reload.`,
	Args: cobra.ExactArgs(1),
	Run:  runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) {
	path := args[0]

	// Log to stderr, off the stdout stream the TUI draws on. When stderr is
	// the same terminal, log lines still appear over the TUI.
	logrus.SetOutput(os.Stderr)
	log := logrus.WithField("cmd", "monitor")

	eng := engine.New(log)
	go eng.Run()

	eng.Commands() <- engine.LoadProject{Path: path}
	eng.Commands() <- engine.Play{}

	m := tui.NewModel(eng.Commands(), eng.Updates(), path)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}

	close(eng.Commands())
}

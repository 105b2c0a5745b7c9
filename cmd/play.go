package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Mouradif/aurio/internal/engine"
	"github.com/Mouradif/aurio/internal/project"
	"github.com/Mouradif/aurio/internal/watcher"
)

var watchProject bool

var playCmd = &cobra.Command{
	Use:   "play <project>",
	Short: "Play a project headless",
	Long: `Load a project and start playback without a UI. Updates are logged to
stderr. With --watch, saving the project file hot-swaps patterns and
instruments into the running engine.`,
	Args: cobra.ExactArgs(1),
	Run:  runPlay,
}

func init() {
	playCmd.Flags().BoolVarP(&watchProject, "watch", "w", false, "reload the project on file changes")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) {
	log := logrus.WithField("cmd", "play")
	path := args[0]

	eng := engine.New(log)
	go eng.Run()

	eng.Commands() <- engine.LoadProject{Path: path}
	eng.Commands() <- engine.Play{}

	if watchProject {
		w, err := watcher.New(path, func() {
			p, err := project.Load(path)
			if err != nil {
				log.WithError(err).Error("reload skipped")
				return
			}
			eng.Commands() <- engine.ReloadProject{Project: p}
		}, log)
		if err != nil {
			log.WithError(err).Warn("file watching disabled")
		} else {
			defer w.Close()
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			close(eng.Commands())
			return

		case u := <-eng.Updates():
			switch u := u.(type) {
			case engine.ProjectLoaded:
				log.WithField("project", u.Project.Name).Info("loaded")
			case engine.PlaybackState:
				log.WithField("playing", u.Playing).Info("playback state")
			case engine.CurrentNodes:
				for _, n := range u.Nodes {
					log.WithFields(logrus.Fields{
						"track": n.TrackID,
						"node":  n.NodeID,
					}).Debug("current node")
				}
			case engine.Error:
				log.Error(u.Message)
			}
		}
	}
}

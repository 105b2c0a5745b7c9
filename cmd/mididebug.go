package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var midiPortName string

var midiDebugCmd = &cobra.Command{
	Use:   "mididebug",
	Short: "Open a virtual MIDI input and dump incoming messages",
	Long: `Create a virtual MIDI input port and print every message it receives,
decoded. Useful for checking what a controller or DAW actually sends.`,
	RunE: runMidiDebug,
}

func init() {
	midiDebugCmd.Flags().StringVarP(&midiPortName, "name", "n", "Aurio Debug In", "name for the virtual MIDI port")
	rootCmd.AddCommand(midiDebugCmd)
}

func runMidiDebug(cmd *cobra.Command, args []string) error {
	driver, err := rtmididrv.New()
	if err != nil {
		return fmt.Errorf("initializing MIDI driver: %w", err)
	}
	defer driver.Close()

	port, err := driver.OpenVirtualIn(midiPortName)
	if err != nil {
		return fmt.Errorf("creating virtual MIDI port: %w", err)
	}
	defer port.Close()

	stop, err := port.Listen(func(data []byte, timestamp int32) {
		fmt.Println(describeMessage(data, timestamp))
	}, drivers.ListenConfig{})
	if err != nil {
		return fmt.Errorf("listening on MIDI port: %w", err)
	}
	defer stop()

	fmt.Printf("Listening on %q — ctrl+c to quit\n", port.String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	return nil
}

func describeMessage(data []byte, timestamp int32) string {
	if len(data) == 0 {
		return fmt.Sprintf("[%8d] (empty)", timestamp)
	}

	status := data[0]
	channel := status&0x0F + 1

	switch status & 0xF0 {
	case 0x90:
		if len(data) >= 3 {
			if data[2] == 0 {
				return fmt.Sprintf("[%8d] ch%-2d note off %-4s", timestamp, channel, noteName(data[1]))
			}
			return fmt.Sprintf("[%8d] ch%-2d note on  %-4s vel %d", timestamp, channel, noteName(data[1]), data[2])
		}
	case 0x80:
		if len(data) >= 2 {
			return fmt.Sprintf("[%8d] ch%-2d note off %-4s", timestamp, channel, noteName(data[1]))
		}
	case 0xB0:
		if len(data) >= 3 {
			return fmt.Sprintf("[%8d] ch%-2d cc %d = %d", timestamp, channel, data[1], data[2])
		}
	case 0xE0:
		return fmt.Sprintf("[%8d] ch%-2d pitch bend", timestamp, channel)
	}

	return fmt.Sprintf("[%8d] raw % X", timestamp, data)
}

func noteName(note uint8) string {
	notes := []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	octave := int(note/12) - 1
	return fmt.Sprintf("%s%d", notes[note%12], octave)
}

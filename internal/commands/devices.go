package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgevoice/edgevoice/internal/audio"
	"github.com/edgevoice/edgevoice/internal/console"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	capture, err := audio.New(log)
	if err != nil {
		return err
	}
	defer capture.Close()

	devices, err := capture.ListDevices()
	if err != nil {
		return err
	}

	styles := console.Default
	fmt.Println(styles.Header("Audio input devices"))
	for _, d := range devices {
		label := d.Name
		if d.Default {
			label += " (default)"
		}
		fmt.Println(styles.KV(d.ID, fmt.Sprintf("%s  %dHz %dch", label, d.SampleRate, d.Channels)))
	}
	if len(devices) == 0 {
		fmt.Println(styles.Warning("no input devices found"))
	}
	return nil
}

package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgevoice/edgevoice/internal/audio"
	"github.com/edgevoice/edgevoice/internal/console"
)

var micTestDuration time.Duration

var micTestCmd = &cobra.Command{
	Use:   "mic-test",
	Short: "Show live microphone levels",
	Long: `Capture from the default microphone and print a live level meter,
useful for checking that audio input works before training or listening.`,
	RunE: runMicTest,
}

func init() {
	micTestCmd.Flags().DurationVar(&micTestDuration, "duration", 10*time.Second, "how long to monitor")
	rootCmd.AddCommand(micTestCmd)
}

func runMicTest(cmd *cobra.Command, args []string) error {
	recorder, err := audio.NewRecorder(os.TempDir(), log)
	if err != nil {
		return err
	}
	defer recorder.Close()

	styles := console.Default
	fmt.Println(styles.Header("Microphone test"))
	fmt.Println(styles.Help.Render("Speak into the microphone. Press Ctrl+C to stop."))

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = recorder.MicTest(ctx, micTestDuration, func(level float64) {
		fmt.Printf("\r%s", styles.LevelBar(level, 40))
	})
	fmt.Println()
	if err != nil {
		return err
	}
	fmt.Println(styles.OK("microphone working"))
	return nil
}

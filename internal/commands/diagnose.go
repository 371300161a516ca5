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
	"github.com/edgevoice/edgevoice/internal/diagnose"
)

var diagnoseFlags struct {
	wakeWord    string
	detector    string
	keywordFile string
	sherpaDir   string
	listenFor   time.Duration
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Test a wake word model across detection thresholds",
	Long: `Listen for the wake word at a sweep of detection thresholds and
report how the model performs, with a recommendation on whether to
retrain or adjust the threshold.

Say the wake word a few times during each listening window.`,
	RunE: runDiagnose,
}

func init() {
	f := diagnoseCmd.Flags()
	f.StringVar(&diagnoseFlags.wakeWord, "wake-word", "", "wake word to test (defaults to the configured one)")
	f.StringVar(&diagnoseFlags.detector, "detector", "porcupine", "detection engine: porcupine or sherpa")
	f.StringVar(&diagnoseFlags.keywordFile, "keyword-file", "", "porcupine keyword file (.ppn)")
	f.StringVar(&diagnoseFlags.sherpaDir, "sherpa-dir", "", "sherpa-onnx keyword spotter model directory")
	f.DurationVar(&diagnoseFlags.listenFor, "listen-for", 10*time.Second, "listening window per threshold")
	rootCmd.AddCommand(diagnoseCmd)
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	st := store.State()
	if diagnoseFlags.wakeWord != "" {
		st.WakeWord = diagnoseFlags.wakeWord
	}
	if st.WakeWord == "" {
		return fmt.Errorf("no wake word configured; use --wake-word")
	}

	capture, err := audio.New(log)
	if err != nil {
		return fmt.Errorf("initializing audio: %w", err)
	}
	defer capture.Close()

	scorer, err := buildScorer(st, diagnoseFlags.detector, diagnoseFlags.keywordFile, diagnoseFlags.sherpaDir)
	if err != nil {
		return err
	}
	defer scorer.Close()

	styles := console.Default
	fmt.Println(styles.Header("Wake word diagnostics"))
	fmt.Println(styles.KV("wake word", st.WakeWord))
	fmt.Println(styles.Help.Render("Say the wake word a few times during each window."))

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := diagnose.Run(ctx, diagnose.Config{
		Capture:   capture,
		Scorer:    scorer,
		WakeWord:  st.WakeWord,
		ListenFor: diagnoseFlags.listenFor,
		OnWindow: func(threshold float32) {
			fmt.Println()
			fmt.Println(styles.Label.Render(fmt.Sprintf("Testing threshold %.1f", threshold)),
				fmt.Sprintf("(%s)...", diagnoseFlags.listenFor))
		},
		OnDetection: func(confidence float32) {
			fmt.Println(styles.OK(fmt.Sprintf("detected (%.2f)", confidence)))
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(styles.Header("Results"))
	for _, r := range report.Results {
		line := fmt.Sprintf("%d detections", r.Detections)
		if r.Detections > 0 {
			line += fmt.Sprintf(", avg confidence %.2f", r.AvgConfidence)
		}
		fmt.Println(styles.KV(fmt.Sprintf("threshold %.1f", r.Threshold), line))
	}
	fmt.Println()
	fmt.Println(styles.Panel("recommendation", report.Recommendation()))
	return nil
}

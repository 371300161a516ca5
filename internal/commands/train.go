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
	"github.com/edgevoice/edgevoice/internal/state"
	"github.com/edgevoice/edgevoice/internal/trainer"
)

var trainFlags struct {
	wakeWord      string
	numSamples    int
	epochs        int
	augmentations int
	duration      float64
	workDir       string
	retrain       bool
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Record samples and train a wake word model",
	Long: `Record voice samples for a wake word and run the training pipeline.

You will be prompted to say the wake word several times; the recorded
samples feed the training pipeline, and the finished model is installed
into the models directory and registered in the state file.

The produced model is an openWakeWord network for external runtimes;
the listen command detects with porcupine keyword files or sherpa
keyword spotter models.

Examples:
  edgevoice train --wake-word "hey edge"
  edgevoice train --wake-word "ok computer" --num-samples 10 --epochs 100`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trainFlags.wakeWord, "wake-word", "", "wake word phrase to train")
	f.IntVar(&trainFlags.numSamples, "num-samples", 5, "positive samples to record")
	f.IntVar(&trainFlags.epochs, "epochs", 50, "training epochs")
	f.IntVar(&trainFlags.augmentations, "augmentations", 20, "augmentations per sample")
	f.Float64Var(&trainFlags.duration, "duration", 2, "seconds per sample")
	f.StringVar(&trainFlags.workDir, "work-dir", ".", "directory holding the training pipeline")
	f.BoolVar(&trainFlags.retrain, "retrain", false, "retrain even if a model exists")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	wakeWord := trainFlags.wakeWord
	if wakeWord == "" {
		wakeWord = store.State().WakeWord
	}
	if wakeWord == "" {
		return fmt.Errorf("no wake word given; use --wake-word")
	}

	styles := console.Default
	fmt.Println(styles.Header("Wake word training"))
	fmt.Println(styles.KV("wake word", wakeWord))
	fmt.Println(styles.KV("samples", fmt.Sprintf("%d x %.1fs", trainFlags.numSamples, trainFlags.duration)))

	recorder, err := audio.NewRecorder(samplesDir(), log)
	if err != nil {
		return fmt.Errorf("initializing recorder: %w", err)
	}
	defer recorder.Close()

	tr := trainer.New(trainer.Config{
		Store:          store,
		Recorder:       recorder,
		WorkDir:        trainFlags.workDir,
		ModelsDir:      state.ModelsDir(),
		Epochs:         trainFlags.epochs,
		Augmentations:  trainFlags.augmentations,
		NumSamples:     trainFlags.numSamples,
		SampleDuration: time.Duration(trainFlags.duration * float64(time.Second)),
		OnSample: func(i int) {
			fmt.Println(styles.Label.Render(fmt.Sprintf("Sample %d/%d:", i, trainFlags.numSamples)),
				fmt.Sprintf("say %q now...", wakeWord))
		},
		Logger: log,
	})

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	path, err := tr.EnsureModel(ctx, wakeWord, trainFlags.retrain)
	if err != nil {
		fmt.Println(styles.Fail("training failed"))
		return err
	}

	fmt.Println(styles.OK("model ready"))
	fmt.Println(styles.KV("model", path))
	return nil
}

// samplesDir is where training recordings live.
func samplesDir() string {
	return state.ModelsDir() + "-samples"
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgevoice/edgevoice/internal/assistant"
	"github.com/edgevoice/edgevoice/internal/audio"
	"github.com/edgevoice/edgevoice/internal/console"
	"github.com/edgevoice/edgevoice/internal/forward"
	"github.com/edgevoice/edgevoice/internal/models"
	"github.com/edgevoice/edgevoice/internal/observe"
	"github.com/edgevoice/edgevoice/internal/recognizer"
	"github.com/edgevoice/edgevoice/internal/state"
	"github.com/edgevoice/edgevoice/internal/wakeword"
)

type listenOptions struct {
	wakeWord       string
	endpoint       string
	threshold      float32
	silenceTimeout float64
	engine         string
	detector       string
	keywordFile    string
	sherpaDir      string
	device         string
	noSend         bool
}

var listenFlags listenOptions

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Listen for the wake word and forward commands",
	Long: `Run the voice pipeline: detect the wake word, capture the command
that follows, and forward each recognized sentence to the inference
endpoint.

Settings persist in the state file; flags override and update it.

Examples:
  edgevoice listen --keyword-file hey-edge.ppn
  edgevoice listen --wake-word "hey edge" --threshold 0.4
  edgevoice listen --detector sherpa --sherpa-dir ./kws-model
  edgevoice listen --engine whisper --no-send`,
	RunE: runListen,
}

func init() {
	f := listenCmd.Flags()
	f.StringVar(&listenFlags.wakeWord, "wake-word", "", "wake word phrase")
	f.StringVar(&listenFlags.endpoint, "endpoint", "", "inference endpoint URL")
	f.Float32Var(&listenFlags.threshold, "threshold", 0, "detection confidence threshold (0-1)")
	f.Float64Var(&listenFlags.silenceTimeout, "silence-timeout", 0, "seconds of silence that end a command")
	f.StringVar(&listenFlags.engine, "engine", "", "recognition engine (vosk or whisper)")
	f.StringVar(&listenFlags.detector, "detector", "porcupine", "wake word detector (porcupine or sherpa)")
	f.StringVar(&listenFlags.keywordFile, "keyword-file", "", "porcupine keyword file (.ppn)")
	f.StringVar(&listenFlags.sherpaDir, "sherpa-dir", "", "sherpa keyword spotter model directory")
	f.StringVar(&listenFlags.device, "device", "", "input device name or index")
	f.BoolVar(&listenFlags.noSend, "no-send", false, "recognize but do not forward transcripts")
	rootCmd.AddCommand(listenCmd)
}

// applyListenOverrides merges flags into the persisted state.
func applyListenOverrides(st *state.State) {
	if listenFlags.wakeWord != "" {
		st.WakeWord = listenFlags.wakeWord
	}
	if listenFlags.endpoint != "" {
		st.InferenceEndpoint = listenFlags.endpoint
	}
	if listenFlags.threshold > 0 {
		st.DetectionThreshold = listenFlags.threshold
	}
	if listenFlags.silenceTimeout > 0 {
		st.SilenceTimeoutSec = listenFlags.silenceTimeout
	}
	if listenFlags.engine != "" {
		st.RecognitionEngine = listenFlags.engine
	}
	if listenFlags.noSend {
		st.SendToInference = false
	}
}

func runListen(cmd *cobra.Command, args []string) error {
	st := store.State()
	applyListenOverrides(st)
	if st.WakeWord == "" {
		return fmt.Errorf("no wake word configured; use --wake-word or train one first")
	}
	if err := saveState(); err != nil {
		return err
	}

	shutdownMetrics, err := observe.InitProvider(cmd.Context(), "edgevoice", version)
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	capture, err := audio.New(log)
	if err != nil {
		return fmt.Errorf("initializing audio: %w", err)
	}
	defer capture.Close()

	scorer, err := buildScorer(st, listenFlags.detector, listenFlags.keywordFile, listenFlags.sherpaDir)
	if err != nil {
		return err
	}
	defer scorer.Close()

	engine, err := buildRecognizer(st, capture)
	if err != nil {
		return err
	}
	defer engine.Close()

	var forwarder assistant.Forwarder
	if st.SendToInference && st.InferenceEndpoint != "" {
		forwarder = forward.NewClient(forward.Config{
			Endpoint: st.InferenceEndpoint,
			WakeWord: st.WakeWord,
			Logger:   log,
		})
	}

	styles := console.Default
	var asst *assistant.Assistant

	session, err := wakeword.NewSession(wakeword.Config{
		Capture:   capture,
		Scorer:    scorer,
		Threshold: st.DetectionThreshold,
		DeviceID:  listenFlags.device,
		Logger:    log,
		Metrics:   observe.Default(),
		OnDetection: func(d wakeword.Detection) {
			asst.Notify(d)
		},
	})
	if err != nil {
		return err
	}

	asst, err = assistant.New(assistant.Config{
		Session:    session,
		Recognizer: engine,
		Forwarder:  forwarder,
		RecognizeOpts: recognizer.Options{
			SilenceTimeout: st.SilenceTimeout(),
		},
		OnDetection: func(d wakeword.Detection) {
			fmt.Println(styles.DetectionBanner(d.Model, d.Confidence))
		},
		OnSentence: func(sentence string) {
			fmt.Println(styles.KV("heard", sentence))
		},
		OnReply: func(reply string) {
			fmt.Println(styles.Panel("assistant", reply))
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	fmt.Println(styles.Header("EdgeVoice"))
	fmt.Println(styles.KV("wake word", st.WakeWord))
	fmt.Println(styles.KV("threshold", fmt.Sprintf("%.2f", st.DetectionThreshold)))
	fmt.Println(styles.KV("recognizer", st.RecognitionEngine))
	if forwarder != nil {
		fmt.Println(styles.KV("endpoint", st.InferenceEndpoint))
	} else {
		fmt.Println(styles.Warning("forwarding disabled"))
	}
	fmt.Println(styles.Help.Render("Press Ctrl+C to stop."))

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runErr := asst.Run(ctx)

	sdCtx, sdCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer sdCancel()
	if err := shutdownMetrics(sdCtx); err != nil {
		log.Warn().Err(err).Msg("Metrics shutdown")
	}
	return runErr
}

// buildScorer picks the detection engine from flags and state.
func buildScorer(st *state.State, detector, keywordFile, sherpaDir string) (wakeword.Scorer, error) {
	switch strings.ToLower(detector) {
	case "porcupine":
		keyword := keywordFile
		if keyword == "" && strings.HasSuffix(st.ModelPath, ".ppn") {
			keyword = st.ModelPath
		}
		if keyword == "" {
			if strings.HasSuffix(st.ModelPath, ".onnx") {
				return nil, fmt.Errorf("trained model %s is an openWakeWord network, which no built-in detector loads; detection needs a porcupine keyword file (--keyword-file) or a sherpa model directory (--sherpa-dir)", st.ModelPath)
			}
			return nil, fmt.Errorf("porcupine needs a keyword file; use --keyword-file")
		}
		return wakeword.NewPorcupineScorer(state.Normalize(st.WakeWord), "", keyword)
	case "sherpa":
		if sherpaDir == "" {
			return nil, fmt.Errorf("sherpa needs a model directory; use --sherpa-dir")
		}
		return wakeword.NewSherpaScorer(wakeword.SherpaConfig{
			ModelDir: sherpaDir,
			Keywords: []string{st.WakeWord},
		})
	default:
		return nil, fmt.Errorf("unknown detector %q; supported: porcupine, sherpa", detector)
	}
}

// buildRecognizer constructs the speech engine named in state, downloading
// the Vosk model on first use.
func buildRecognizer(st *state.State, capture audio.Capture) (recognizer.Engine, error) {
	switch strings.ToLower(st.RecognitionEngine) {
	case "", "vosk":
		modelPath := st.VoskModelPath
		if modelPath == "" {
			var err error
			modelPath, err = models.Ensure("vosk-small-en-us", state.ModelsDir(), log)
			if err != nil {
				return nil, fmt.Errorf("fetching vosk model: %w", err)
			}
			st.VoskModelPath = modelPath
			if err := saveState(); err != nil {
				return nil, err
			}
		}
		return recognizer.NewVosk(modelPath, capture, log)
	case "whisper":
		modelPath, err := models.Ensure("whisper-base.en", state.ModelsDir(), log)
		if err != nil {
			return nil, fmt.Errorf("fetching whisper model: %w", err)
		}
		return recognizer.NewWhisper(recognizer.WhisperConfig{ModelPath: modelPath}, capture, log)
	default:
		return nil, fmt.Errorf("unknown recognition engine %q; supported: vosk, whisper", st.RecognitionEngine)
	}
}

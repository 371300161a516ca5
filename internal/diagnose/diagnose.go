// Package diagnose probes a trained wake word model by listening at a
// sweep of thresholds and reporting how confidently the model fires.
package diagnose

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgevoice/edgevoice/internal/audio"
	"github.com/edgevoice/edgevoice/internal/wakeword"
)

// defaultThresholds is the sweep used when none is configured.
var defaultThresholds = []float32{0.2, 0.3, 0.4, 0.5, 0.6}

// ThresholdResult summarizes one listening window.
type ThresholdResult struct {
	Threshold     float32
	Detections    int
	AvgConfidence float32
}

// Report is the outcome of a full sweep.
type Report struct {
	WakeWord string
	Results  []ThresholdResult
}

// Recommendation interprets the sweep for the user.
func (r Report) Recommendation() string {
	var strongest float32 = -1
	total := 0
	for _, res := range r.Results {
		total += res.Detections
		if res.Detections > 0 && res.Threshold > strongest {
			strongest = res.Threshold
		}
	}

	var b strings.Builder
	switch {
	case total == 0:
		b.WriteString("No detections at any threshold. The model needs retraining ")
		b.WriteString("with more samples. Try 10-15 recordings and speak clearly ")
		b.WriteString("and consistently.")
	case strongest < 0.4:
		fmt.Fprintf(&b, "The model fires only up to threshold %.1f. It works but is weak. ", strongest)
		b.WriteString("Lower the detection threshold to 0.3, or retrain with more samples.")
	default:
		fmt.Fprintf(&b, "The model fires up to threshold %.1f. It is working well; ", strongest)
		b.WriteString("the default threshold of 0.5 should be fine.")
	}
	return b.String()
}

// Config wires a diagnostic run.
type Config struct {
	Capture  audio.Capture
	Scorer   wakeword.Scorer
	WakeWord string

	// Thresholds is the sweep. Defaults to 0.2 through 0.6.
	Thresholds []float32

	// ListenFor is the listening window per threshold. Default 10s.
	ListenFor time.Duration

	// Pause between windows so the speaker can reset. Default 1s.
	Pause time.Duration

	// OnWindow is called before each window starts, for CLI prompting.
	OnWindow func(threshold float32)

	// OnDetection is called for every detection during a window.
	OnDetection func(confidence float32)

	Logger zerolog.Logger
}

// Run executes the sweep. The capture handle is started and stopped once
// per threshold window.
func Run(ctx context.Context, cfg Config) (Report, error) {
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = defaultThresholds
	}
	if cfg.ListenFor <= 0 {
		cfg.ListenFor = 10 * time.Second
	}
	if cfg.Pause <= 0 {
		cfg.Pause = time.Second
	}
	log := cfg.Logger.With().Str("component", "diagnose").Logger()

	report := Report{WakeWord: cfg.WakeWord}
	for i, threshold := range cfg.Thresholds {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if cfg.OnWindow != nil {
			cfg.OnWindow(threshold)
		}

		result, err := runWindow(ctx, cfg, threshold, log)
		if err != nil {
			return report, fmt.Errorf("threshold %.1f: %w", threshold, err)
		}
		report.Results = append(report.Results, result)

		log.Info().
			Float32("threshold", threshold).
			Int("detections", result.Detections).
			Float32("avg_confidence", result.AvgConfidence).
			Msg("Window complete")

		if i < len(cfg.Thresholds)-1 {
			select {
			case <-time.After(cfg.Pause):
			case <-ctx.Done():
				return report, ctx.Err()
			}
		}
	}
	return report, nil
}

func runWindow(ctx context.Context, cfg Config, threshold float32, log zerolog.Logger) (ThresholdResult, error) {
	var (
		mu          sync.Mutex
		confidences []float32
	)

	session, err := wakeword.NewSession(wakeword.Config{
		Capture:   cfg.Capture,
		Scorer:    cfg.Scorer,
		Threshold: threshold,
		Logger:    log,
		OnDetection: func(d wakeword.Detection) {
			mu.Lock()
			confidences = append(confidences, d.Confidence)
			mu.Unlock()
			if cfg.OnDetection != nil {
				cfg.OnDetection(d.Confidence)
			}
		},
	})
	if err != nil {
		return ThresholdResult{}, err
	}

	if err := session.Start(); err != nil {
		return ThresholdResult{}, err
	}

	select {
	case <-time.After(cfg.ListenFor):
	case <-ctx.Done():
	}

	if err := session.Stop(); err != nil {
		return ThresholdResult{}, err
	}

	mu.Lock()
	defer mu.Unlock()
	result := ThresholdResult{Threshold: threshold, Detections: len(confidences)}
	if len(confidences) > 0 {
		var sum float32
		for _, c := range confidences {
			sum += c
		}
		result.AvgConfidence = sum / float32(len(confidences))
	}
	return result, ctx.Err()
}

package diagnose

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgevoice/edgevoice/internal/audio"
	"github.com/edgevoice/edgevoice/internal/wakeword"
)

// feedCapture pushes frames continuously while started.
type feedCapture struct{}

func (c *feedCapture) Start(ctx context.Context, _ string, out chan<- audio.Frame) error {
	go func() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- make(audio.Frame, audio.FrameSize):
				default:
				}
			}
		}
	}()
	return nil
}

func (c *feedCapture) Stop() error                          { return nil }
func (c *feedCapture) Close() error                         { return nil }
func (c *feedCapture) ListDevices() ([]audio.Device, error) { return nil, nil }

// fixedScorer always reports the same confidence.
type fixedScorer struct {
	confidence float32
}

func (s *fixedScorer) Score(audio.Frame) (wakeword.ScoreMap, error) {
	return wakeword.ScoreMap{"hey_edge": s.confidence}, nil
}

func (s *fixedScorer) Models() []string { return []string{"hey_edge"} }
func (s *fixedScorer) Close() error     { return nil }

func quickConfig(confidence float32, thresholds []float32) Config {
	return Config{
		Capture:    &feedCapture{},
		Scorer:     &fixedScorer{confidence: confidence},
		WakeWord:   "hey edge",
		Thresholds: thresholds,
		ListenFor:  30 * time.Millisecond,
		Pause:      time.Millisecond,
		Logger:     zerolog.Nop(),
	}
}

func TestRunSweepRespectsThresholds(t *testing.T) {
	// Confidence 0.45 fires at 0.2-0.4 but not at 0.5-0.6.
	report, err := Run(context.Background(), quickConfig(0.45, []float32{0.4, 0.5}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(report.Results))
	}
	if report.Results[0].Detections == 0 {
		t.Error("no detections at threshold 0.4 with confidence 0.45")
	}
	if report.Results[1].Detections != 0 {
		t.Errorf("detections at threshold 0.5 with confidence 0.45: %d", report.Results[1].Detections)
	}
	if avg := report.Results[0].AvgConfidence; avg < 0.44 || avg > 0.46 {
		t.Errorf("avg confidence = %v", avg)
	}
}

func TestRunHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, quickConfig(0.9, nil))
	if err == nil {
		t.Fatal("Run ignored a cancelled context")
	}
}

func TestRecommendationNoDetections(t *testing.T) {
	r := Report{Results: []ThresholdResult{{Threshold: 0.2}, {Threshold: 0.5}}}
	if got := r.Recommendation(); !strings.Contains(got, "retraining") {
		t.Errorf("recommendation = %q", got)
	}
}

func TestRecommendationWeakModel(t *testing.T) {
	r := Report{Results: []ThresholdResult{
		{Threshold: 0.2, Detections: 3},
		{Threshold: 0.3, Detections: 1},
		{Threshold: 0.5, Detections: 0},
	}}
	if got := r.Recommendation(); !strings.Contains(got, "weak") {
		t.Errorf("recommendation = %q", got)
	}
}

func TestRecommendationHealthyModel(t *testing.T) {
	r := Report{Results: []ThresholdResult{
		{Threshold: 0.4, Detections: 2},
		{Threshold: 0.5, Detections: 2},
	}}
	if got := r.Recommendation(); !strings.Contains(got, "working well") {
		t.Errorf("recommendation = %q", got)
	}
}

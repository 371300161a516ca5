package wakeword

import (
	"fmt"
	"path/filepath"
	"strings"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/edgevoice/edgevoice/internal/audio"
)

// SherpaScorer scores frames with the sherpa-onnx keyword spotter. Like
// Porcupine it reports keyword hits rather than raw confidences, so a hit
// maps to 1.0 for the matched keyword.
type SherpaScorer struct {
	keywords []string
	spotter  *sherpa.KeywordSpotter
	stream   *sherpa.OnlineStream
}

// SherpaConfig locates the transducer model files and keyword list.
type SherpaConfig struct {
	// ModelDir contains encoder.onnx, decoder.onnx, joiner.onnx and tokens.txt.
	ModelDir string

	// Keywords are the wake phrases to spot, one per line in sherpa's
	// keyword format.
	Keywords []string

	// Threshold is sherpa's internal spotting sensitivity (0-1, lower is
	// more sensitive). This is separate from the session threshold, which
	// applies to the 0/1 confidence this scorer reports.
	Threshold float32

	NumThreads int
}

// NewSherpaScorer creates a keyword-spotting scorer.
func NewSherpaScorer(cfg SherpaConfig) (*SherpaScorer, error) {
	if len(cfg.Keywords) == 0 {
		return nil, fmt.Errorf("sherpa: at least one keyword is required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.25
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 2
	}

	config := sherpa.KeywordSpotterConfig{}
	config.FeatConfig.SampleRate = audio.SampleRate
	config.FeatConfig.FeatureDim = 80
	config.ModelConfig.Transducer.Encoder = filepath.Join(cfg.ModelDir, "encoder.onnx")
	config.ModelConfig.Transducer.Decoder = filepath.Join(cfg.ModelDir, "decoder.onnx")
	config.ModelConfig.Transducer.Joiner = filepath.Join(cfg.ModelDir, "joiner.onnx")
	config.ModelConfig.Tokens = filepath.Join(cfg.ModelDir, "tokens.txt")
	config.ModelConfig.NumThreads = cfg.NumThreads
	config.ModelConfig.Provider = "cpu"
	config.KeywordsBuf = strings.Join(cfg.Keywords, "\n")
	config.KeywordsThreshold = cfg.Threshold

	spotter := sherpa.NewKeywordSpotter(&config)
	if spotter == nil {
		return nil, fmt.Errorf("sherpa: failed to create keyword spotter from %s", cfg.ModelDir)
	}

	stream := sherpa.NewKeywordStream(spotter)
	if stream == nil {
		sherpa.DeleteKeywordSpotter(spotter)
		return nil, fmt.Errorf("sherpa: failed to create keyword stream")
	}

	return &SherpaScorer{
		keywords: cfg.Keywords,
		spotter:  spotter,
		stream:   stream,
	}, nil
}

func (s *SherpaScorer) Score(frame audio.Frame) (ScoreMap, error) {
	s.stream.AcceptWaveform(audio.SampleRate, audio.ToFloat32(frame))

	scores := make(ScoreMap, len(s.keywords))
	for _, kw := range s.keywords {
		scores[kw] = 0
	}

	for s.spotter.IsReady(s.stream) {
		s.spotter.Decode(s.stream)
		result := s.spotter.GetResult(s.stream)
		if result.Keyword != "" {
			scores[result.Keyword] = 1
			s.spotter.Reset(s.stream)
		}
	}

	return scores, nil
}

func (s *SherpaScorer) Models() []string {
	return s.keywords
}

func (s *SherpaScorer) Close() error {
	if s.stream != nil {
		sherpa.DeleteOnlineStream(s.stream)
		s.stream = nil
	}
	if s.spotter != nil {
		sherpa.DeleteKeywordSpotter(s.spotter)
		s.spotter = nil
	}
	return nil
}

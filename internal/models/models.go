// Package models downloads and verifies the speech models the daemon
// depends on: Vosk recognizer archives and whisper.cpp weights.
package models

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Spec describes one downloadable model.
type Spec struct {
	URL string

	// Archive marks zip downloads that extract into Dir.
	Archive bool

	// Dir is the directory the archive unpacks to, relative to the
	// models directory. Empty for single-file models.
	Dir string

	// Marker is a file that must exist after install, relative to the
	// model path. Used to detect broken installs.
	Marker string

	// File overrides the installed filename for single-file models.
	// Empty means "<name>.bin".
	File string
}

// Model download URLs.
var known = map[string]Spec{
	"vosk-small-en-us": {
		URL:     "https://alphacephei.com/vosk/models/vosk-model-small-en-us-0.15.zip",
		Archive: true,
		Dir:     "vosk-model-small-en-us-0.15",
		Marker:  filepath.Join("am", "final.mdl"),
	},
	"vosk-en-us": {
		URL:     "https://alphacephei.com/vosk/models/vosk-model-en-us-0.22.zip",
		Archive: true,
		Dir:     "vosk-model-en-us-0.22",
		Marker:  filepath.Join("am", "final.mdl"),
	},
	"whisper-base.en": {
		URL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.en.bin",
	},
	"whisper-small.en": {
		URL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.en.bin",
	},
	// Base feature extractors shared by all trained wake word models.
	"openwakeword-melspectrogram": {
		URL:  "https://github.com/dscripka/openWakeWord/releases/download/v0.5.1/melspectrogram.onnx",
		File: "melspectrogram.onnx",
	},
	"openwakeword-embedding": {
		URL:  "https://github.com/dscripka/openWakeWord/releases/download/v0.5.1/embedding_model.onnx",
		File: "embedding_model.onnx",
	},
}

// Known returns the downloadable model names, sorted.
func Known() []string {
	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path returns where a model lives under destDir once installed.
func Path(name, destDir string) (string, error) {
	spec, ok := known[name]
	if !ok {
		return "", fmt.Errorf("unknown model: %s", name)
	}
	if spec.Archive {
		return filepath.Join(destDir, spec.Dir), nil
	}
	if spec.File != "" {
		return filepath.Join(destDir, spec.File), nil
	}
	return filepath.Join(destDir, name+".bin"), nil
}

// Installed reports whether a model is present and looks intact.
func Installed(name, destDir string) bool {
	spec, ok := known[name]
	if !ok {
		return false
	}
	path, _ := Path(name, destDir)
	if spec.Marker != "" {
		path = filepath.Join(path, spec.Marker)
	}
	_, err := os.Stat(path)
	return err == nil
}

// Ensure downloads and installs a model if it is not already present,
// returning the model path.
func Ensure(name, destDir string, log zerolog.Logger) (string, error) {
	spec, ok := known[name]
	if !ok {
		return "", fmt.Errorf("unknown model: %s", name)
	}
	path, _ := Path(name, destDir)

	if Installed(name, destDir) {
		log.Debug().Str("model", name).Str("path", path).Msg("Model already installed")
		return path, nil
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create models directory: %w", err)
	}

	if !spec.Archive {
		if err := download(name, spec.URL, path, log); err != nil {
			return "", err
		}
		return path, nil
	}

	tmpZip := filepath.Join(destDir, name+".zip.tmp")
	defer os.Remove(tmpZip)
	if err := download(name, spec.URL, tmpZip, log); err != nil {
		return "", err
	}
	if err := extractZip(tmpZip, destDir); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", name, err)
	}
	if !Installed(name, destDir) {
		return "", fmt.Errorf("model %s extracted but marker file is missing", name)
	}

	log.Info().Str("model", name).Str("path", path).Msg("Model installed")
	return path, nil
}

// progressWriter tracks download progress for log output.
type progressWriter struct {
	total      int64
	downloaded int64
	lastLog    time.Time
	model      string
	log        zerolog.Logger
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.downloaded += int64(n)

	// Log progress every 2 seconds or when complete
	now := time.Now()
	if now.Sub(pw.lastLog) >= 2*time.Second || pw.downloaded >= pw.total {
		pw.lastLog = now
		percent := float64(pw.downloaded) / float64(pw.total) * 100
		pw.log.Info().
			Str("model", pw.model).
			Float64("percent", percent).
			Float64("downloaded_mb", float64(pw.downloaded)/1024/1024).
			Float64("total_mb", float64(pw.total)/1024/1024).
			Msg("Downloading model")
	}

	return n, nil
}

// download fetches a URL into destPath via a temp file.
func download(model, url, destPath string, log zerolog.Logger) error {
	tmpPath := destPath + ".part"
	defer os.Remove(tmpPath)

	log.Info().Str("model", model).Str("url", url).Msg("Starting model download")

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download model: HTTP %d", resp.StatusCode)
	}

	totalSize := resp.ContentLength
	if totalSize <= 0 {
		log.Warn().Str("model", model).Msg("Content-Length not provided, progress tracking unavailable")
	}

	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer out.Close()

	var writer io.Writer = out
	if totalSize > 0 {
		writer = io.MultiWriter(out, &progressWriter{
			total:   totalSize,
			model:   model,
			lastLog: time.Now(),
			log:     log,
		})
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush model file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to move model file: %w", err)
	}

	log.Info().
		Str("model", model).
		Str("path", destPath).
		Float64("size_mb", float64(totalSize)/1024/1024).
		Msg("Model downloaded successfully")

	return nil
}

// extractZip unpacks an archive into destDir, rejecting entries that
// escape it.
func extractZip(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return err
	}
	return out.Close()
}

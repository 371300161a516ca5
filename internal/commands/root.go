// Package commands implements the edgevoice CLI.
package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edgevoice/edgevoice/internal/logging"
	"github.com/edgevoice/edgevoice/internal/state"
)

// version is stamped at release time.
const version = "1.0.0"

var (
	// Global flags
	statePath string
	logLevel  string

	// Initialized by the persistent pre-run for every command.
	log   zerolog.Logger
	store *state.Store
)

var rootCmd = &cobra.Command{
	Use:   "edgevoice",
	Short: "Voice-activated assistant pipeline",
	Long: `edgevoice - wake word detection, speech recognition and forwarding.

The daemon listens continuously for a wake word, captures the command
that follows it, and ships the transcript to an inference endpoint for
reasoning.

Common workflows:
  # Listen with a porcupine keyword file
  edgevoice listen --keyword-file hey-edge.ppn

  # Train an openWakeWord model for a new wake word
  edgevoice train --wake-word "hey edge"

  # Run the inference agent the transcripts are forwarded to
  edgevoice agent

  # Check the microphone and the model
  edgevoice mic-test
  edgevoice diagnose

State is stored in the OS config directory:
  macOS:   ~/Library/Application Support/edgevoice/
  Linux:   ~/.config/edgevoice/
  Windows: %AppData%/edgevoice/`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A .env in the working directory may carry engine access keys.
		godotenv.Load()

		log = logging.NewWithLevel(logLevel)
		if statePath == "" {
			statePath = state.DefaultPath()
		}
		store = state.Open(statePath, log)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "", "state file path (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

// saveState persists the store, wrapping the error for command output.
func saveState() error {
	if err := store.Save(); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

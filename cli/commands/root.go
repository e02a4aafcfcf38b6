// Package commands implements the manimate command line client.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool

	// Run options shared by generate and local
	quality     string
	voice       string
	theme       string
	sceneName   string
	maxAttempts int
	pdfPath     string
)

var rootCmd = &cobra.Command{
	Use:   "manimate",
	Short: "Turn a topic into a narrated animation",
	Long: `manimate - generate narrated Manim animations from a topic.

Commands:
  generate   run on a manimate server over its WebSocket
  local      run the pipeline in this process

Examples:
  # Against a running server
  manimate generate "the pythagorean theorem" --addr ws://localhost:8080/ws

  # Explain an uploaded PDF
  manimate generate --pdf lecture.pdf

  # Offline, with mock back ends
  MANIMATE_MODE=MOCK manimate local "binary search" --quality medium_quality`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// topicOrPDF accepts a missing topic when --pdf names a document.
func topicOrPDF(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && pdfPath == "" {
		return fmt.Errorf("requires a topic or --pdf")
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print event payloads")
	rootCmd.PersistentFlags().StringVarP(&quality, "quality", "q", "", "render quality: low_quality, medium_quality, high_quality or production_quality")
	rootCmd.PersistentFlags().StringVar(&voice, "voice", "", "narration voice")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "", "visual theme: default, dark or playful")
	rootCmd.PersistentFlags().StringVar(&sceneName, "scene", "", "scene class name (derived from the topic by default)")
	rootCmd.PersistentFlags().IntVar(&maxAttempts, "max-attempts", 0, "render attempts before giving up")
	rootCmd.PersistentFlags().StringVar(&pdfPath, "pdf", "", "PDF under the server's PDF_DIR to explain instead of a topic")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(localCmd)
}

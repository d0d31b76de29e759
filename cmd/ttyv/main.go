package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "ttyv",
	Short:   "Talk to your videos: RAG chatbot over a YouTube channel's transcripts",
	Version: version,
	Long: `ttyv fetches a YouTube channel's transcripts, builds a local vector
index over them, and answers questions grounded in the videos, with
source citations.

Typical flow:
  ttyv fetch --channel UC...     # list videos and fetch transcripts
  ttyv build                     # chunk, embed, and index them
  ttyv serve                     # HTTP API + MCP server
  ttyv ask "¿Qué visitó Luisito en China?"`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

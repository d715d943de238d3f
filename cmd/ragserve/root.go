package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragstack/ragserve/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "ragserve",
	Short: "ragserve - document Q&A service",
	Long: `ragserve ingests documents into a vector index and answers questions
about them with citations back to the exact page or line range. It runs
against a local Ollama instance by default, or OpenAI-compatible APIs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ragserve version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path (default: $RAG_CONFIG or ./config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}

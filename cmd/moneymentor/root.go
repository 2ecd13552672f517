package main

import (
	"github.com/spf13/cobra"

	"moneymentor/internal/logger"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "moneymentor",
		Short:         "Financial question answering over a local knowledge base",
		Long:          `MoneyMentor indexes financial documents and answers questions with hybrid retrieval, reranking and a growth calculator.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, asJSON, source, err := logger.GetLoggerConfig(cmd)
			if err != nil {
				return err
			}
			return logger.SetupLogger(level, asJSON, source)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	rootCmd.AddCommand(
		NewIndexCmd(),
		NewExtractCmd(),
		NewRetrieveCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewTUICmd(),
		NewEvalCmd(),
		NewInfoCmd(),
	)
	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "Path to YAML config file (defaults to ./config.yaml or ~/.config/moneymentor/config.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug|info|warn|error|disabled)")
	cmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
	cmd.PersistentFlags().Bool("log-source", false, "Include source locations in logs")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
}

// addRetrievalFlags registers --mode and -k on commands that retrieve.
func addRetrievalFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "Retrieval mode (fast|quality); defaults to the configured mode")
	cmd.Flags().IntP("k", "k", 0, "Number of chunks to return (1-20); defaults to the configured final_k")
}

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "smartassist",
	Short: "Knowledge-base assistant service",
	Long: `smartassist ingests documents into a searchable knowledge base and
answers questions against it using retrieval-augmented generation.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	settingDefaultConfig()
}

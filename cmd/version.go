package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the steel-llama version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("steel-llama", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

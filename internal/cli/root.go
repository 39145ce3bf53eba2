package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
)

var rootCmd = &cobra.Command{
	Use:   "roadmap",
	Short: "Review-guide generator for pull requests",
	Long:  "Roadmap analyzes a pull request and generates a structured Markdown review guide: what the change does, in what order to read it, and where to look closely.",
}

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print roadmap version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "roadmap version %s\n", version)
	},
}

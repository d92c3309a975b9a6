package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	protocol string
	variant  string
	logLevel string
}

var rootCmd = &cobra.Command{
	Use:   "interview-sim",
	Short: "Simulated qualitative research interviews between two language models",
	Long: "interview-sim runs scripted interviews in which one model plays the\n" +
		"interviewer and another plays a respondent persona, and records each\n" +
		"conversation as a transcript with a timing file.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.protocol, "protocol", "", "Protocol YAML file (default: embedded protocol, or $INTERVIEW_PROTOCOL_FILE)")
	pf.StringVar(&rootFlags.variant, "variant", "", "Protocol variant (default: the protocol's default, or $INTERVIEW_VARIANT)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (default $LOG_LEVEL or info)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

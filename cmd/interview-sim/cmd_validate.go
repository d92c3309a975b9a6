package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/capitalize-ai/interview-sim/internal/config"
	"github.com/capitalize-ai/interview-sim/internal/llm"
)

var validateCmd = &cobra.Command{
	Use:   "validate [protocol.yaml...]",
	Short: "Check protocol files and summarise their variants",
	Long: "Parse and validate each protocol file. With no arguments the\n" +
		"configured protocol (or the embedded default) is checked.",
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		paths = []string{loadConfig().ProtocolFile}
	}

	out := cmd.OutOrStdout()
	var errs error
	for _, path := range paths {
		name := path
		if name == "" {
			name = "(embedded)"
		}

		p, err := config.LoadProtocol(path)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			fmt.Fprintf(out, "%s: INVALID\n", name)
			continue
		}

		fmt.Fprintf(out, "%s: ok\n", name)
		for _, vn := range p.Names() {
			v, err := p.Variant(vn)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				continue
			}
			provider, err := llm.DetectProvider(v.Model)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: variant %s: %w", name, vn, err))
				continue
			}
			fmt.Fprintf(out, "  %s: model=%s (%s) personas=%d max_turns=%d codes=%d retries=%d\n",
				vn, v.Model, provider, len(v.Personas), v.MaxTurns, len(v.Codes), len(v.RetryDelays))
		}
	}
	return errs
}

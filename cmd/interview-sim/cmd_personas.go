package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/interview-sim/internal/transcript"
)

var personasFlags struct {
	repeat int
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the personas of a protocol variant and their recording state",
	RunE:  runPersonas,
}

func init() {
	f := personasCmd.Flags()
	f.IntVar(&personasFlags.repeat, "repeat", 0, "Interviews per persona (default from protocol)")
}

func runPersonas(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	variant, err := loadVariant(cfg)
	if err != nil {
		return err
	}
	recorder := newRecorder(cfg)
	repeat := firstPositive(personasFlags.repeat, variant.InterviewsPerPersona, 1)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Variant: %s (%d personas, %d interviews each)\n\n", variant.Name, len(variant.Personas), repeat)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERSONA\tIDENTITY\tRECORDED")
	for _, p := range variant.Personas {
		for n := 1; n <= repeat; n++ {
			id := transcript.Identity(p.Name, n)
			recorded := "no"
			if recorder.Exists(id) {
				recorded = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, id, recorded)
		}
	}
	return tw.Flush()
}

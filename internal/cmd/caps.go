package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/contendwatch/internal/agent"
	"github.com/Iron-Ham/contendwatch/internal/report"
	"github.com/Iron-Ham/contendwatch/internal/vm/sim"
)

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "Show the runtime's potential and granted capabilities",
	Long: `Caps negotiates capabilities with a fresh simulated runtime the same way
a run does and prints what the runtime offered and what it granted.
It fails when monitor contention events cannot be generated.`,
	Args: cobra.NoArgs,
	RunE: runCaps,
}

func init() {
	rootCmd.AddCommand(capsCmd)
}

func runCaps(cmd *cobra.Command, args []string) error {
	n, negotiateErr := agent.NewGate(sim.New(), nil, nil).Negotiate()
	out := cmd.OutOrStdout()
	if err := report.WriteCapabilities(out, n, isTerminal(out)); err != nil {
		return err
	}
	return negotiateErr
}

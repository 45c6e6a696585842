package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/FaceGate/internal/actuator"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and show which one the lock would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := actuator.SystemPorts()
			if err != nil {
				return fmt.Errorf("failed to list serial ports: %w", err)
			}
			printPorts(cmd.OutOrStdout(), ports, cfg.Actuator.MatchPatterns)
			return nil
		},
	}
}

func printPorts(out io.Writer, ports []actuator.PortInfo, patterns []string) {
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found.")
		return
	}

	chosen, found := actuator.Match(ports, patterns)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "\tPORT\tDESCRIPTION\tVID:PID")
	for _, p := range ports {
		mark := ""
		if found && p.Name == chosen.Name {
			mark = "*"
		}
		ids := ""
		if p.IsUSB {
			ids = p.VID + ":" + p.PID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark, p.Name, p.Description(), ids)
	}
	_ = w.Flush()

	if !found {
		fmt.Fprintln(out, "\nNo port matches the configured patterns; facegate would run in simulation mode.")
	}
}

func init() {
	rootCmd.AddCommand(newPortsCmd())
}

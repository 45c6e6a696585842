package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/FaceGate/internal/embedding"
)

func newHistoryCmd() *cobra.Command {
	var (
		name  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent access events",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := embedding.NewStore(cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			events, err := store.RecentEvents(name, limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), events)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Only show events for this person")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")

	return cmd
}

func printHistory(out io.Writer, events []embedding.EventRecord) error {
	if len(events) == 0 {
		fmt.Fprintln(out, "No access events recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tOUTCOME\tNAME\tCONFIDENCE\tACTION\tACTUATION\tDOOR")
	fmt.Fprintln(w, "----\t-------\t----\t----------\t------\t---------\t----")
	for _, ev := range events {
		label := ev.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f%%\t%s\t%s\t%s\n",
			ev.OccurredAt.Local().Format("2006-01-02 15:04:05"), ev.Outcome, label, ev.Confidence,
			ev.Action, ev.Actuation, ev.DoorState)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(newHistoryCmd())
}

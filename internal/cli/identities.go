package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/FaceGate/internal/embedding"
)

func newIdentitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "identities",
		Aliases: []string{"people"},
		Short:   "Manage enrolled people",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List enrolled people",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := embedding.NewStore(cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			people, err := store.ListPeople()
			if err != nil {
				return err
			}
			return printPeople(cmd.OutOrStdout(), people)
		},
	})

	var yes bool
	deleteCmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Remove an enrolled person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			store, err := embedding.NewStore(cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if _, err := store.GetPerson(name); err != nil {
				return err
			}

			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
				fmt.Sprintf("Delete enrollment for '%s'? [y/N]: ", name)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled.")
				return nil
			}

			if err := store.DeletePerson(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "'%s' deleted.\n", name)
			return nil
		},
	}
	deleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.AddCommand(deleteCmd)

	return cmd
}

func printPeople(out io.Writer, people []embedding.Person) error {
	if len(people) == 0 {
		fmt.Fprintln(out, "No enrolled people found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tSAMPLES\tLAST SEEN\tACCESSES\tSTATUS")
	fmt.Fprintln(w, "----\t-------\t---------\t--------\t------")
	for _, p := range people {
		lastSeen := "never"
		if p.LastSeenAt != nil {
			lastSeen = p.LastSeenAt.Local().Format("2006-01-02 15:04")
		}
		status := "active"
		if !p.Active {
			status = "inactive"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n", p.Name, len(p.Embeddings), lastSeen, p.AccessCount, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTotal: %d\n", len(people))
	return nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func init() {
	rootCmd.AddCommand(newIdentitiesCmd())
}

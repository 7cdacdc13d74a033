package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, most recent first",
		Example: `  # Last twenty runs
  flotilla history list --history flotilla.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if historyPath == "" {
				return fmt.Errorf("--history is required")
			}
			store, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}

			for _, run := range runs {
				kind := "run"
				if run.DryRun {
					kind = "plan"
				}
				fmt.Printf("%s  %-19s %-4s %-10s %s [%s]\n",
					run.ID,
					run.StartedAt.Format("2006-01-02 15:04:05"),
					kind,
					run.Status,
					run.Playbook,
					run.PlayName,
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the task results and recap of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if historyPath == "" {
				return fmt.Errorf("--history is required")
			}
			store, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Run %s: %s [%s] strategy=%s status=%s\n",
				run.ID, run.Playbook, run.PlayName, run.Strategy, run.Status)

			results, err := store.ListResults(ctx, run.ID)
			if err != nil {
				return err
			}
			for _, rec := range results {
				line := fmt.Sprintf("%-8s [%s] %s", rec.Status, rec.Host, rec.Task)
				if rec.Msg != "" {
					line += ": " + rec.Msg
				}
				fmt.Println(line)
			}

			recap, err := store.GetRecap(ctx, run.ID)
			if err != nil {
				return err
			}
			if len(recap) > 0 {
				fmt.Println("\nPLAY RECAP")
				for _, sum := range recap {
					fmt.Printf("%-24s ok=%d changed=%d failed=%d skipped=%d unreachable=%d\n",
						sum.Host, sum.OK, sum.Changed, sum.Failed, sum.Skipped, sum.Unreachable)
				}
			}
			return nil
		},
	}

	return cmd
}

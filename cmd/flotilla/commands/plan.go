package commands

import (
	"time"

	"github.com/spf13/cobra"
)

func newPlanCommand() *cobra.Command {
	var (
		taskTimeout time.Duration
		strategy    string
	)

	cmd := &cobra.Command{
		Use:   "plan <playbook>",
		Short: "Show what a playbook run would do",
		Long: `Resolve a playbook without touching any connection.

Variables, guards, delegation and includes resolve exactly as a real run
would; tasks that need a connection are reported instead of executed.
Local modules like set_fact still run, so later guards see the same
variable state as a real run.`,
		Example: `  # Preview a playbook
  flotilla plan site.yaml

  # Preview with production variables
  flotilla plan site.yaml -e env=prod`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executePlaybook(cmd.Context(), args[0], true, taskTimeout, strategy)
		},
	}

	cmd.Flags().DurationVar(&taskTimeout, "task-timeout", 0, "per-task execution timeout (0 disables)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "override play strategy (linear, free, host_pinned)")

	return cmd
}

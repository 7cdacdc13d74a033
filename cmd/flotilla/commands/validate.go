package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/flotilla-run/flotilla/pkg/modules"
	"github.com/flotilla-run/flotilla/pkg/play"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <playbook>",
		Short: "Validate a playbook without executing it",
		Long: `Check a playbook's structure: every play declares hosts and tasks,
every task names a known module, include forms carry a file argument,
and delegate_facts only appears together with delegate_to.`,
		Example: `  # Validate a playbook
  flotilla validate site.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plays, err := play.LoadPlaybook(args[0])
			if err != nil {
				return err
			}

			registry := modules.NewRegistry()
			for _, pl := range plays {
				if err := play.Validate(pl, registry.Known); err != nil {
					return err
				}
				log.Debug().Str("play", pl.Name).Int("tasks", len(pl.Tasks)).Msg("Play is valid")
			}

			fmt.Printf("%s: %d play(s) valid\n", args[0], len(plays))
			return nil
		},
	}

	return cmd
}

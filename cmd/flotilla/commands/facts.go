package commands

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/flotilla-run/flotilla/pkg/inventory"
	"github.com/flotilla-run/flotilla/pkg/modules"
	"github.com/flotilla-run/flotilla/pkg/pool"
	ssh "github.com/flotilla-run/flotilla/pkg/transports/ssh"
	"github.com/flotilla-run/flotilla/pkg/vars"
)

func newFactsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts [pattern]",
		Short: "Gather facts from inventory hosts",
		Long: `Connect to the hosts a pattern selects, run the setup module on each,
and print the gathered facts as JSON. The pattern defaults to all.`,
		Example: `  # Facts for every host
  flotilla facts

  # Facts for one group
  flotilla facts web`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "all"
			if len(args) > 0 {
				pattern = args[0]
			}

			inv, err := inventory.LoadFile(inventoryPath)
			if err != nil {
				return err
			}
			hosts, err := inv.Select(pattern)
			if err != nil {
				return err
			}
			if len(hosts) == 0 {
				return fmt.Errorf("pattern %q selects no hosts", pattern)
			}

			p := pool.New(ssh.NewDialer(nil), pool.Config{MaxPerKey: forks})
			defer p.Close()

			setup, err := modules.NewRegistry().Lookup("setup")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var (
				mu      sync.Mutex
				facts   = map[string]interface{}{}
				failure error
				wg      sync.WaitGroup
			)

			for _, host := range hosts {
				wg.Add(1)
				go func(host *inventory.Host) {
					defer wg.Done()

					lease, err := p.Acquire(ctx, host)
					if err != nil {
						log.Error().Err(err).Str("host", host.Name).Msg("Failed to connect")
						mu.Lock()
						failure = fmt.Errorf("one or more hosts unreachable")
						mu.Unlock()
						return
					}

					out, err := setup.Run(ctx, &modules.Context{
						Host: host,
						Vars: vars.NewStore(),
						Conn: lease.Conn,
					}, nil)
					if err != nil {
						p.Invalidate(lease)
						log.Error().Err(err).Str("host", host.Name).Msg("Facts gathering failed")
						mu.Lock()
						failure = fmt.Errorf("one or more hosts failed")
						mu.Unlock()
						return
					}
					p.Release(lease)

					mu.Lock()
					facts[host.Name] = out.Facts
					mu.Unlock()
				}(host)
			}
			wg.Wait()

			data, err := json.MarshalIndent(facts, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return failure
		},
	}

	return cmd
}

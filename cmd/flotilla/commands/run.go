package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/flotilla-run/flotilla/pkg/engine"
	"github.com/flotilla-run/flotilla/pkg/play"
	"github.com/flotilla-run/flotilla/pkg/stores"
)

func newRunCommand() *cobra.Command {
	var (
		taskTimeout time.Duration
		strategy    string
	)

	cmd := &cobra.Command{
		Use:   "run <playbook>",
		Short: "Run a playbook against the inventory",
		Long: `Run every play in a playbook against the hosts its pattern selects.

Each task leases an SSH connection from the pool, runs its module, and
releases the lease. Failed hosts drop out of the remainder of their play;
handlers notified by changed tasks run once after the task list.`,
		Example: `  # Run a playbook with the default inventory
  flotilla run site.yaml

  # Five-way parallelism, free strategy, extra variables
  flotilla run site.yaml --forks 5 --strategy free -e env=prod

  # Record run history
  flotilla run site.yaml --history flotilla.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executePlaybook(cmd.Context(), args[0], false, taskTimeout, strategy)
		},
	}

	cmd.Flags().DurationVar(&taskTimeout, "task-timeout", 0, "per-task execution timeout (0 disables)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "override play strategy (linear, free, host_pinned)")

	return cmd
}

// executePlaybook drives every play in a playbook file. Shared by run and
// plan; plan resolves everything without touching connections.
func executePlaybook(ctx context.Context, playbookPath string, plan bool, taskTimeout time.Duration, strategy string) error {
	plays, err := play.LoadPlaybook(playbookPath)
	if err != nil {
		return err
	}

	rt, err := newRuntime(playbookPath, plan, taskTimeout)
	if err != nil {
		return err
	}
	defer rt.Close()

	history, err := openHistory(ctx)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	var report *engine.PlanReport
	if plan {
		report = &engine.PlanReport{}
	}

	failed := false
	for _, pl := range plays {
		if strategy != "" {
			pl.Strategy = strategy
		}

		fmt.Printf("\nPLAY [%s] %s\n", pl.Name, divider(len(pl.Name)))

		recap, err := runOnePlay(ctx, rt, pl, playbookPath, plan, history, report)
		if err != nil {
			return err
		}

		printRecap(recap)
		if recap.Failed() {
			failed = true
		}
		if ctx.Err() != nil {
			return fmt.Errorf("run cancelled")
		}
	}

	if plan {
		fmt.Printf("\n%s\n", report.Summary())
	}
	if failed {
		return fmt.Errorf("one or more hosts failed")
	}
	return nil
}

func runOnePlay(ctx context.Context, rt *runtime, pl *play.Play, playbookPath string, plan bool, history stores.Store, report *engine.PlanReport) (*engine.Recap, error) {
	var runID string
	if history != nil {
		runID = uuid.NewString()
		now := time.Now()
		rec := &stores.Run{
			ID:        runID,
			Playbook:  playbookPath,
			PlayName:  pl.Name,
			Strategy:  pl.StrategyName(),
			DryRun:    plan,
			Status:    stores.RunStatusRunning,
			StartedAt: now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := history.CreateRun(ctx, rec); err != nil {
			return nil, err
		}
	}

	rt.Scheduler.OnResult = func(res *engine.TaskResult) {
		printResult(res)
		if report != nil {
			report.Observe(res)
		}
		if history != nil {
			if err := history.AppendResult(context.Background(), toRecord(runID, res)); err != nil {
				log.Warn().Err(err).Msg("Failed to record task result")
			}
		}
	}

	recap, err := rt.Scheduler.RunPlay(ctx, pl, rt.Loader, rt.ExtraVars)
	if err != nil && ctx.Err() == nil {
		if history != nil {
			msg := err.Error()
			_ = history.FinishRun(context.Background(), runID, stores.RunStatusFailed, &msg)
		}
		return nil, err
	}

	if history != nil {
		finishHistory(runID, recap, ctx.Err() != nil, history)
	}
	return recap, nil
}

func openHistory(ctx context.Context) (stores.Store, error) {
	if historyPath == "" {
		return nil, nil
	}
	store, err := stores.NewSQLiteStore(stores.Config{Path: historyPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func finishHistory(runID string, recap *engine.Recap, cancelled bool, history stores.Store) {
	ctx := context.Background()

	var summaries []*stores.HostSummary
	for _, host := range recap.Hosts() {
		st := recap.Stats(host)
		summaries = append(summaries, &stores.HostSummary{
			RunID:       runID,
			Host:        host,
			OK:          st.OK,
			Changed:     st.Changed,
			Failed:      st.Failed,
			Skipped:     st.Skipped,
			Unreachable: st.Unreachable,
		})
	}
	if err := history.SaveRecap(ctx, runID, summaries); err != nil {
		log.Warn().Err(err).Msg("Failed to save recap")
	}

	status := stores.RunStatusCompleted
	switch {
	case cancelled:
		status = stores.RunStatusCancelled
	case recap.Failed():
		status = stores.RunStatusFailed
	}
	if err := history.FinishRun(ctx, runID, status, nil); err != nil {
		log.Warn().Err(err).Msg("Failed to finish run record")
	}
}

func toRecord(runID string, res *engine.TaskResult) *stores.TaskRecord {
	rec := &stores.TaskRecord{
		RunID:     runID,
		Host:      res.Host,
		Task:      res.Task,
		Module:    res.Module,
		Status:    string(res.Status),
		ExecHost:  res.ExecHost,
		FactHost:  res.FactHost,
		Msg:       res.Msg,
		Planned:   res.Planned,
		StartedAt: res.StartedAt,
		Duration:  res.Duration.Milliseconds(),
	}
	if len(res.Data) > 0 {
		if data, err := json.Marshal(res.Data); err == nil {
			s := string(data)
			rec.Data = &s
		}
	}
	if res.Err != nil {
		msg := res.Err.Error()
		rec.Error = &msg
	}
	return rec
}

func printResult(res *engine.TaskResult) {
	prefix := string(res.Status)
	if res.Planned {
		prefix = "plan"
	}
	line := fmt.Sprintf("%-8s [%s] %s", prefix, res.Host, res.Task)
	if res.ExecHost != "" && res.ExecHost != res.Host {
		line += fmt.Sprintf(" (on %s)", res.ExecHost)
	}
	if res.Msg != "" {
		line += ": " + res.Msg
	}
	fmt.Println(line)
}

func printRecap(recap *engine.Recap) {
	fmt.Println("\nPLAY RECAP")
	for _, host := range recap.Hosts() {
		st := recap.Stats(host)
		fmt.Printf("%-24s ok=%d changed=%d failed=%d skipped=%d unreachable=%d\n",
			host, st.OK, st.Changed, st.Failed, st.Skipped, st.Unreachable)
	}
}

func divider(n int) string {
	width := 60 - n
	if width < 4 {
		width = 4
	}
	out := make([]byte, width)
	for i := range out {
		out[i] = '*'
	}
	return string(out)
}

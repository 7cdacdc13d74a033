package commands

import (
	"path/filepath"
	"time"

	"github.com/flotilla-run/flotilla/pkg/engine"
	"github.com/flotilla-run/flotilla/pkg/include"
	"github.com/flotilla-run/flotilla/pkg/inventory"
	"github.com/flotilla-run/flotilla/pkg/modules"
	"github.com/flotilla-run/flotilla/pkg/pool"
	"github.com/flotilla-run/flotilla/pkg/telemetry"
	ssh "github.com/flotilla-run/flotilla/pkg/transports/ssh"
)

// runtime bundles everything a playbook command needs wired together.
type runtime struct {
	Inventory *inventory.Static
	Pool      *pool.Pool
	Loader    include.Loader
	Scheduler *engine.Scheduler
	ExtraVars map[string]interface{}
}

// newRuntime builds the execution stack for a playbook: inventory, SSH
// connection pool, module registry, include loader rooted at the playbook's
// directory, executor and scheduler.
func newRuntime(playbookPath string, plan bool, taskTimeout time.Duration) (*runtime, error) {
	inv, err := inventory.LoadFile(inventoryPath)
	if err != nil {
		return nil, err
	}

	extraVars, err := parseExtraVars(extraVarFlags)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true})

	p := pool.New(ssh.NewDialer(nil), pool.Config{
		MaxPerKey:   forks,
		IdleTimeout: 5 * time.Minute,
		DialRetries: 2,
		DialBackoff: time.Second,
		Observer:    metrics,
	})

	loader := include.NewYAMLLoader(filepath.Dir(playbookPath))

	exec := &engine.Executor{
		Pool:        p,
		Registry:    modules.NewRegistry(),
		Inventory:   inv,
		Conditions:  engine.NewConditionEvaluator(5 * time.Second),
		Includer:    include.NewIncluder(loader),
		Plan:        plan,
		TaskTimeout: taskTimeout,
	}

	sched := &engine.Scheduler{
		Executor: exec,
		Forks:    forks,
		Metrics:  metrics,
	}

	return &runtime{
		Inventory: inv,
		Pool:      p,
		Loader:    loader,
		Scheduler: sched,
		ExtraVars: extraVars,
	}, nil
}

// Close releases pooled connections.
func (r *runtime) Close() {
	r.Pool.Close()
}

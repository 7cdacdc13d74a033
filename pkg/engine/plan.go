package engine

import (
	"fmt"
	"strings"
	"sync"
)

// PlannedAction is one module invocation a plan run would perform.
type PlannedAction struct {
	Host   string                 `json:"host"`
	Task   string                 `json:"task"`
	Module string                 `json:"module"`
	Args   map[string]interface{} `json:"args,omitempty"`
}

// PlanReport collects the actions of a plan run. Wire it to
// Scheduler.OnResult and read it after RunPlay returns.
type PlanReport struct {
	mu      sync.Mutex
	actions []PlannedAction
	skipped int
	failed  int
}

// Observe records one result. Non-planned results (local modules run for
// real even under plan) are counted but not listed as pending actions.
func (p *PlanReport) Observe(res *TaskResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch res.Status {
	case StatusSkipped:
		p.skipped++
		return
	case StatusFailed:
		p.failed++
		return
	}
	if !res.Planned {
		return
	}
	p.actions = append(p.actions, PlannedAction{
		Host:   res.Host,
		Task:   res.Task,
		Module: res.Module,
		Args:   res.Data,
	})
}

// Actions returns the recorded actions in emission order.
func (p *PlanReport) Actions() []PlannedAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlannedAction, len(p.actions))
	copy(out, p.actions)
	return out
}

// Summary renders a one-line-per-action overview.
func (p *PlanReport) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	for _, a := range p.actions {
		fmt.Fprintf(&b, "%s: %s (%s)\n", a.Host, a.Task, a.Module)
	}
	fmt.Fprintf(&b, "plan: %d actions, %d skipped, %d failed\n",
		len(p.actions), p.skipped, p.failed)
	return b.String()
}

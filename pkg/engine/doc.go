// Package engine executes plays against inventory hosts.
//
// The Executor runs one task on one host: it layers the host's variable
// store with task and include-scope variables, evaluates the guard before
// any connection is leased, resolves delegation, invokes the module over a
// pooled connection, and places facts and registered results on the right
// hosts.
//
// The Scheduler drives a whole play: it selects hosts, expands static
// imports, bounds concurrency with forks, orders tasks per the play's
// strategy (linear, free, or host_pinned), drops failed hosts from the
// remainder of the play, and runs notified handlers once after the task
// list.
//
// Plan mode resolves everything a real run would, without leasing
// connections or invoking connection-backed modules.
package engine

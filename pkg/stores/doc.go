// Package stores provides the run history layer for Flotilla.
// It persists playbook runs, per-task results and per-host recaps
// in a SQLite database with WAL mode enabled.
package stores

package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flotilla-run/flotilla/pkg/telemetry"
)

var (
	// Global flags
	inventoryPath string
	logLevel      string
	logFormat     string
	forks         int
	extraVarFlags []string
	historyPath   string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flotilla",
		Short: "Flotilla - playbook orchestration over SSH",
		Long: `Flotilla runs YAML playbooks against an inventory of hosts over SSH.

Plays bind hosts to ordered task lists; tasks invoke modules, guard on
expressions, delegate to other hosts, register results and notify handlers.
Strategies control cross-host ordering: linear, free, or host_pinned.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&inventoryPath, "inventory", "i", "inventory.yaml", "inventory file path")
	defaultLevel := os.Getenv("LOG_LEVEL")
	if defaultLevel == "" {
		defaultLevel = "info"
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().IntVar(&forks, "forks", 5, "maximum concurrent task executions")
	rootCmd.PersistentFlags().StringArrayVarP(&extraVarFlags, "extra-vars", "e", nil, "extra variables (key=value or @file.yaml), highest precedence")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", "", "SQLite run history path (empty disables history)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newFactsCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

func setupLogging() error {
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  logLevel,
		Format: logFormat,
		Output: "stderr",
	})
	if err != nil {
		return err
	}
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return nil
}

// parseExtraVars turns repeated --extra-vars flags into a variable map.
// Each flag is either key=value or @path to a YAML file.
func parseExtraVars(flags []string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	for _, f := range flags {
		if strings.HasPrefix(f, "@") {
			data, err := os.ReadFile(f[1:])
			if err != nil {
				return nil, fmt.Errorf("failed to read extra-vars file %s: %w", f[1:], err)
			}
			var values map[string]interface{}
			if err := yaml.Unmarshal(data, &values); err != nil {
				return nil, fmt.Errorf("failed to parse extra-vars file %s: %w", f[1:], err)
			}
			for k, v := range values {
				out[k] = v
			}
			continue
		}
		key, value, found := strings.Cut(f, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("extra-vars entry %q is not key=value", f)
		}
		out[key] = value
	}
	return out, nil
}

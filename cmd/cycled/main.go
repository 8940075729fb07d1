// Command cycled runs a task through the recursive four-phase cycle and
// prints the final report.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cycled/internal/config"
	"github.com/fyrsmithlabs/cycled/internal/cycle"
	"github.com/fyrsmithlabs/cycled/internal/executor"
	"github.com/fyrsmithlabs/cycled/internal/logging"
	"github.com/fyrsmithlabs/cycled/internal/manifest"
	"github.com/fyrsmithlabs/cycled/internal/memstore"
	"github.com/fyrsmithlabs/cycled/internal/team"
	"github.com/fyrsmithlabs/cycled/internal/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cycled",
		Short:         "Recursive, quality-gated cycle orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// runtime bundles the explicitly constructed dependencies of one invocation.
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Provider
	store     *memstore.Store
	coord     *cycle.Coordinator
}

func newRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	provider, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	store := memstore.New(logger)
	members, err := team.NewRoundRobin("alpha", "beta", "gamma")
	if err != nil {
		return nil, err
	}

	coord := cycle.New(cycle.Collaborators{
		Store:    store,
		Executor: executor.NewBasic(logger),
		Team:     members,
	}, cfg.CycleOptions(), logger)

	inst, err := cycle.NewInstruments(provider.Meter("cycled"))
	if err != nil {
		logger.Warn("telemetry instruments unavailable", zap.Error(err))
	} else {
		coord.SetInstruments(inst)
	}

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		telemetry: provider,
		store:     store,
		coord:     coord,
	}, nil
}

func (rt *runtime) close(ctx context.Context) {
	if err := rt.telemetry.Shutdown(ctx); err != nil {
		rt.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = rt.logger.Sync()
}

func newRunCmd() *cobra.Command {
	var (
		configPath   string
		manifestPath string
		taskJSON     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one cycle from a manifest or a task JSON object",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, configPath)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			var report map[string]any
			switch {
			case manifestPath != "":
				m, err := manifest.ParseFile(manifestPath)
				if err != nil {
					return err
				}
				report, err = rt.coord.StartCycleWithManifest(ctx, m.Task(), manifest.NewTracker(m))
				if err != nil {
					return err
				}
			case taskJSON != "":
				var task cycle.TaskRecord
				if err := json.Unmarshal([]byte(taskJSON), &task); err != nil {
					return fmt.Errorf("parse task json: %w", err)
				}
				report, err = rt.coord.StartCycle(ctx, task)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("either --manifest or --task is required")
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "path to YAML cycle manifest")
	cmd.Flags().StringVar(&taskJSON, "task", "", "task as a JSON object")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate MANIFEST",
		Short: "Validate a cycle manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.ParseFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "manifest %s is valid (%d phase declaration(s))\n",
				m.ID, len(m.Phases))
			return nil
		},
	}
}

// Package main provides the CLI entry point for the tool evolution engine.
//
// toolforge stores generated and verified Python tools in a local registry
// and runs free-text financial analysis tasks against them, synthesizing a
// new tool through an LLM when no verified tool already answers the task.
//
// # Basic Usage
//
// Run a task against the registry:
//
//	toolforge run --store ./data "compute the 14-day RSI for AAPL"
//
// List registered tools:
//
//	toolforge tools list --store ./data
//
// Dry-run the security scanner against a source file, without executing it:
//
//	toolforge check --category calculation path/to/candidate.py
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/toolforge/internal/config"
	"github.com/example/toolforge/internal/constraints"
	"github.com/example/toolforge/internal/dataprovider"
	"github.com/example/toolforge/internal/gateway"
	"github.com/example/toolforge/internal/llmadapter"
	"github.com/example/toolforge/internal/refiner"
	"github.com/example/toolforge/internal/registry"
	"github.com/example/toolforge/internal/sandbox"
	"github.com/example/toolforge/internal/synthesizer"
	"github.com/example/toolforge/internal/taskexecutor"
	"github.com/example/toolforge/internal/verifier"
	"github.com/example/toolforge/pkg/domain"
)

var (
	storeDir   string
	configFile string
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads configFile if set, otherwise falls back to
// config.Default(); the --store flag, when set, always wins over the
// document (spec.md's Non-goals exclude hot-reload, so this resolution
// happens once, at startup).
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if storeDir != "" {
		cfg.Store.Dir = storeDir
	}

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.Logging.Level))
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, opts)
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	return cfg, nil
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "toolforge",
		Short:        "A self-evolving tool runtime for financial analysis tasks",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&storeDir, "store", "", "directory holding the registry database, artifacts, and cache (overrides config file)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a toolforge config YAML document")

	rootCmd.AddCommand(buildRunCmd(), buildToolsCmd(), buildCheckCmd())
	return rootCmd
}

type runtime struct {
	reg      *registry.Registry
	executor *sandbox.Executor
	gw       *gateway.Gateway
	provider domain.DataProvider
}

func openRuntime(cfg *config.Config) (*runtime, error) {
	dbPath := filepath.Join(cfg.Store.Dir, "registry.db")
	artifactRoot := filepath.Join(cfg.Store.Dir, "artifacts")
	cacheRoot := filepath.Join(cfg.Store.Dir, "cache")
	logDir := filepath.Join(cfg.Store.Dir, "logs")

	reg, err := registry.Open(dbPath, artifactRoot)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	rules := constraints.Default()
	if cfg.Store.ConstraintsFile != "" {
		if loaded, err := constraints.Load(cfg.Store.ConstraintsFile); err == nil {
			rules = loaded
		} else {
			slog.Warn("failed to load constraints document, using defaults", "path", cfg.Store.ConstraintsFile, "error", err)
		}
	}
	rules.Limits.DefaultTimeout = cfg.Limits.SandboxTimeout

	executor := sandbox.NewExecutor(rules)
	v := verifier.New(executor)
	gw := gateway.New(reg, v, gateway.WithLogDir(logDir))
	provider := dataprovider.New(cacheRoot, nil)

	return &runtime{reg: reg, executor: executor, gw: gw, provider: provider}, nil
}

func (r *runtime) Close() {
	_ = r.reg.Close()
}

func buildRunCmd() *cobra.Command {
	var apiKey, baseURL, model string

	cmd := &cobra.Command{
		Use:   "run [task description]",
		Short: "Run a free-text financial analysis task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if apiKey != "" {
				cfg.LLM.APIKey = apiKey
			}
			if baseURL != "" {
				cfg.LLM.BaseURL = baseURL
			}
			if model != "" {
				cfg.LLM.Model = model
			}

			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			adapter := llmadapter.New(llmadapter.Config{APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.Model, Timeout: cfg.LLM.Timeout})
			rf := refiner.New(rt.gw, adapter)
			synth := synthesizer.New(rt.gw, adapter, rf, synthesizer.WithMaxAttempts(cfg.Limits.MaxRefineAttempts))
			te := taskexecutor.New(rt.gw, rt.executor, rt.provider, synth)

			taskID := fmt.Sprintf("cli-%d", os.Getpid())
			result := te.Run(cmd.Context(), taskID, args[0])

			switch result.Status {
			case domain.TaskOK:
				fmt.Fprintf(cmd.OutOrStdout(), "%v\n", result.Value)
			case domain.TaskFail:
				fmt.Fprintf(cmd.OutOrStdout(), "task failed: %s\n", result.Message)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "task error (%s): %s\n", result.ErrorKind, result.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("TOOLFORGE_API_KEY"), "LLM API key (falls back to the mock model when empty)")
	cmd.Flags().StringVar(&baseURL, "base-url", os.Getenv("TOOLFORGE_BASE_URL"), "OpenAI-compatible base URL")
	cmd.Flags().StringVar(&model, "model", "", "model name (overrides config file)")
	return cmd
}

func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool registry",
	}
	cmd.AddCommand(buildToolsListCmd())
	return cmd
}

func buildToolsListCmd() *cobra.Command {
	var category string
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			filter := registry.ListFilter{}
			if category != "" {
				filter.Category = domain.Category(category)
			}
			if status != "" {
				filter.Status = domain.ToolStatus(status)
			}

			tools, err := rt.reg.List(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("list tools: %w", err)
			}
			for _, tool := range tools {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-8s %-12s %-10s %s\n",
					tool.Name, tool.SemanticVersion, tool.Status, tool.ContentHash, tool.ContractID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category (fetch|calculation|composite)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (PROVISIONAL|VERIFIED|DEPRECATED|FAILED)")
	return cmd
}

func buildCheckCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "check [source.py]",
		Short: "Dry-run the static security check against a candidate source file, without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read source file: %w", err)
			}
			result := sandbox.StaticCheck(string(source), domain.Category(category), constraints.Default())
			if result.OK {
				fmt.Fprintln(cmd.OutOrStdout(), "PASS")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL: %s\n", result.Reason)
			return fmt.Errorf("static check rejected the candidate")
		},
	}
	cmd.Flags().StringVar(&category, "category", string(domain.CategoryCalculation), "tool category (fetch|calculation|composite)")
	return cmd
}

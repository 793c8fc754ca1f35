package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codeloop/internal/config"
	"codeloop/internal/diff"
	"codeloop/internal/generator"
	"codeloop/internal/logging"
	"codeloop/internal/regression"
	"codeloop/internal/review"
	"codeloop/internal/sandbox"
	"codeloop/internal/synth"
	"codeloop/internal/task"
	"codeloop/internal/workflow"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "codeloop",
	Short: "codeloop - self-correcting code synthesis loop",
	Long: `codeloop turns a natural-language task into a tested Go function.

It repeatedly asks a generative model for a candidate, statically vets
it (syntax, undefined names, task-intent consistency), synthesizes
behavioral tests from the task and the candidate's signature, runs them
in an embedded sandbox, and feeds failures back into the next attempt
until the tests pass or the attempt ceiling is reached.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}
		if err := logging.InitAudit(); err != nil {
			logger.Warn("audit trail disabled", zap.Error(err))
		}

		path := configPath
		if path == "" {
			path = filepath.Join(workspace, ".codeloop", "config.yaml")
		}
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var (
	taskText    string
	maxAttempts int
	timeout     time.Duration
	scriptFiles []string
	outputPath  string
)

// runCmd drives the full loop for a task.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full generate-review-test loop for a task",
	RunE: func(cmd *cobra.Command, args []string) error {
		if taskText == "" && len(args) > 0 {
			taskText = strings.Join(args, " ")
		}
		if taskText == "" {
			return fmt.Errorf("a task description is required (--task or positional args)")
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		orch, err := buildOrchestrator(ctx)
		if err != nil {
			return err
		}

		// Ctrl-C requests a cooperative stop; the current attempt
		// finishes before the loop exits.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			<-sigCh
			logger.Info("stop requested")
			orch.Stop()
		}()

		t := task.New(taskText)
		events, err := orch.Start(ctx, t)
		if err != nil {
			return err
		}

		var prevCode string
		var prevAttempt int
		for ev := range events {
			switch ev.Kind {
			case workflow.EventStatus:
				logger.Info("status", zap.String("status", ev.Status.String()))
			case workflow.EventCode:
				if verbose {
					if prevCode == "" {
						fmt.Println("--- candidate ---")
						fmt.Println(ev.Code)
					} else if d := diff.Compute(prevAttempt, ev.Attempt, prevCode, ev.Code); d.Changed() {
						fmt.Println("--- revision ---")
						fmt.Print(d.Render())
					}
				}
				prevCode = ev.Code
				prevAttempt = ev.Attempt
			case workflow.EventLintFinding:
				logger.Info("style", zap.Int("attempt", ev.Attempt), zap.String("finding", ev.Message))
			default:
				logger.Info("progress", zap.Int("attempt", ev.Attempt), zap.String("msg", ev.Message))
			}
		}

		final := orch.Status()
		fmt.Printf("workflow %s\n", final)
		if outputPath != "" && prevCode != "" {
			if err := os.WriteFile(outputPath, []byte(prevCode), 0644); err != nil {
				fmt.Fprintf(os.Stderr, "could not save candidate: %v\n", err)
			}
		}
		if final != workflow.StatusSuccess {
			os.Exit(1)
		}
		return nil
	},
}

// onceCmd runs a single generate-review-test cycle.
var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run exactly one generation attempt",
	RunE: func(cmd *cobra.Command, args []string) error {
		if taskText == "" && len(args) > 0 {
			taskText = strings.Join(args, " ")
		}
		if taskText == "" {
			return fmt.Errorf("a task description is required")
		}

		ctx := cmd.Context()
		orchCfg := workflow.Config{MaxAttempts: 1, PreValidation: cfg.Workflow.PreValidation}
		orch, err := buildOrchestratorWith(ctx, orchCfg)
		if err != nil {
			return err
		}

		outcome := orch.Run(ctx, task.New(taskText))
		printOutcome(outcome)
		if outcome.Status != workflow.StatusSuccess {
			os.Exit(1)
		}
		return nil
	},
}

// reviewCmd statically reviews a Go file against a task description.
var reviewCmd = &cobra.Command{
	Use:   "review <file>",
	Short: "Statically review a candidate file without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		r := review.New(nil)
		verdict := r.Review(cmd.Context(), task.New(taskText), string(source))
		if verdict.Approved {
			fmt.Println("approved")
			return nil
		}
		fmt.Printf("rejected (%s): %s\n", verdict.Kind, verdict.Message)
		os.Exit(1)
		return nil
	},
}

// batteryCmd runs a YAML-defined suite of tasks through the loop and
// reports which matched their expected outcome.
var batteryCmd = &cobra.Command{
	Use:   "battery [file]",
	Short: "Run a regression battery of synthesis tasks",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := regression.DefaultBatteryPath(workspace)
		if len(args) == 1 {
			path = args[0]
		}

		b, err := regression.LoadBattery(path)
		if err != nil {
			return fmt.Errorf("load battery: %w", err)
		}

		ctx := cmd.Context()
		factory := func(bt regression.Task) (*workflow.Orchestrator, error) {
			orchCfg := workflow.Config{
				MaxAttempts:   bt.MaxAttempts,
				PreValidation: cfg.Workflow.PreValidation,
			}
			if orchCfg.MaxAttempts <= 0 {
				orchCfg.MaxAttempts = cfg.Workflow.MaxAttempts
			}

			var gen generator.Generator
			var advisor review.Advisor
			if len(bt.Script) > 0 {
				gen = &generator.Static{Candidates: bt.Script}
			} else {
				var err error
				gen, advisor, err = buildGenerator(ctx)
				if err != nil {
					return nil, err
				}
			}
			return workflow.New(
				gen,
				review.New(advisor),
				synth.New(cfg.Synth.RulesPath),
				sandbox.NewRunner(cfg.GetSandboxTimeout()),
				orchCfg,
			), nil
		}

		results, err := regression.RunBattery(ctx, b, factory)
		fmt.Print(regression.Summarize(results))
		if err != nil {
			return err
		}
		for _, r := range results {
			if !r.Matched {
				os.Exit(1)
			}
		}
		return nil
	},
}

func buildOrchestrator(ctx context.Context) (*workflow.Orchestrator, error) {
	return buildOrchestratorWith(ctx, workflow.Config{
		MaxAttempts:   maxAttempts,
		PreValidation: cfg.Workflow.PreValidation,
	})
}

func buildOrchestratorWith(ctx context.Context, orchCfg workflow.Config) (*workflow.Orchestrator, error) {
	if orchCfg.MaxAttempts <= 0 {
		orchCfg.MaxAttempts = cfg.Workflow.MaxAttempts
	}

	gen, advisor, err := buildGenerator(ctx)
	if err != nil {
		return nil, err
	}

	sandboxTimeout := cfg.GetSandboxTimeout()
	if timeout > 0 {
		sandboxTimeout = timeout
	}

	return workflow.New(
		gen,
		review.New(advisor),
		synth.New(cfg.Synth.RulesPath),
		sandbox.NewRunner(sandboxTimeout),
		orchCfg,
	), nil
}

// buildGenerator selects the generator implementation: scripted
// candidates from files when --script is given, Gemini otherwise.
func buildGenerator(ctx context.Context) (generator.Generator, review.Advisor, error) {
	if len(scriptFiles) > 0 {
		var candidates []string
		for _, path := range scriptFiles {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, nil, fmt.Errorf("script candidate %s: %w", path, err)
			}
			candidates = append(candidates, string(data))
		}
		return &generator.Static{Candidates: candidates}, nil, nil
	}

	if cfg.Generator.APIKey == "" {
		return nil, nil, fmt.Errorf("no API key configured; set GEMINI_API_KEY or use --script")
	}
	gem, err := generator.NewGemini(ctx, cfg.Generator.APIKey, cfg.Generator.Model)
	if err != nil {
		return nil, nil, err
	}
	return gem, gem, nil
}

func printOutcome(out workflow.Outcome) {
	fmt.Printf("status: %s (%d attempts, %v)\n", out.Status, len(out.Attempts), out.Elapsed.Round(time.Millisecond))
	for _, fb := range out.Feedback {
		fmt.Printf("  [%s attempt %d] %s\n", fb.Source, fb.Attempt, fb.Message)
	}
	if out.Final.Candidate != "" {
		fmt.Println("--- final candidate ---")
		fmt.Println(out.Final.Candidate)
	}
	if outputPath != "" && out.Final.Candidate != "" {
		if err := os.WriteFile(outputPath, []byte(out.Final.Candidate), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "could not save candidate: %v\n", err)
		}
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default .codeloop/config.yaml)")

	for _, cmd := range []*cobra.Command{runCmd, onceCmd} {
		cmd.Flags().StringVarP(&taskText, "task", "t", "", "task description")
		cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempt ceiling (default from config)")
		cmd.Flags().DurationVar(&timeout, "timeout", 0, "sandbox timeout (default from config)")
		cmd.Flags().StringSliceVar(&scriptFiles, "script", nil, "files with scripted candidates instead of a model")
		cmd.Flags().StringVarP(&outputPath, "output", "o", "", "save the final candidate to this file")
	}
	reviewCmd.Flags().StringVarP(&taskText, "task", "t", "", "task description for intent checks")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(batteryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

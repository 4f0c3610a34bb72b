// Command anton drives a coding agent unattended through a markdown
// task checklist, committing verified work task by task.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/visorcraft/anton/internal/config"
	"github.com/visorcraft/anton/internal/engine"
	"github.com/visorcraft/anton/internal/knowledge"
	"github.com/visorcraft/anton/internal/logging"
	"github.com/visorcraft/anton/internal/progress"
	"github.com/visorcraft/anton/internal/runlock"
	"github.com/visorcraft/anton/internal/taskfile"
	"github.com/visorcraft/anton/internal/tui"
	"github.com/visorcraft/anton/internal/update"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "anton",
	Short: "Autonomous task orchestrator for coding agents",
	Long: `Anton runs a coding agent unattended through a markdown checklist:
one task at a time, each completed task verified and committed, failed
attempts rolled back so the tree stays in a known-good state.`,
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run <task-file>",
	Short: "Run the checklist with the agent",
	Long: `Run starts an orchestrator run over the given task file. The agent
works task by task until the list is exhausted, the run budget expires,
or a stop is requested. Press Ctrl+C once to stop after the current
turn; twice to cancel the turn in flight.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd, args[0])
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks <task-file>",
	Short: "Preview the parsed checklist",
	Long:  `Tasks parses the task file and prints what a run would work through, in order.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTasks(args[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a run holds the lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Curate the knowledge store consulted during prompts",
	Long: `Knowledge manages the per-project note store. Entries matching a
task's keywords are retrieved into the agent's prompt, within the
configured token budget.`,
}

var knowledgeAddCmd = &cobra.Command{
	Use:   "add <id> [file]",
	Short: "Save an entry from a file or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openKnowledgeStore()
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		if store.Exists(args[0]) && !force {
			return fmt.Errorf("entry %q already exists; use --force to overwrite", args[0])
		}

		var content []byte
		if len(args) == 2 {
			content, err = os.ReadFile(args[1])
		} else {
			content, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return err
		}
		if err := store.Save(args[0], string(content)); err != nil {
			return err
		}
		fmt.Printf("saved %q\n", args[0])
		return nil
	},
}

var knowledgeShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openKnowledgeStore()
		if err != nil {
			return err
		}
		content, err := store.Load(args[0])
		if err != nil {
			return err
		}
		if content == "" {
			return fmt.Errorf("no entry %q", args[0])
		}
		fmt.Print(content)
		return nil
	},
}

var knowledgeRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openKnowledgeStore()
		if err != nil {
			return err
		}
		return store.Delete(args[0])
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade anton to the latest release",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpgrade()
	},
}

func init() {
	f := runCmd.Flags()
	f.Bool("headless", false, "Run without the TUI (line-per-event output)")
	f.Bool("jsonl", false, "With --headless, emit events as JSON Lines")
	f.IntP("max-iterations", "n", 0, "Agent iteration cap per task (0 = configured default)")
	f.Int("task-timeout", 0, "Per-task timeout in seconds (0 = configured default)")
	f.Int("total-timeout", -1, "Whole-run timeout in seconds (0 = unbounded)")
	f.Int("max-retries", 0, "Per-task retry budget (0 = configured default)")
	f.Bool("no-commit", false, "Do not commit completed tasks")
	f.Bool("no-rollback", false, "Keep a failed attempt's edits in the tree")
	f.Bool("discovery", false, "Run a discovery phase before each task")
	f.Bool("review", false, "With --discovery, review the plan before implementing")
	f.String("plan-dir", "", "Writable root for discovery and review sessions")
	f.Bool("manual", false, "Leave changes uncommitted for human review")

	knowledgeAddCmd.Flags().Bool("force", false, "Overwrite an existing entry")
	knowledgeCmd.AddCommand(knowledgeAddCmd)
	knowledgeCmd.AddCommand(knowledgeShowCmd)
	knowledgeCmd.AddCommand(knowledgeRmCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(knowledgeCmd)
	rootCmd.AddCommand(upgradeCmd)
}

// openKnowledgeStore resolves the knowledge directory under the
// configured state dir, the same location run prompts retrieve from.
func openKnowledgeStore() (*knowledge.Store, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(cfg.Paths.ResolveStateDir(workDir), "knowledge")
	return knowledge.NewStoreWithDir(dir), nil
}

// loadConfig reads .env and .anton.yaml from the working directory and
// folds run-command flag overrides on top.
func loadConfig(cmd *cobra.Command, workDir string) (*config.Config, error) {
	// Environment first, so ANTON_* values in .env reach viper.
	_ = godotenv.Load()

	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if v, _ := f.GetInt("max-iterations"); v > 0 {
		cfg.Run.MaxIterations = v
	}
	if v, _ := f.GetInt("task-timeout"); v > 0 {
		cfg.Run.TaskTimeoutSec = v
	}
	if v, _ := f.GetInt("total-timeout"); v >= 0 && f.Changed("total-timeout") {
		cfg.Run.TotalTimeoutSec = v
	}
	if v, _ := f.GetInt("max-retries"); v > 0 {
		cfg.Run.MaxRetries = v
	}
	if v, _ := f.GetBool("no-commit"); v {
		cfg.Commit.Auto = false
	}
	if v, _ := f.GetBool("no-rollback"); v {
		cfg.Run.RollbackOnFail = false
	}
	if v, _ := f.GetBool("discovery"); v {
		cfg.Discovery.Enabled = true
	}
	if v, _ := f.GetBool("review"); v {
		cfg.Discovery.Review = true
	}
	if v, _ := f.GetString("plan-dir"); v != "" {
		cfg.Paths.PlanDir = v
	}
	if v, _ := f.GetBool("manual"); v {
		cfg.Run.ApprovalMode = config.ApprovalManual
	}
	return cfg, nil
}

func runRun(cmd *cobra.Command, taskFilePath string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := loadConfig(cmd, workDir)
	if err != nil {
		return err
	}

	logger := logging.Nop()
	if cfg.Logging.Enabled {
		logger, err = logging.New(cfg.Paths.ResolveStateDir(workDir), cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("open run log: %w", err)
		}
		defer func() { _ = logger.Close() }()
	}

	// Parsed up front for the task panel; the engine re-parses after
	// taking the lock.
	file, err := taskfile.Load(taskFilePath)
	if err != nil {
		return err
	}
	pending := make([]string, len(file.Pending))
	for i, t := range file.Pending {
		pending[i] = t.Text
	}

	eng := engine.New(cfg, workDir, engine.Options{Logger: logger})
	events := eng.Events().Subscribe()

	// First signal stops after the current turn, the second cancels
	// the turn through the session's own cancellation path.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			eng.Stop()
		}
	}()

	if err := eng.Start(taskFilePath); err != nil {
		return err
	}

	headless, _ := cmd.Flags().GetBool("headless")
	if headless {
		jsonl, _ := cmd.Flags().GetBool("jsonl")
		rendered := make(chan struct{})
		go func() {
			defer close(rendered)
			progress.NewHeadless(jsonl).Run(events)
		}()
		err = eng.Wait()
		eng.Events().Close()
		<-rendered
	} else {
		tuiErr := tui.Run(tui.Config{
			TaskFile: taskFilePath,
			Tasks:    pending,
			Events:   events,
			Stopper:  eng,
		})
		// The dashboard exits when the run is over or the user quit;
		// either way the run must settle before we return.
		eng.Stop()
		err = eng.Wait()
		if err == nil {
			err = tuiErr
		}
	}

	if notice := update.CheckPeriodically(version); notice != "" {
		fmt.Fprintln(os.Stderr, notice)
	}
	return err
}

func runTasks(taskFilePath string) error {
	file, err := taskfile.Load(taskFilePath)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d tasks, %d pending, %d completed\n\n",
		file.Path, file.Total, len(file.Pending), len(file.Completed))

	phase := ""
	for _, t := range file.Pending {
		if p := t.Phase(); p != phase {
			phase = p
			if phase != "" {
				fmt.Printf("%s\n", t.Breadcrumb())
			}
		}
		fmt.Printf("  [ ] %s (line %d)\n", t.Text, t.Line)
	}
	return nil
}

func runStatus() error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}

	rec, held := runlock.IsHeld(cfg.Paths.ResolveStateDir(workDir))
	if !held {
		fmt.Println("no active run")
		return nil
	}
	fmt.Printf("run in progress (pid %d)\n", rec.PID)
	fmt.Printf("  task file: %s\n", rec.TaskFile)
	fmt.Printf("  started:   %s\n", rec.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  directory: %s\n", rec.Cwd)
	return nil
}

func runUpgrade() error {
	method := update.DetectInstallMethod()
	release, available, err := update.CheckForUpdate(version)
	if err != nil {
		return fmt.Errorf("check for updates: %w", err)
	}
	if !available {
		fmt.Printf("anton %s is up to date\n", version)
		return nil
	}
	fmt.Printf("updating %s -> %s\n", version, release.Version)
	if err := update.Apply(version); err != nil {
		fmt.Fprintln(os.Stderr, update.UpdateInstructions(method))
		return err
	}
	fmt.Println("update complete")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// cmd/dakforge/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dakforge/internal/autostage"
	"dakforge/internal/config"
	"dakforge/internal/diff"
	"dakforge/internal/remote"
	"dakforge/internal/staging"
	"dakforge/internal/storage"
	"dakforge/internal/validation"

	"github.com/dgraph-io/badger/v4"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "dakforge",
	Short: "DAKForge stages and validates digital adaptation kit artifacts",
	Long: `DAKForge is an authoring workbench for WHO digital adaptation kits.
It keeps local edits in a versioned staging ground, validates artifacts
against component rules, and reconciles staged work with the remote
repository before upload.`,
}

// env is the locally wired toolchain a command operates on. Every command
// except init expects a scope bound by a previous init.
type env struct {
	cfg    *config.Config
	db     *badger.DB
	store  *staging.Store
	remote *remote.GitHub
	orch   *validation.Orchestrator
	scope  scope
	logger *zap.Logger
}

type scope struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
	if e.logger != nil {
		e.logger.Sync()
	}
}

func scopePath() string {
	return filepath.Join(".dakforge", "scope.json")
}

func initEnv(requireScope bool) (*env, error) {
	cfg, err := config.Load("config.json")
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Database.Path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	e := &env{
		cfg:    cfg,
		db:     db,
		remote: remote.NewGitHub(cfg.Remote.BaseURL, cfg.Remote.Token),
		logger: logger,
	}
	e.store = staging.NewStore(storage.NewBadgerKV(db, "dak"), staging.Options{
		HistoryLimit: cfg.Staging.HistoryLimit,
		Logger:       logger,
	})
	e.orch = validation.NewOrchestrator(validation.NewDefaultRegistry(logger), e.remote, validation.OrchestratorOptions{
		CacheSize: cfg.Validation.CacheSize,
		CacheTTL:  cfg.CacheTTL(),
		Logger:    logger,
	})

	if !requireScope {
		return e, nil
	}

	data, err := os.ReadFile(scopePath())
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("no bound scope (run \"dakforge init <owner/repo> <branch>\" first): %w", err)
	}
	if err := json.Unmarshal(data, &e.scope); err != nil {
		e.Close()
		return nil, fmt.Errorf("reading bound scope: %w", err)
	}
	if err := e.store.Initialize(context.Background(), e.scope.Repository, e.scope.Branch); err != nil {
		e.Close()
		return nil, fmt.Errorf("binding staging scope: %w", err)
	}

	return e, nil
}

func init() {
	var initCmd = &cobra.Command{
		Use:   "init [owner/repo] [branch]",
		Short: "Bind the working directory to a DAK repository and branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.Initialize(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("binding staging scope: %w", err)
			}

			if err := os.MkdirAll(".dakforge", 0o755); err != nil {
				return fmt.Errorf("creating state directory: %w", err)
			}
			data, _ := json.MarshalIndent(scope{Repository: args[0], Branch: args[1]}, "", "  ")
			if err := os.WriteFile(scopePath(), data, 0o644); err != nil {
				return fmt.Errorf("writing scope file: %w", err)
			}

			fmt.Printf("Bound staging ground to %s@%s\n", args[0], args[1])
			return nil
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the staging ground",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			ground := e.store.GetStagingGround(cmd.Context())

			cyan := color.New(color.FgCyan).SprintFunc()
			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()

			fmt.Printf("On %s@%s\n", cyan(ground.Repository), cyan(ground.Branch))
			if ground.Message != "" {
				fmt.Printf("Commit message: %q\n", ground.Message)
			}

			if len(ground.Files) == 0 {
				fmt.Println("\nStaging ground is empty")
				return nil
			}

			fmt.Printf("\nStaged files (%d):\n", len(ground.Files))
			for _, f := range ground.Files {
				marker := green("S")
				label := f.Path
				if f.Metadata.IsRenamed {
					marker = yellow("R")
					label = fmt.Sprintf("%s <- %s", f.Path, f.Metadata.OriginalPath)
				}
				fmt.Printf("\t%s %s\n", marker, label)
			}
			return nil
		},
	}

	var stageCmd = &cobra.Command{
		Use:   "stage [paths...]",
		Short: "Stage local files into the staging ground",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			var files []staging.Contribution
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				files = append(files, staging.Contribution{
					Path:    filepath.ToSlash(path),
					Content: string(content),
				})
			}

			result := e.store.ContributeFiles(cmd.Context(), files, staging.FileMetadata{Source: "cli"})
			for _, r := range result.Results {
				if r.Success {
					fmt.Printf("staged %s\n", r.Path)
				} else {
					color.Red("failed %s: %s", r.Path, r.Error)
				}
			}
			if !result.Success {
				return fmt.Errorf("some files could not be staged")
			}
			return nil
		},
	}

	var unstageCmd = &cobra.Command{
		Use:   "unstage [paths...]",
		Short: "Remove files from the staging ground",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			for _, path := range args {
				if !e.store.RemoveFile(cmd.Context(), filepath.ToSlash(path)) {
					return fmt.Errorf("unstaging %s failed", path)
				}
				fmt.Printf("unstaged %s\n", path)
			}
			return nil
		},
	}

	var renameCmd = &cobra.Command{
		Use:   "rename [old] [new]",
		Short: "Rename a staged file, keeping its original-path provenance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.RenameFile(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("renaming: %w", err)
			}
			fmt.Printf("renamed %s -> %s\n", args[0], args[1])
			return nil
		},
	}

	var messageCmd = &cobra.Command{
		Use:   "message [text]",
		Short: "Set the commit message for the staged work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			if !e.store.UpdateCommitMessage(cmd.Context(), args[0]) {
				return fmt.Errorf("saving the message failed")
			}
			fmt.Println("Commit message updated")
			return nil
		},
	}

	var historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List saved staging ground states",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			history := e.store.History(cmd.Context())
			if len(history) == 0 {
				fmt.Println("No history yet")
				return nil
			}

			fmt.Println("\nSaved states (oldest first):")
			for _, entry := range history {
				when := time.UnixMilli(entry.SavedAt).Format(time.RFC3339)
				fmt.Printf("%d  %s  %d file(s)  %q\n",
					entry.SavedAt, when, len(entry.Ground.Files), entry.Ground.Message)
			}
			return nil
		},
	}

	var rollbackCmd = &cobra.Command{
		Use:   "rollback [savedAt]",
		Short: "Restore the staging ground to a saved state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			savedAt, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("savedAt must be a millisecond timestamp: %w", err)
			}

			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.RollbackToSave(cmd.Context(), savedAt); err != nil {
				return fmt.Errorf("rolling back: %w", err)
			}
			fmt.Printf("Restored staging ground to save %d\n", savedAt)
			return nil
		},
	}

	var clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Empty the staging ground (undoable via rollback)",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			if !e.store.Clear(cmd.Context()) {
				return fmt.Errorf("clearing the staging ground failed")
			}
			fmt.Println("Staging ground cleared")
			return nil
		},
	}

	var validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Validate the staging ground, or the whole DAK with --dak",
		RunE: func(cmd *cobra.Command, args []string) error {
			wholeDAK, _ := cmd.Flags().GetBool("dak")
			force, _ := cmd.Flags().GetBool("force")

			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			var report *validation.Report
			if wholeDAK {
				owner, repo, ok := strings.Cut(e.scope.Repository, "/")
				if !ok {
					return fmt.Errorf("bound repository %q is not owner/name", e.scope.Repository)
				}
				report, err = e.orch.ValidateDAK(cmd.Context(), owner, repo, e.scope.Branch, force)
				if err != nil {
					return fmt.Errorf("validating DAK: %w", err)
				}
			} else {
				ground := e.store.GetStagingGround(cmd.Context())
				report = e.orch.ValidateStagingGround(cmd.Context(), ground)
			}

			printReport(report)
			if !report.CanSave {
				return fmt.Errorf("validation reported blocking errors")
			}
			return nil
		},
	}
	validateCmd.Flags().Bool("dak", false, "Validate the full remote DAK instead of staged files")
	validateCmd.Flags().Bool("force", false, "Bypass the cached DAK report")

	var diffCmd = &cobra.Command{
		Use:   "diff [paths...]",
		Short: "Show staged changes against the remote branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			owner, repo, ok := strings.Cut(e.scope.Repository, "/")
			if !ok {
				return fmt.Errorf("bound repository %q is not owner/name", e.scope.Repository)
			}

			ground := e.store.GetStagingGround(cmd.Context())
			engine := diff.NewEngine(3)

			wanted := map[string]bool{}
			for _, p := range args {
				wanted[filepath.ToSlash(p)] = true
			}

			for _, f := range ground.Files {
				if len(wanted) > 0 && !wanted[f.Path] {
					continue
				}

				// Renamed files diff against their remote original.
				remotePath := f.Path
				if f.Metadata.IsRenamed && f.Metadata.OriginalPath != "" {
					remotePath = f.Metadata.OriginalPath
				}

				base, err := e.remote.GetFileContent(cmd.Context(), owner, repo, remotePath, e.scope.Branch)
				if err != nil {
					base = "" // new file: whole content is an addition
				}

				result := engine.Diff(base, f.Content)
				if len(result.Hunks) == 0 {
					continue
				}

				fmt.Printf("\ndiff --dak a/%s b/%s\n", remotePath, f.Path)
				printColoredDiff(result.Format())
			}
			return nil
		},
	}

	var exportCmd = &cobra.Command{
		Use:   "export [file]",
		Short: "Export the staging ground and history to a compressed snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			data, err := e.store.Export(cmd.Context())
			if err != nil {
				return fmt.Errorf("exporting: %w", err)
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return fmt.Errorf("writing snapshot: %w", err)
			}
			fmt.Printf("Exported staging ground to %s (%d bytes)\n", args[0], len(data))
			return nil
		},
	}

	var importCmd = &cobra.Command{
		Use:   "import [file]",
		Short: "Import a previously exported snapshot into the bound scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading snapshot: %w", err)
			}
			if err := e.store.Import(cmd.Context(), data); err != nil {
				return fmt.Errorf("importing: %w", err)
			}

			ground := e.store.GetStagingGround(cmd.Context())
			fmt.Printf("Imported %d staged file(s)\n", len(ground.Files))
			return nil
		},
	}

	var cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale staging grounds from other repository scopes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			removed, err := e.store.Cleanup(cmd.Context(), e.cfg.RetentionAge())
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			fmt.Printf("Removed %d stale staging ground(s)\n", removed)
			return nil
		},
	}

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Auto-stage artifact files as they change on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(true)
			if err != nil {
				return err
			}
			defer e.Close()

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			watcher, err := autostage.New(cwd, e.store, e.logger)
			if err != nil {
				return fmt.Errorf("starting watcher: %w", err)
			}
			defer watcher.Close()

			fmt.Printf("Watching %s for artifact changes (Ctrl-C to stop)\n", cwd)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			return nil
		},
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(unstageCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(watchCmd)
}

func printReport(report *validation.Report) {
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	blue := color.New(color.FgBlue).SprintFunc()

	if len(report.Results) == 0 {
		color.Green("No findings across %d file(s)", report.FilesTotal)
		return
	}

	for _, r := range report.Results {
		marker := blue("I")
		switch r.Level {
		case validation.LevelError:
			marker = red("E")
		case validation.LevelWarning:
			marker = yellow("W")
		}

		location := r.FilePath
		if r.Line > 0 {
			location = fmt.Sprintf("%s:%d", r.FilePath, r.Line)
		}
		fmt.Printf("%s [%s] %s: %s\n", marker, r.Component, location, r.Message)
		if r.Suggestion != "" {
			fmt.Printf("\thint: %s\n", r.Suggestion)
		}
	}

	fmt.Printf("\n%d error(s), %d warning(s), %d info across %d file(s)\n",
		report.Counts.Errors, report.Counts.Warnings, report.Counts.Infos, report.FilesTotal)
	if report.CanSave {
		color.Green("Staging ground can be saved")
	} else {
		color.Red("Blocking errors present")
	}
}

func printColoredDiff(diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, line := range strings.Split(diff, "\n") {
		if len(line) == 0 {
			fmt.Println()
			continue
		}

		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

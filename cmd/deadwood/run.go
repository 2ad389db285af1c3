package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/deadwood/pkg/prune/config"
	"github.com/jamesainslie/deadwood/pkg/prune/logging"
	"github.com/jamesainslie/deadwood/pkg/prune/report"
	"github.com/jamesainslie/deadwood/pkg/prune/session"
	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// runPrune drives a full analyze-approve-execute cycle.
func runPrune(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		printError("Failed to load configuration: %v", err)
		return err
	}
	if err := initLogging(cfg); err != nil {
		printError("Failed to initialize logging: %v", err)
		return err
	}
	defer logging.Close()

	// Interruption finishes the in-flight operation, checkpoints, and
	// exits; a later --resume continues from the checkpoint.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dryRun := viper.GetBool("dry_run")

	var mgr *session.Manager
	if viper.GetBool("resume") {
		mgr, err = session.Resume(root, cfg)
	} else {
		mgr, err = session.New(root, cfg)
	}
	if err != nil {
		var cse *types.ConcurrentSessionError
		if errors.As(err, &cse) {
			printError("Another session (pid %d) is active for this project.", cse.PID)
			return err
		}
		printError("%v", err)
		return err
	}
	defer mgr.Close()

	// A session parked for a decision has its files archived already;
	// re-running the proposals would fail on the moved files.
	if viper.GetBool("resume") && mgr.Session().Phase == session.PhaseAwaitingDecision {
		return resolveDecision(mgr)
	}

	proposals := mgr.Session().Proposals
	if len(proposals) == 0 || !viper.GetBool("resume") {
		printInfo("Analyzing %s ...", root)
		proposals, err = mgr.ProposeActions(ctx)
		if err != nil {
			printError("Analysis failed: %v", err)
			return err
		}
	}

	if len(proposals) == 0 {
		printInfo("No removal candidates found.")
		return finishReport(mgr, dryRun)
	}

	if dryRun {
		printInfo("Dry run: %d candidate(s), nothing will be moved.", len(proposals))
		if err := finishReport(mgr, true); err != nil {
			return err
		}
		return mgr.Abort()
	}

	if viper.GetBool("yes") {
		mgr.ApproveAll(true)
	} else {
		if err := promptApprovals(mgr, proposals); err != nil {
			return err
		}
	}

	approved := 0
	for _, p := range proposals {
		if p.Approved() {
			approved++
		}
	}
	if approved == 0 {
		printInfo("Nothing approved; no changes made.")
		return mgr.Abort()
	}

	printInfo("Archiving %d file(s) ...", approved)
	_, _, execErr := mgr.Execute(ctx)

	if reportErr := finishReport(mgr, false); reportErr != nil {
		return reportErr
	}

	switch {
	case execErr == nil:
		return nil
	case errors.Is(execErr, types.ErrRegression):
		printError("Tests regressed; all changes were rolled back.")
		return execErr
	case errors.Is(execErr, types.ErrTestExecution):
		printError("Test run was inconclusive; archive kept as-is. Re-run with --resume to keep or roll back.")
		return execErr
	case errors.Is(execErr, context.Canceled):
		printInfo("Interrupted; session checkpointed. Continue with --resume.")
		return nil
	default:
		printError("%v", execErr)
		return execErr
	}
}

// resolveDecision settles a resumed session whose validation was
// inconclusive: keep the archive as it stands, or roll the transaction
// back to the restore point.
func resolveDecision(mgr *session.Manager) error {
	sess := mgr.Session()
	printInfo("Previous validation was inconclusive: %s", sess.Error)
	printInfo("%d file(s) remain archived under restore point %s.", sess.Stats.Archived, sess.RestorePointID)

	keep := true
	if !viper.GetBool("yes") {
		fmt.Print("  keep archive or roll back? [K/r] ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read decision: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "r", "rollback":
			keep = false
		}
	}

	if err := mgr.Resolve(keep); err != nil {
		printError("%v", err)
		return err
	}
	if keep {
		printInfo("Archive kept.")
	} else {
		printInfo("All changes rolled back.")
	}
	return finishReport(mgr, false)
}

// promptApprovals collects a per-file decision on stdin.
func promptApprovals(mgr *session.Manager, proposals []*types.ProposedAction) error {
	reader := bufio.NewReader(os.Stdin)
	for i, p := range proposals {
		fmt.Printf("[%d/%d] %s  %s  confidence %.2f (%s)\n",
			i+1, len(proposals), p.File.RelPath, p.File.HumanSize(), p.Confidence, p.Reason)
		fmt.Print("  archive? [y/N/a=all/q=quit] ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read decision: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			mgr.Approve(p.File.RelPath, true)
		case "a", "all":
			mgr.ApproveAll(true)
			return nil
		case "q", "quit":
			mgr.ApproveAll(false)
			return nil
		default:
			mgr.Approve(p.File.RelPath, false)
		}
	}
	return nil
}

// finishReport renders the session report in the selected format.
func finishReport(mgr *session.Manager, dryRun bool) error {
	formatter, err := report.Get(viper.GetString("format"))
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, report.Build(mgr.Session(), dryRun)); err != nil {
		return err
	}
	fmt.Print(buf.String())
	return nil
}

// loadConfig loads the file/env configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if w := viper.GetInt("workers"); w > 0 {
		cfg.Workers = w
	}
	return cfg, nil
}

// initLogging configures logging from config plus verbosity flags.
func initLogging(cfg *config.Config) error {
	logCfg := logging.Config{
		Level:      cfg.Logging.Level,
		Path:       cfg.Logging.Path,
		Components: cfg.Logging.Components,
	}
	if viper.GetBool("verbose") {
		logCfg.Level = "debug"
		logCfg.ConsoleLevel = "debug"
	}
	return logging.Init(logCfg)
}

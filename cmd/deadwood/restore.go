package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/deadwood/pkg/prune/config"
	"github.com/jamesainslie/deadwood/pkg/prune/logging"
	"github.com/jamesainslie/deadwood/pkg/prune/migrate"
	"github.com/jamesainslie/deadwood/pkg/prune/rollback"
	"github.com/jamesainslie/deadwood/pkg/prune/session"
	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

var restoreCmd = &cobra.Command{
	Use:   "restore [restore-point-id]",
	Short: "Restore archived files",
	Long: `Restore the project to a previous restore point, moving archived
files back to their original locations with hash verification.

Without an argument, lists available restore points.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRestore,
}

var restorePath string

func init() {
	restoreCmd.Flags().StringVarP(&restorePath, "path", "p", ".", "project root")
	rootCmd.AddCommand(restoreCmd)
}

// withRollbackManager opens the project's durable state under the session
// lock and hands a rollback manager to fn.
func withRollbackManager(root string, fn func(*rollback.Manager) error) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	stateDir := config.StateDir(absRoot)

	lock, err := session.AcquireLock(stateDir, "restore")
	if err != nil {
		return err
	}
	defer lock.Release()

	oplog, err := migrate.OpenOpLog(stateDir)
	if err != nil {
		return err
	}
	defer oplog.Close()

	engine := migrate.NewEngine(absRoot, stateDir, oplog)
	return fn(rollback.NewManager(stateDir, oplog, engine))
}

// runRestore lists restore points or rolls back to one.
func runRestore(cmd *cobra.Command, args []string) error {
	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
		return err
	}
	defer logging.Close()

	return withRollbackManager(restorePath, func(m *rollback.Manager) error {
		if len(args) == 0 {
			points, err := m.List()
			if err != nil {
				return err
			}
			if len(points) == 0 {
				printInfo("No restore points found.")
				return nil
			}
			printInfo("Restore points (newest first):")
			for _, rp := range points {
				printInfo("  %s  %s  %s", rp.ID,
					rp.CreatedAt.Local().Format("2006-01-02 15:04:05"), rp.Description)
			}
			return nil
		}

		rp, err := m.Load(args[0])
		if err != nil {
			return err
		}
		if err := m.RollbackTo(rp); err != nil {
			var incomplete *types.RollbackIncompleteError
			if errors.As(err, &incomplete) {
				printError("Rollback incomplete: %d file(s) could not be restored:", len(incomplete.Failures))
				for _, f := range incomplete.Failures {
					printError("  %s: %s", f.Path, f.Reason)
				}
			}
			return err
		}
		fmt.Printf("Restored to %s\n", rp.ID)
		return nil
	})
}

package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/deadwood/pkg/prune/config"
	"github.com/jamesainslie/deadwood/pkg/prune/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions for a project",
	Long: `List the active session (if any) and finished sessions for a project,
with their phase and outcome.`,
	RunE: runSessions,
}

var sessionsPath string

func init() {
	sessionsCmd.Flags().StringVarP(&sessionsPath, "path", "p", ".", "project root")
	rootCmd.AddCommand(sessionsCmd)
}

// runSessions lists the active and archived sessions.
func runSessions(cmd *cobra.Command, args []string) error {
	absRoot, err := filepath.Abs(sessionsPath)
	if err != nil {
		return err
	}
	stateDir := config.StateDir(absRoot)

	active, err := session.LoadActive(stateDir)
	if err != nil {
		return err
	}
	if active != nil {
		printInfo("Active session:")
		printSession(active)
	}

	archived, err := session.ListArchived(stateDir)
	if err != nil {
		return err
	}
	if len(archived) == 0 && active == nil {
		printInfo("No sessions found.")
		return nil
	}
	if len(archived) > 0 {
		printInfo("Finished sessions:")
		for _, s := range archived {
			printSession(s)
		}
	}
	return nil
}

func printSession(s *session.Session) {
	printInfo("  %s  %-18s  scanned %d, archived %d",
		s.ID, s.Phase, s.Stats.FilesScanned, s.Stats.Archived)
}

package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/deadwood/pkg/prune/config"
	"github.com/jamesainslie/deadwood/pkg/prune/migrate"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View transaction history",
	Long: `View past archive transactions for a project, including which files
were moved and whether the transaction committed or rolled back.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <tx-id>",
	Short: "Show details of a transaction",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var (
	historyPath  string
	historyLimit int
)

func init() {
	historyCmd.PersistentFlags().StringVarP(&historyPath, "path", "p", ".", "project root")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyStateDir() (string, error) {
	absRoot, err := filepath.Abs(historyPath)
	if err != nil {
		return "", err
	}
	return config.StateDir(absRoot), nil
}

// runHistory lists recent transactions.
func runHistory(cmd *cobra.Command, args []string) error {
	stateDir, err := historyStateDir()
	if err != nil {
		return err
	}

	txs, err := migrate.ListTransactions(stateDir)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		printInfo("No transactions found.")
		printInfo("Run 'deadwood [path]' to analyze a project.")
		return nil
	}

	start := 0
	if historyLimit > 0 && len(txs) > historyLimit {
		start = len(txs) - historyLimit
	}
	for _, tx := range txs[start:] {
		var size int64
		for _, op := range tx.CommittedOps() {
			size += op.Size
		}
		printInfo("%s  %-12s  %3d file(s)  %8s  %s",
			tx.ID, tx.Status, len(tx.Operations),
			humanize.IBytes(uint64(size)), tx.Description)
	}
	return nil
}

// runHistoryShow prints one transaction in full.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	stateDir, err := historyStateDir()
	if err != nil {
		return err
	}

	tx, err := migrate.LoadTransaction(stateDir, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Transaction %s\n", tx.ID)
	fmt.Printf("  status:   %s\n", tx.Status)
	fmt.Printf("  started:  %s\n", tx.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  ended:    %s\n", tx.EndedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  operations:\n")
	for _, op := range tx.Operations {
		fmt.Printf("    %-11s  %s -> %s  %s\n",
			op.Status, op.RelPath, op.ArchivePath, humanize.IBytes(uint64(op.Size)))
		if op.Error != "" {
			fmt.Printf("      error: %s\n", op.Error)
		}
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/cx-miguel-neiva/lightkeeper/internal/db"
	"github.com/cx-miguel-neiva/lightkeeper/internal/model"
	"github.com/spf13/cobra"
)

// historyCmd returns the command exporting the run history as JSON
func historyCmd() *cobra.Command {
	var dbPath, repo, reportPath string
	var limit int
	var clearData bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Export the recorded runs as JSON",
		Long: `Exports the recorded runs and their per-route results as JSON.
With --clear the history is deleted once the export has been written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(dbPath); os.IsNotExist(err) {
				return fmt.Errorf("database does not exist at path: %s", dbPath)
			}
			conn, err := db.NewConnection(dbPath)
			if err != nil {
				return err
			}
			defer conn.Close()

			runs, err := conn.ListRuns(cmd.Context(), repo, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			jsonData, err := model.HistoryToJson(runs)
			if err != nil {
				return fmt.Errorf("failed to convert history to JSON: %w", err)
			}

			if reportPath == "" {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(jsonData)); err != nil {
					return err
				}
			} else if err := os.WriteFile(reportPath, jsonData, 0644); err != nil {
				return fmt.Errorf("failed to write JSON to file: %w", err)
			}

			if clearData {
				if err := conn.ClearAllData(); err != nil {
					return fmt.Errorf("failed to clear database: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "data/lightkeeper.db", "Path to the SQLite run history")
	cmd.Flags().StringVar(&repo, "repo", "", "Only export runs of this owner/name repository")
	cmd.Flags().IntVar(&limit, "limit", 0, "Export at most this many runs, newest first")
	cmd.Flags().StringVar(&reportPath, "report-path", "", "Path to save the JSON report (default: stdout)")
	cmd.Flags().BoolVar(&clearData, "clear", false, "Delete every recorded run after exporting")

	return cmd
}

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last sync of every service",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, closeApp, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	statuses, err := a.Status.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load sync status: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tLAST SYNC\tIN PROGRESS\tERROR")
	for _, s := range statuses {
		last := "never"
		if s.LastSyncAt.Valid {
			last = s.LastSyncAt.Time.Local().Format(time.DateTime)
		}
		errMsg := "-"
		if s.Failed() {
			errMsg = s.ErrorMessage.String
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", s.Service, last, s.InProgress, errMsg)
	}
	return w.Flush()
}

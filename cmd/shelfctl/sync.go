package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/syncer"
)

var syncJSON bool

var syncCmd = &cobra.Command{
	Use:   "sync [service...]",
	Short: "Run one blocking sync pass",
	Long: `Runs a full sync pass for the given services (discogs, bgg, hardcover)
and waits for it to finish. Without arguments every configured service is
synced, one after another.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "print pass summaries as JSON")
	rootCmd.AddCommand(syncCmd)
}

type syncResult struct {
	Service string         `json:"service"`
	Summary syncer.Summary `json:"summary"`
	Error   string         `json:"error,omitempty"`
}

func runSync(cmd *cobra.Command, args []string) error {
	services := make([]models.Service, 0, len(args))
	for _, arg := range args {
		s, ok := models.ParseService(arg)
		if !ok {
			return fmt.Errorf("unknown service %q", arg)
		}
		services = append(services, s)
	}

	ctx := cmd.Context()
	a, closeApp, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	if len(services) == 0 {
		services = a.Scheduler.Services()
	}
	if len(services) == 0 {
		return fmt.Errorf("no services are configured")
	}

	results := make([]syncResult, 0, len(services))
	failed := 0
	for _, service := range services {
		o, ok := a.Scheduler.Orchestrator(service)
		if !ok {
			return fmt.Errorf("service %s is not configured", service)
		}

		if !syncJSON {
			cmd.Printf("Synchronising %s...\n", service)
		}
		summary, err := o.RunOnce(ctx)
		result := syncResult{Service: string(service), Summary: summary}
		if err != nil {
			failed++
			result.Error = err.Error()
		}
		results = append(results, result)

		if syncJSON {
			continue
		}
		if err != nil {
			cmd.PrintErrf("%s failed: %v\n", service, err)
			continue
		}
		cmd.Printf("%s: %d records (%d ok, %d failed, %d skipped)\n",
			service, summary.Records, summary.Succeeded, summary.Failed, summary.Skipped)
	}

	if syncJSON {
		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d services failed", failed, len(services))
	}
	return nil
}

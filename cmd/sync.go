package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/pharmhunter/internal/crm"
	"github.com/sells-group/pharmhunter/internal/history"
)

var (
	syncSink     string
	syncAll      bool
	syncMinScore int
	syncDryRun   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push qualified companies from history into Salesforce and Notion",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.LoadAll(ctx)
		if err != nil {
			return err
		}
		recs = selectForSync(recs, syncAll, syncMinScore)

		out := cmd.OutOrStdout()
		if syncDryRun {
			formatCompanies(out, recs)
			_, _ = fmt.Fprintf(out, "%d companies would be pushed\n", len(recs))
			return nil
		}
		if len(recs) == 0 {
			_, _ = fmt.Fprintln(out, warnStyle.Render("nothing to sync"))
			return nil
		}

		sinks, err := initSinks(cfg, syncSink)
		if err != nil {
			return err
		}
		results, err := crm.PushAll(ctx, sinks, recs)
		formatSyncResults(out, results)
		return err
	},
}

// selectForSync keeps qualified records unless all is set, then drops
// those below minScore.
func selectForSync(recs []history.Record, all bool, minScore int) []history.Record {
	if !all {
		recs = crm.Qualified(recs)
	}
	if minScore <= 0 {
		return recs
	}
	var out []history.Record
	for _, r := range recs {
		if r.BestScore != nil && *r.BestScore >= minScore {
			out = append(out, r)
		}
	}
	return out
}

func init() {
	syncCmd.Flags().StringVar(&syncSink, "sink", "", "only push to this sink (salesforce or notion)")
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "push every company, not only qualified ones")
	syncCmd.Flags().IntVar(&syncMinScore, "min-score", 0, "minimum best ICP score")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "list what would be pushed without calling any CRM")
	rootCmd.AddCommand(syncCmd)
}

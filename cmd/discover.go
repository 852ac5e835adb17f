package main

import (
	"encoding/json"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pharmhunter/internal/export"
	"github.com/sells-group/pharmhunter/internal/model"
)

var (
	discoverParams paramFlags
	discoverJSON   bool
	discoverLeads  string
)

// discoverCmd runs only the discovery loop. Nothing is written to history,
// so the same companies come back on the next run.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run the discovery loop without scoring or recording history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		params, err := discoverParams.params()
		if err != nil {
			return err
		}

		env, err := initHunt(ctx, "discover", huntHooks{
			progress: progressPrinter(cmd.ErrOrStderr()),
			noScore:  true,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		res, discErr := env.Discovery.Discover(ctx, params)
		if res == nil {
			return discErr
		}

		leads := make([]model.Lead, len(res.Leads))
		for i, c := range res.Leads {
			leads[i] = model.NewLead(c)
		}
		if discoverLeads != "" {
			err := writeFile(discoverLeads, func(w io.Writer) error {
				return export.Leads(w, export.FormatForPath(discoverLeads), leads)
			})
			if err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if discoverJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{"leads": res.Leads, "search_ledger": res.Ledger}); err != nil {
				return eris.Wrap(err, "encode discovery result")
			}
			return discErr
		}

		formatLedger(out, res.Ledger)
		if res.Ledger != nil && res.Ledger.Message != "" {
			_, _ = io.WriteString(out, warnStyle.Render(res.Ledger.Message)+"\n")
		}
		if len(leads) > 0 {
			_, _ = io.WriteString(out, "\n")
			formatLeads(out, leads)
		}
		return discErr
	},
}

func init() {
	discoverParams.register(discoverCmd.Flags())
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "print leads and the search ledger as JSON")
	discoverCmd.Flags().StringVar(&discoverLeads, "leads", "", "write leads to this path (.csv or .xlsx)")
	rootCmd.AddCommand(discoverCmd)
}

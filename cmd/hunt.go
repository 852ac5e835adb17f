package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/pharmhunter/internal/discovery"
	"github.com/sells-group/pharmhunter/internal/export"
	"github.com/sells-group/pharmhunter/internal/model"
	"github.com/sells-group/pharmhunter/internal/report"
)

// paramFlags are the hunt parameters shared by hunt, discover and plan.
type paramFlags struct {
	quota      int
	focus      string
	phase      string
	geography  string
	exclusions string
	rounds     int
}

func (p *paramFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&p.quota, "quota", 0, "number of new companies wanted (default from config)")
	fs.StringVar(&p.focus, "focus", "", "therapeutic focus, e.g. \"Oncology\"")
	fs.StringVar(&p.phase, "phase", "", "clinical phase, e.g. \"Phase 2\"")
	fs.StringVar(&p.geography, "geography", "", "geography (default Global)")
	fs.StringVar(&p.exclusions, "exclusions", "", "free-text exclusions passed to extraction")
	fs.IntVar(&p.rounds, "rounds", 0, "maximum search rounds (default from config)")
}

// params merges the flags over the configured defaults and validates.
func (p *paramFlags) params() (model.HuntParams, error) {
	d := huntDefaults(cfg)
	hp := model.HuntParams{
		Quota:      p.quota,
		Focus:      strings.TrimSpace(p.focus),
		Phase:      strings.TrimSpace(p.phase),
		Geography:  strings.TrimSpace(p.geography),
		Exclusions: strings.TrimSpace(p.exclusions),
		MaxRounds:  p.rounds,
	}
	if hp.Quota == 0 {
		hp.Quota = d.Quota
	}
	if hp.MaxRounds == 0 {
		hp.MaxRounds = d.MaxRounds
	}
	hp = hp.WithDefaults()
	if err := hp.Validate(); err != nil {
		return hp, err
	}
	return hp, nil
}

var (
	huntParams  paramFlags
	huntReport  string
	huntLeads   string
	huntJSON    bool
	huntNoScore bool
	huntNoDraft bool
)

var huntCmd = &cobra.Command{
	Use:   "hunt",
	Short: "Discover, score and draft outreach for new companies",
	Long:  "Runs the discovery loop until the quota of companies not seen in earlier hunts is met or rounds run out, then scores the new companies against the ICP, drafts outreach for qualified ones and records everything in history.",
	Example: `  pharmhunter hunt --focus Oncology --phase "Phase 2" --quota 10
  pharmhunter hunt --focus CNS --phase "Phase 1" --report hunt.html --leads leads.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		params, err := huntParams.params()
		if err != nil {
			return err
		}

		progressOut := cmd.ErrOrStderr()
		env, err := initHunt(ctx, "hunt", huntHooks{
			progress: progressPrinter(progressOut),
			stage: func(huntID, stage string) {
				_, _ = fmt.Fprintln(progressOut, labelStyle.Render("stage: "+stage))
			},
			noScore: huntNoScore,
			noDraft: huntNoDraft,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		st, runErr := env.Runner.Run(ctx, params)
		if st == nil {
			return runErr
		}
		if runErr != nil {
			zap.L().Error("hunt did not complete", zap.String("hunt_id", st.HuntID), zap.Error(runErr))
		}

		if err := writeArtifacts(st, huntReport, huntLeads); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if huntJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(st); err != nil {
				return eris.Wrap(err, "encode hunt state")
			}
		} else {
			formatHuntSummary(out, st)
		}
		return runErr
	},
}

// progressPrinter writes one line per discovery progress event.
func progressPrinter(out io.Writer) discovery.ProgressFunc {
	return func(p discovery.Progress) {
		if p.Query == "" {
			_, _ = fmt.Fprintf(out, "%s %s\n", labelStyle.Render(fmt.Sprintf("[%d/%d]", p.Accumulated, p.Quota)), p.Message)
			return
		}
		_, _ = fmt.Fprintf(out, "%s round %d/%d query %d/%d: %s\n",
			labelStyle.Render(fmt.Sprintf("[%d/%d]", p.Accumulated, p.Quota)),
			p.Round, p.MaxRounds, p.QueryIndex, p.QueryCount, truncate(p.Query, 80))
	}
}

// writeArtifacts writes the optional report and lead export. The report
// format follows the extension: .html renders HTML, anything else markdown.
func writeArtifacts(st *model.PipelineState, reportPath, leadsPath string) error {
	if reportPath != "" {
		var body string
		if strings.EqualFold(filepath.Ext(reportPath), ".html") {
			page, err := report.HTML(st)
			if err != nil {
				return err
			}
			body = page
		} else {
			body = report.Markdown(st)
		}
		if err := os.WriteFile(reportPath, []byte(body), 0o644); err != nil {
			return eris.Wrapf(err, "write report %s", reportPath)
		}
		zap.L().Info("report written", zap.String("path", reportPath))
	}

	if leadsPath != "" {
		err := writeFile(leadsPath, func(w io.Writer) error {
			return export.Leads(w, export.FormatForPath(leadsPath), st.Leads)
		})
		if err != nil {
			return err
		}
		zap.L().Info("leads written", zap.String("path", leadsPath), zap.Int("leads", len(st.Leads)))
	}
	return nil
}

func writeFile(path string, fn func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "close %s", path)
	}
	return nil
}

func init() {
	huntParams.register(huntCmd.Flags())
	huntCmd.Flags().StringVar(&huntReport, "report", "", "write a report to this path (.md or .html)")
	huntCmd.Flags().StringVar(&huntLeads, "leads", "", "write leads to this path (.csv or .xlsx)")
	huntCmd.Flags().BoolVar(&huntJSON, "json", false, "print the full hunt state as JSON")
	huntCmd.Flags().BoolVar(&huntNoScore, "no-score", false, "skip ICP scoring and drafting")
	huntCmd.Flags().BoolVar(&huntNoDraft, "no-draft", false, "skip outreach drafting")
	rootCmd.AddCommand(huntCmd)
}

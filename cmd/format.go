package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sells-group/pharmhunter/internal/crm"
	"github.com/sells-group/pharmhunter/internal/history"
	"github.com/sells-group/pharmhunter/internal/model"
	"github.com/sells-group/pharmhunter/internal/planner"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	goodStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("82"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatHuntSummary writes the funnel and lead table for a finished hunt.
func formatHuntSummary(out io.Writer, st *model.PipelineState) {
	_, _ = fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Hunt %s: %s %s", truncateID(st.HuntID), st.Params.Focus, st.Params.Phase)))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	row := func(label string, v int) {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", labelStyle.Render(label), v)
	}
	row("Top of funnel", st.TopOfFunnelCount)
	row("Duplicates filtered", st.DuplicatesFiltered)
	row("New companies", st.NewCompaniesFound)
	row("Scored", st.ScoredCount)
	row("Qualified", st.QualifiedCount)
	row("Drafted", st.DraftedCount)
	if st.FinishedAt != nil {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", labelStyle.Render("Duration"), st.FinishedAt.Sub(st.StartedAt).Round(time.Second))
	}
	_ = w.Flush()

	if st.Ledger != nil {
		if st.Ledger.HistoryUnavailable {
			_, _ = fmt.Fprintln(out, warnStyle.Render("history unavailable: duplicates from earlier hunts were not filtered"))
		}
		if st.Ledger.Message != "" {
			_, _ = fmt.Fprintln(out, warnStyle.Render(st.Ledger.Message))
		}
	}

	if len(st.Leads) > 0 {
		_, _ = fmt.Fprintln(out)
		formatLeads(out, st.Leads)
	}

	for _, e := range st.ErrorList() {
		_, _ = fmt.Fprintln(out, errStyle.Render("error: ")+e)
	}
}

func formatLeads(out io.Writer, leads []model.Lead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPANY\tAREA\tPHASE\tSOURCE\tSCORE\tQUALIFIED")
	_, _ = fmt.Fprintln(w, "-------\t----\t-----\t------\t-----\t---------")
	for _, l := range leads {
		source, score, qualified := "", "-", "-"
		if l.Provenance != nil {
			source = l.Provenance.SourceName
		}
		if l.Scoring != nil {
			score = strconv.Itoa(l.Scoring.ICPScore)
			qualified = "no"
			if l.Scoring.Qualified {
				qualified = goodStyle.Render("yes")
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(l.CompanyName, 36), truncate(l.TherapeuticArea, 24), l.ClinicalPhase, source, score, qualified)
	}
	_ = w.Flush()
}

// formatLedger prints one line per query in the search ledger.
func formatLedger(out io.Writer, l *model.SearchLedger) {
	if l == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "%s %d rounds, %d queries, %d results, %d unique, %d new\n",
		labelStyle.Render("search:"), l.SearchRounds, l.TotalQueries, l.TotalResultsFound, l.UniqueResultsFound, l.NewLeads)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROUND\tSOURCE\tTIER\tRESULTS\tQUERY")
	for _, s := range l.Sources {
		results := strconv.Itoa(s.ResultsCount)
		if !s.WasSuccessful {
			results = errStyle.Render("failed")
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", s.Round, s.SourceName, s.SourcePriority, results, truncate(s.QueryText, 80))
	}
	_ = w.Flush()
}

func formatPlan(out io.Writer, rounds []planner.RoundPlan) {
	for _, r := range rounds {
		_, _ = fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Round %d (tier %d, %s)", r.Round, r.Tier, r.Source.Name)))
		if len(r.Domains) > 0 {
			_, _ = fmt.Fprintf(out, "%s %s\n", labelStyle.Render("domains:"), strings.Join(r.Domains, ", "))
		} else {
			_, _ = fmt.Fprintln(out, labelStyle.Render("domains: open web"))
		}
		for i, q := range r.Queries {
			_, _ = fmt.Fprintf(out, "  %d. %s\n", i+1, q)
		}
	}
}

func formatCompanies(out io.Writer, recs []history.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPANY\tSEEN\tLAST SEEN\tBEST\tQUALIFIED\tAREAS")
	_, _ = fmt.Fprintln(w, "-------\t----\t---------\t----\t---------\t-----")
	for _, r := range recs {
		best := "-"
		if r.BestScore != nil {
			best = strconv.Itoa(*r.BestScore)
		}
		qualified := "no"
		if r.WasQualified {
			qualified = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			truncate(r.CompanyName, 36), r.TimesDiscovered, r.LastSeen.Format("2006-01-02"), best, qualified,
			truncate(strings.Join(r.TherapeuticAreas, ", "), 40))
	}
	_ = w.Flush()
}

func formatCompany(out io.Writer, r *history.Record) {
	_, _ = fmt.Fprintln(out, titleStyle.Render(r.CompanyName))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Key:\t%s\n", r.NormalizedName)
	if r.Website != "" {
		_, _ = fmt.Fprintf(w, "Website:\t%s\n", r.Website)
	}
	_, _ = fmt.Fprintf(w, "First seen:\t%s\n", r.FirstSeen.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Last seen:\t%s\n", r.LastSeen.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Times discovered:\t%d\n", r.TimesDiscovered)
	_, _ = fmt.Fprintf(w, "Areas:\t%s\n", strings.Join(r.TherapeuticAreas, ", "))
	_, _ = fmt.Fprintf(w, "Phases:\t%s\n", strings.Join(r.ClinicalPhases, ", "))
	scores := make([]string, len(r.ICPScores))
	for i, s := range r.ICPScores {
		scores[i] = strconv.Itoa(s)
	}
	_, _ = fmt.Fprintf(w, "ICP scores:\t%s\n", strings.Join(scores, ", "))
	_, _ = fmt.Fprintf(w, "Qualified:\t%t\n", r.WasQualified)
	_, _ = fmt.Fprintf(w, "Hunts:\t%s\n", strings.Join(r.HuntIDs, ", "))
	for _, u := range r.SourceURLs {
		_, _ = fmt.Fprintf(w, "Source:\t%s\n", u)
	}
	_ = w.Flush()
}

func formatStats(out io.Writer, s history.Statistics) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total companies:\t%d\n", s.TotalCompanies)
	_, _ = fmt.Fprintf(w, "Total hunts:\t%d\n", s.TotalHunts)
	_, _ = fmt.Fprintf(w, "Qualified:\t%d\n", s.QualifiedCompanies)
	_, _ = fmt.Fprintf(w, "Disqualified:\t%d\n", s.DisqualifiedCompanies)
	_, _ = fmt.Fprintf(w, "Average best score:\t%.1f\n", s.AverageBestScore)

	areas := make([]string, 0, len(s.AreaDistribution))
	for a := range s.AreaDistribution {
		areas = append(areas, a)
	}
	sort.Slice(areas, func(i, j int) bool {
		ci, cj := s.AreaDistribution[areas[i]], s.AreaDistribution[areas[j]]
		if ci != cj {
			return ci > cj
		}
		return areas[i] < areas[j]
	})
	for _, a := range areas {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", a, s.AreaDistribution[a])
	}
	_ = w.Flush()
}

func formatHunts(out io.Writer, hunts []history.HuntSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tWHEN\tFOUND\tNEW\tDUPES\tQUALIFIED\tFOCUS")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t---\t-----\t---------\t-----")
	for _, h := range hunts {
		focus, _ := h.Params["therapeutic_focus"].(string)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(h.HuntID), h.Timestamp.Format("2006-01-02 15:04"),
			h.CompaniesFound, h.NewCompanies, h.DuplicatesFiltered, h.QualifiedCount, focus)
	}
	_ = w.Flush()
}

func formatSyncResults(out io.Writer, results []*crm.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SINK\tCREATED\tUPDATED\tFAILED")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", r.Sink, r.Created, r.Updated, r.Failed)
	}
	_ = w.Flush()
	for _, r := range results {
		for _, e := range r.Errors {
			_, _ = fmt.Fprintln(out, errStyle.Render(r.Sink+": ")+e)
		}
	}
}

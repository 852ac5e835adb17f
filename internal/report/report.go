// Package report renders a finished hunt as Markdown or sanitized HTML.
package report

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/sells-group/pharmhunter/internal/model"
)

// Markdown renders the hunt report.
func Markdown(st *model.PipelineState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Hunt Report: %s %s\n\n", st.Params.Focus, st.Params.Phase)
	fmt.Fprintf(&b, "Hunt ID: `%s`\n", st.HuntID)
	fmt.Fprintf(&b, "Started: %s\n", st.StartedAt.UTC().Format(time.RFC3339))
	if st.FinishedAt != nil {
		fmt.Fprintf(&b, "Duration: %s\n", st.FinishedAt.Sub(st.StartedAt).Round(time.Second))
	}
	b.WriteString("\n")

	b.WriteString("## Funnel\n\n")
	b.WriteString("| Stage | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Top of funnel | %d |\n", st.TopOfFunnelCount)
	fmt.Fprintf(&b, "| Duplicates filtered | %d |\n", st.DuplicatesFiltered)
	fmt.Fprintf(&b, "| New companies | %d |\n", st.NewCompaniesFound)
	fmt.Fprintf(&b, "| Scored | %d |\n", st.ScoredCount)
	fmt.Fprintf(&b, "| Qualified | %d |\n", st.QualifiedCount)
	fmt.Fprintf(&b, "| Drafted | %d |\n\n", st.DraftedCount)

	if l := st.Ledger; l != nil {
		writeLedger(&b, l)
	}

	if len(st.DuplicateDetails) > 0 {
		b.WriteString("## Duplicates\n\n")
		b.WriteString("| Candidate | Reason | Matched | Score | Times seen |\n|---|---|---|---|---|\n")
		for _, d := range st.DuplicateDetails {
			times := "-"
			if d.TimesDiscovered > 0 {
				times = fmt.Sprint(d.TimesDiscovered)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n",
				cell(d.CandidateName), d.Reason, cell(d.MatchedName), d.MatchScore, times)
		}
		b.WriteString("\n")
	}

	writeLeads(&b, st.Leads)

	if errs := st.ErrorList(); len(errs) > 0 {
		b.WriteString("## Errors\n\n")
		for _, e := range errs {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeLedger(b *strings.Builder, l *model.SearchLedger) {
	b.WriteString("## Search Ledger\n\n")
	fmt.Fprintf(b, "- Search ID: `%s`\n", l.SearchID)
	fmt.Fprintf(b, "- Rounds: %d\n", l.SearchRounds)
	fmt.Fprintf(b, "- Queries: %d (%d failed)\n", l.TotalQueries, l.FailedQueries())
	fmt.Fprintf(b, "- Raw results: %d\n", l.TotalResultsFound)
	fmt.Fprintf(b, "- Unique candidates: %d\n", l.UniqueResultsFound)
	fmt.Fprintf(b, "- New leads: %d\n", l.NewLeads)
	if l.HistoryUnavailable {
		fmt.Fprintf(b, "- **History unavailable:** %s\n", cell(l.HistoryError))
	}
	if l.Message != "" {
		fmt.Fprintf(b, "\n> %s\n", l.Message)
	}
	b.WriteString("\n")

	if len(l.Sources) == 0 {
		return
	}
	b.WriteString("| Round | Source | Tier | Query | Results | Status |\n|---|---|---|---|---|---|\n")
	for _, s := range l.Sources {
		status := "ok"
		if !s.WasSuccessful {
			status = "failed: " + cell(s.ErrorMessage)
		}
		fmt.Fprintf(b, "| %d | %s | %d | %s | %d | %s |\n",
			s.Round, cell(s.SourceName), s.SourcePriority, cell(s.QueryText), s.ResultsCount, status)
	}
	b.WriteString("\n")
}

func writeLeads(b *strings.Builder, leads []model.Lead) {
	b.WriteString("## Leads\n\n")
	if len(leads) == 0 {
		b.WriteString("No new leads.\n\n")
		return
	}

	b.WriteString("| # | Company | Area | Phase | Source | ICP | Qualified |\n|---|---|---|---|---|---|---|\n")
	for i, l := range leads {
		source := "-"
		if l.Provenance != nil {
			source = l.Provenance.SourceName
		}
		score, qualified := "-", "-"
		if l.IsScored() {
			score = fmt.Sprint(l.Scoring.ICPScore)
			qualified = "no"
			if l.IsQualified() {
				qualified = "yes"
			}
		}
		fmt.Fprintf(b, "| %d | %s | %s | %s | %s | %s | %s |\n",
			i+1, cell(l.CompanyName), cell(l.TherapeuticArea), cell(l.ClinicalPhase), cell(source), score, qualified)
	}
	b.WriteString("\n")

	for _, l := range leads {
		if !l.IsQualified() {
			continue
		}
		fmt.Fprintf(b, "### %s\n\n", l.CompanyName)
		if l.Website != "" {
			fmt.Fprintf(b, "- Website: %s\n", l.Website)
		}
		fmt.Fprintf(b, "- Buying signal: %s\n", l.Scoring.BuyingSignal)
		fmt.Fprintf(b, "- Recommended offer: %s\n", l.Scoring.RecommendedOffer)
		bd := l.Scoring.Breakdown
		fmt.Fprintf(b, "- Breakdown: fit %d/40, phase %d/20, imaging %d/20, why-now %d/15, complexity %d/5\n",
			bd.BaseCompanyFit, bd.PhaseMatch, bd.ImagingMateriality, bd.WhyNowTrigger, bd.ComplexityBonus)
		if d := l.Draft; d != nil {
			fmt.Fprintf(b, "- Contact: %s", d.ContactPersona)
			if d.ContactName != "" {
				fmt.Fprintf(b, " (%s)", d.ContactName)
			}
			b.WriteString("\n")
			if len(d.SubjectOptions) > 0 {
				fmt.Fprintf(b, "- Subject: %s\n", d.SubjectOptions[0])
			}
			if d.PrimaryEmail != "" {
				b.WriteString("\n```text\n")
				b.WriteString(strings.TrimSpace(d.PrimaryEmail))
				b.WriteString("\n```\n")
			}
		}
		b.WriteString("\n")
	}
}

// cell makes text safe inside a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", " ")
}

const htmlStyle = `body{font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;max-width:960px;margin:2rem auto;padding:0 1rem;color:#1c1917}
table{border-collapse:collapse;width:100%;font-size:.85rem}th,td{border:1px solid #d6d3d1;padding:.3rem .5rem;text-align:left;vertical-align:top}
thead th{background:#f5f5f4}pre{background:#fafaf9;padding:.75rem;white-space:pre-wrap}blockquote{color:#78350f;border-left:3px solid #f59e0b;margin:0;padding-left:.75rem}`

// HTML renders the report as a standalone, sanitized HTML page. Lead text
// comes from search results and model output, so the converted body goes
// through a UGC policy.
func HTML(st *model.PipelineState) (string, error) {
	var body bytes.Buffer
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(Markdown(st)), &body); err != nil {
		return "", eris.Wrap(err, "report: markdown convert")
	}
	safe := bluemonday.UGCPolicy().SanitizeBytes(body.Bytes())

	title := html.EscapeString(fmt.Sprintf("Hunt Report: %s %s", st.Params.Focus, st.Params.Phase))
	return "<!doctype html><html><head><meta charset=\"utf-8\"><title>" + title + "</title>" +
		"<style>" + htmlStyle + "</style></head><body>" + string(safe) + "</body></html>", nil
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pharmhunter/internal/export"
	"github.com/sells-group/pharmhunter/internal/history"
	"github.com/sells-group/pharmhunter/internal/names"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and maintain the company history",
}

var (
	historyLimit     int
	huntsLimit       int
	historySearch    string
	historyArea      string
	historyQualified bool
	historyMinScore  int
	historySince     string
	historyJSON      bool
)

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List companies in history, most recently seen first",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := history.Filter{
			Search:        historySearch,
			Area:          historyArea,
			QualifiedOnly: historyQualified,
			MinScore:      historyMinScore,
			Limit:         historyLimit,
		}
		if historySince != "" {
			since, err := time.Parse("2006-01-02", historySince)
			if err != nil {
				return eris.Wrap(err, "--since must be YYYY-MM-DD")
			}
			f.SeenSince = since
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.Query(cmd.Context(), f)
		if err != nil {
			return err
		}
		if historyJSON {
			return encodeJSON(cmd.OutOrStdout(), recs)
		}
		formatCompanies(cmd.OutOrStdout(), recs)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <company>",
	Short: "Show one company by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.Get(cmd.Context(), names.Normalize(args[0]))
		if errors.Is(err, history.ErrNotFound) {
			return eris.Errorf("%q is not in history", args[0])
		}
		if err != nil {
			return err
		}
		if historyJSON {
			return encodeJSON(cmd.OutOrStdout(), rec)
		}
		formatCompany(cmd.OutOrStdout(), rec)
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the history",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := history.Stats(cmd.Context(), st)
		if err != nil {
			return err
		}
		if historyJSON {
			return encodeJSON(cmd.OutOrStdout(), stats)
		}
		formatStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

var historyHuntsCmd = &cobra.Command{
	Use:   "hunts",
	Short: "List recorded hunts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hunts, err := st.ListHunts(cmd.Context(), huntsLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			return encodeJSON(cmd.OutOrStdout(), hunts)
		}
		formatHunts(cmd.OutOrStdout(), hunts)
		return nil
	},
}

var (
	exportOut    string
	exportFormat string
)

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the history as JSON, CSV or XLSX",
	Long:  "JSON output is the full history document, including hunt summaries, and can be re-imported. CSV and XLSX hold one row per company.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(exportFormat)
		if format == "" {
			format = formatFromPath(exportOut)
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		write := func(w io.Writer) error {
			if format == "json" {
				return history.Export(cmd.Context(), st, w)
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			recs, err := st.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			return export.Companies(w, f, recs)
		}

		if exportOut == "" || exportOut == "-" {
			return write(cmd.OutOrStdout())
		}
		if err := writeFile(exportOut, write); err != nil {
			return err
		}
		zap.L().Info("history exported", zap.String("path", exportOut), zap.String("format", format))
		return nil
	},
}

var importFormat string

var historyImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge a JSON history document or companies CSV into history",
	Long:  "Existing companies are merged, never replaced, so importing the same file twice changes nothing.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		format := strings.ToLower(importFormat)
		if format == "" {
			format = formatFromPath(path)
		}

		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "open %s", path)
		}
		defer f.Close() //nolint:errcheck

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var res history.ImportResult
		switch format {
		case "json":
			res, err = history.Import(cmd.Context(), st, f)
		case "csv":
			var recs []history.Record
			recs, err = export.ReadCompaniesCSV(f)
			if err == nil {
				res, err = history.ImportRecords(cmd.Context(), st, recs)
			}
		default:
			return eris.Errorf("cannot import %q files (use json or csv)", format)
		}
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %d companies (%d merged), %d hunts\n",
			goodStyle.Render("imported"), res.Companies, res.Merged, res.Hunts)
		return nil
	},
}

// formatFromPath guesses json, csv or xlsx from a file extension. Unknown
// or missing extensions mean json.
func formatFromPath(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return "csv"
	case strings.HasSuffix(lower, ".xlsx"):
		return "xlsx"
	default:
		return "json"
	}
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}

func init() {
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "print JSON instead of a table")

	historyListCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum companies to list")
	historyListCmd.Flags().StringVar(&historySearch, "search", "", "substring of the company name")
	historyListCmd.Flags().StringVar(&historyArea, "area", "", "substring of a therapeutic area")
	historyListCmd.Flags().BoolVar(&historyQualified, "qualified", false, "only companies that ever qualified")
	historyListCmd.Flags().IntVar(&historyMinScore, "min-score", 0, "minimum best ICP score")
	historyListCmd.Flags().StringVar(&historySince, "since", "", "only companies seen on or after this date (YYYY-MM-DD)")

	historyHuntsCmd.Flags().IntVar(&huntsLimit, "limit", 20, "maximum hunts to list (0 for all)")

	historyExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default stdout)")
	historyExportCmd.Flags().StringVar(&exportFormat, "format", "", "json, csv or xlsx (default from --out extension, else json)")

	historyImportCmd.Flags().StringVar(&importFormat, "format", "", "json or csv (default from file extension)")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyStatsCmd, historyHuntsCmd, historyExportCmd, historyImportCmd)
	rootCmd.AddCommand(historyCmd)
}

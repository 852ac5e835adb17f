// Package export writes history records and hunt leads as CSV or XLSX.
// One tagged row type per table drives both formats.
package export

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Format selects the output encoding.
type Format string

// Supported formats.
const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, XLSX:
		return f, nil
	default:
		return "", eris.Errorf("export: unknown format %q", s)
	}
}

// FormatForPath infers the format from a file extension, defaulting to CSV.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return XLSX
	}
	return CSV
}

// listSep joins multi-valued fields into one cell.
const listSep = "; "

func joinList(v []string) string { return strings.Join(v, listSep) }

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// write encodes rows in the requested format. The header is written even
// when rows is empty.
func write[T any](w io.Writer, f Format, sheet string, rows []T) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	enc := csvutil.NewEncoder(cw)
	var zero T
	if err := enc.EncodeHeader(zero); err != nil {
		return eris.Wrap(err, "export: encode header")
	}
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "export: encode row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}

	switch f {
	case CSV:
		if _, err := w.Write(buf.Bytes()); err != nil {
			return eris.Wrap(err, "export: write csv")
		}
		return nil
	case XLSX:
		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			return eris.Wrap(err, "export: reread csv")
		}
		return writeSheet(w, sheet, records)
	default:
		return eris.Errorf("export: unknown format %q", f)
	}
}

func writeSheet(w io.Writer, name string, records [][]string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	for i, rec := range records {
		row := sheet.AddRow()
		for _, v := range rec {
			cell := row.AddCell()
			cell.SetString(v)
			if i == 0 {
				style := xlsx.NewStyle()
				style.Font.Bold = true
				cell.SetStyle(style)
			}
		}
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

package crm

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmhunter/internal/history"
	"github.com/sells-group/pharmhunter/pkg/notion"
)

// titleProp is the lead database's title column.
const titleProp = "Name"

// NotionSink mirrors records as pages in a Notion database, matched by the
// page title.
type NotionSink struct {
	client notion.Client
	dbID   string
}

// NewNotion creates a sink writing to the database dbID.
func NewNotion(c notion.Client, dbID string) *NotionSink {
	return &NotionSink{client: c, dbID: dbID}
}

// Name implements Sink.
func (s *NotionSink) Name() string { return "notion" }

// Push implements Sink.
func (s *NotionSink) Push(ctx context.Context, recs []history.Record) (*Result, error) {
	res := &Result{Sink: s.Name()}
	if len(recs) == 0 {
		return res, nil
	}

	pages, err := notion.QueryAll(ctx, s.client, s.dbID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "crm: notion lookup")
	}
	index := notion.TitleIndex(pages, titleProp)

	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "crm: notion push")
		}
		props := properties(r)
		if id, ok := index[strings.ToLower(strings.TrimSpace(r.CompanyName))]; ok {
			if _, err := s.client.UpdatePage(ctx, id, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
				res.fail(r.CompanyName, err.Error())
				continue
			}
			res.Updated++
			continue
		}

		page, err := s.client.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(s.dbID),
			},
			Properties: props,
		})
		if err != nil {
			res.fail(r.CompanyName, err.Error())
			continue
		}
		// Later duplicates in the same batch update this page.
		index[strings.ToLower(strings.TrimSpace(r.CompanyName))] = string(page.ID)
		res.Created++
	}
	return res, nil
}

func properties(r history.Record) notionapi.Properties {
	props := notionapi.Properties{
		titleProp:          notion.TextProperty(r.CompanyName, true),
		"Summary":          notion.TextProperty(describe(r), false),
		"Qualified":        notionapi.CheckboxProperty{Type: notionapi.PropertyTypeCheckbox, Checkbox: r.WasQualified},
		"Times Discovered": notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: float64(r.TimesDiscovered)},
		"Therapeutic Areas": notionapi.MultiSelectProperty{
			Type:        notionapi.PropertyTypeMultiSelect,
			MultiSelect: options(r.TherapeuticAreas),
		},
		"Clinical Phases": notionapi.MultiSelectProperty{
			Type:        notionapi.PropertyTypeMultiSelect,
			MultiSelect: options(r.ClinicalPhases),
		},
	}
	if r.Website != "" {
		props["Website"] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: r.Website}
	}
	if r.BestScore != nil {
		props["Best Score"] = notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: float64(*r.BestScore)}
	}
	if !r.LastSeen.IsZero() {
		last := notionapi.Date(r.LastSeen)
		props["Last Seen"] = notionapi.DateProperty{Type: notionapi.PropertyTypeDate, Date: &notionapi.DateObject{Start: &last}}
	}
	return props
}

// options converts values to multi-select options. Notion rejects commas in
// option names.
func options(values []string) []notionapi.Option {
	out := make([]notionapi.Option, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(strings.ReplaceAll(v, ",", " ")); v != "" {
			out = append(out, notionapi.Option{Name: v})
		}
	}
	return out
}

package crm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmhunter/internal/history"
	"github.com/sells-group/pharmhunter/pkg/salesforce"
)

// DefaultLeadSource tags Leads created by the sync.
const DefaultLeadSource = "PharmHunter"

// unknownLastName fills the required Lead.LastName until a contact is known.
const unknownLastName = "Unknown"

// SalesforceSink mirrors records as Salesforce Leads, matched by company.
type SalesforceSink struct {
	client salesforce.Client
	source string
}

// NewSalesforce creates a sink. An empty leadSource uses DefaultLeadSource.
func NewSalesforce(c salesforce.Client, leadSource string) *SalesforceSink {
	if leadSource == "" {
		leadSource = DefaultLeadSource
	}
	return &SalesforceSink{client: c, source: leadSource}
}

// Name implements Sink.
func (s *SalesforceSink) Name() string { return "salesforce" }

// Push implements Sink. Existing open Leads are updated in place; the rest
// are created.
func (s *SalesforceSink) Push(ctx context.Context, recs []history.Record) (*Result, error) {
	res := &Result{Sink: s.Name()}
	if len(recs) == 0 {
		return res, nil
	}

	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.CompanyName
	}
	existing, err := salesforce.FindLeadsByCompany(ctx, s.client, names)
	if err != nil {
		return nil, eris.Wrap(err, "crm: salesforce lookup")
	}

	var (
		creates     []map[string]any
		createNames []string
		updates     []salesforce.CollectionRecord
		updateNames []string
	)
	for _, r := range recs {
		fields := s.fields(r)
		if lead, ok := existing[strings.ToLower(r.CompanyName)]; ok {
			updates = append(updates, salesforce.CollectionRecord{ID: lead.ID, Fields: fields})
			updateNames = append(updateNames, r.CompanyName)
			continue
		}
		fields["LastName"] = unknownLastName
		fields["LeadSource"] = s.source
		fields["Status"] = "Open - Not Contacted"
		creates = append(creates, fields)
		createNames = append(createNames, r.CompanyName)
	}

	created, err := salesforce.BulkInsertLeads(ctx, s.client, creates)
	res.Created += tally(res, createNames, created)
	if err != nil {
		return res, eris.Wrap(err, "crm: salesforce insert")
	}
	updated, err := salesforce.BulkUpdateLeads(ctx, s.client, updates)
	res.Updated += tally(res, updateNames, updated)
	if err != nil {
		return res, eris.Wrap(err, "crm: salesforce update")
	}
	return res, nil
}

// tally counts successes and records failures against company names.
func tally(res *Result, names []string, results []salesforce.CollectionResult) int {
	ok := 0
	for i, r := range results {
		if r.Success {
			ok++
			continue
		}
		name := ""
		if i < len(names) {
			name = names[i]
		}
		msg := strings.Join(r.Errors, "; ")
		if msg == "" {
			msg = "rejected"
		}
		res.fail(name, msg)
	}
	return ok
}

func (s *SalesforceSink) fields(r history.Record) map[string]any {
	f := map[string]any{
		"Company":     r.CompanyName,
		"Industry":    "Biotechnology",
		"Description": describe(r),
		"Rating":      rating(r),
	}
	if r.Website != "" {
		f["Website"] = r.Website
	}
	return f
}

func rating(r history.Record) string {
	switch {
	case r.BestScore != nil && *r.BestScore >= 90:
		return "Hot"
	case r.WasQualified:
		return "Warm"
	default:
		return "Cold"
	}
}

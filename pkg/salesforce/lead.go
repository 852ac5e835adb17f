package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// maxBatchSize is the Salesforce Collections API limit per request.
const maxBatchSize = 200

// maxInClause bounds the number of literals per SOQL IN clause.
const maxInClause = 100

// Lead represents a Salesforce Lead record.
type Lead struct {
	ID          string `json:"Id" salesforce:"Id"`
	Company     string `json:"Company" salesforce:"Company"`
	LastName    string `json:"LastName" salesforce:"LastName"`
	Website     string `json:"Website" salesforce:"Website"`
	LeadSource  string `json:"LeadSource" salesforce:"LeadSource"`
	Status      string `json:"Status" salesforce:"Status"`
	Rating      string `json:"Rating" salesforce:"Rating"`
	Description string `json:"Description" salesforce:"Description"`
}

var leadFields = []string{"Id", "Company", "LastName", "Website", "LeadSource", "Status", "Rating", "Description"}

// FindLeadsByCompany looks up open Leads whose Company matches one of the
// given names. The result is keyed by lowercased company name; when several
// Leads share a company the first returned wins.
func FindLeadsByCompany(ctx context.Context, c Client, companies []string) (map[string]Lead, error) {
	found := make(map[string]Lead, len(companies))
	for start := 0; start < len(companies); start += maxInClause {
		end := min(start+maxInClause, len(companies))

		quoted := make([]string, 0, end-start)
		for _, name := range companies[start:end] {
			quoted = append(quoted, "'"+escapeSoql(name)+"'")
		}
		soql := fmt.Sprintf("SELECT %s FROM Lead WHERE IsConverted = false AND Company IN (%s)",
			strings.Join(leadFields, ", "), strings.Join(quoted, ", "))

		var leads []Lead
		if err := c.Query(ctx, soql, &leads); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("sf: find leads batch %d-%d", start, end))
		}
		for _, l := range leads {
			key := strings.ToLower(l.Company)
			if _, ok := found[key]; !ok {
				found[key] = l
			}
		}
	}
	return found, nil
}

// BulkInsertLeads creates Leads in batches of 200. Results are returned in
// input order; on error the results of completed batches are returned.
func BulkInsertLeads(ctx context.Context, c Client, records []map[string]any) ([]CollectionResult, error) {
	var all []CollectionResult
	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		res, err := c.InsertCollection(ctx, "Lead", records[start:end])
		if err != nil {
			return all, eris.Wrap(err, fmt.Sprintf("sf: bulk insert leads batch %d-%d", start, end))
		}
		all = append(all, res...)
	}
	return all, nil
}

// BulkUpdateLeads updates Leads in batches of 200.
func BulkUpdateLeads(ctx context.Context, c Client, updates []CollectionRecord) ([]CollectionResult, error) {
	var all []CollectionResult
	for start := 0; start < len(updates); start += maxBatchSize {
		end := min(start+maxBatchSize, len(updates))
		res, err := c.UpdateCollection(ctx, "Lead", updates[start:end])
		if err != nil {
			return all, eris.Wrap(err, fmt.Sprintf("sf: bulk update leads batch %d-%d", start, end))
		}
		all = append(all, res...)
	}
	return all, nil
}

// escapeSoql escapes backslashes and single quotes in SOQL string literals.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}

package main

import (
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmhunter/internal/config"
	"github.com/sells-group/pharmhunter/internal/crm"
	"github.com/sells-group/pharmhunter/pkg/notion"
	sfpkg "github.com/sells-group/pharmhunter/pkg/salesforce"
)

// initSinks builds a sink for each CRM with credentials configured. only
// restricts the result to one sink by name.
func initSinks(c *config.Config, only string) ([]crm.Sink, error) {
	var sinks []crm.Sink

	if (only == "" || only == "salesforce") && c.Salesforce.ClientID != "" {
		sf, err := initSalesforce(c)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, crm.NewSalesforce(sf, crm.DefaultLeadSource))
	}

	if (only == "" || only == "notion") && c.Notion.Token != "" && c.Notion.LeadDB != "" {
		sinks = append(sinks, crm.NewNotion(notion.NewClient(c.Notion.Token), c.Notion.LeadDB))
	}

	if len(sinks) == 0 {
		if only != "" {
			return nil, eris.Errorf("crm sink %q is not configured", only)
		}
		return nil, eris.New("no crm configured (set salesforce.client_id or notion.token and notion.lead_db)")
	}
	return sinks, nil
}

func initSalesforce(c *config.Config) (sfpkg.Client, error) {
	if c.Salesforce.KeyPath == "" {
		return nil, eris.New("salesforce key path is required (PHARMHUNTER_SALESFORCE_KEY_PATH)")
	}

	pemData, err := os.ReadFile(c.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         c.Salesforce.LoginURL,
		Username:       c.Salesforce.Username,
		ConsumerKey:    c.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}

package extract

import (
	"fmt"

	"github.com/sells-group/pharmhunter/internal/model"
)

const systemPrompt = `You are a biopharma market intelligence analyst focused on clinical development, medical imaging in trials, and sponsor operational risk.

Your task is to identify %d biopharma companies matching the following criteria:
- Therapeutic Focus: %s
- Clinical Phase: %s
- Geography: %s
- Exclusions: %s

DISCOVERY CRITERIA:

Company Profile Signals:
- Biopharma or specialty pharma sponsor
- Actively running or initiating clinical trials
- Small-to-mid cap or venture-backed preferred
- Likely to rely on external CROs and imaging vendors

Trial & Imaging Signals:
- Trials include imaging-heavy endpoints, such as:
  - RECIST / iRECIST / mRECIST
  - PET efficacy or dosimetry
  - CNS MRI volumetrics
- Imaging is not purely exploratory
- Multi-site and/or multi-region trials preferred

"Why Now" Signals:
- Recent trial registration or phase transition
- Protocol amendments involving imaging
- New clinical or imaging leadership hire
- Recent funding round or partnership
- Radiopharma asset entering clinic

OUTPUT FORMAT:
Return a JSON array of companies with this structure:
[
  {
    "company_name": "Company Name",
    "website": "https://...",
    "therapeutic_area": "Oncology/CNS/etc",
    "clinical_phase": "Phase 2",
    "imaging_signal": "Why they were picked (1-2 sentences)",
    "source_url": "https://..."
  }
]

Be conservative: it's acceptable to miss companies rather than include weak fits.
Return ONLY valid JSON, no markdown or explanation.`

const userPrompt = `Based on these search results, identify up to %d biopharma companies.

IMPORTANT: For each company, include the source URL where you found it.

Search Results:
%s

Return ONLY valid JSON - no markdown, no explanation.`

func buildPrompts(resultsContext string, count int, c model.HuntParams) (system, user string) {
	exclusions := c.Exclusions
	if exclusions == "" {
		exclusions = "None"
	}
	geography := c.Geography
	if geography == "" {
		geography = "Global"
	}
	system = fmt.Sprintf(systemPrompt, count, c.Focus, c.Phase, geography, exclusions)
	user = fmt.Sprintf(userPrompt, count, resultsContext)
	return system, user
}

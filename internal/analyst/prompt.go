package analyst

import (
	"fmt"

	"github.com/sells-group/pharmhunter/internal/model"
)

// DefaultICP is the built-in ideal customer profile used when no
// hunt.icp_file is configured.
const DefaultICP = `ICP 1 Definition (STRICT)

MUST-HAVE CRITERIA (all required unless noted)

Company:
- Biopharma or specialty pharma (not med device)
- Actively running or imminently planning imaging-heavy clinical trials

Trial Characteristics:
- Trial phase: Late Phase 1, Phase 2, or Phase 3
- Imaging is material, not exploratory-only
- Endpoints include at least one of:
  - RECIST / iRECIST / mRECIST
  - PET-based efficacy or dosimetry
  - CNS MRI volumetrics or complex MRI endpoints

Trial Complexity Signals (at least one):
- 20 or more sites
- Multi-region (US + ex-US)
- Oncology, radiopharma, or CNS indication

Buyer / Influencer Roles Exist:
- Head of Clinical Operations
- Clinical Program Lead
- Imaging / Translational Imaging Lead
- CMO (early-stage biotech)

EXPLICIT EXCLUSIONS (any = NOT ICP):
- Preclinical-only companies
- Single-site or investigator-initiated trials only
- Imaging used only as low-risk exploratory endpoint
- Fully mature, in-house imaging organization with no visible transition or scaling event

"WHY NOW" TRIGGERS (any ONE qualifies):

Trial Lifecycle Triggers:
- Trial registered or updated with imaging endpoints
- Phase transition (especially Phase 1 to Phase 2)
- Imaging-related protocol amendment
- New imaging modality added mid-program

Organizational Triggers:
- New hire in imaging leadership, clinical operations leadership or translational medicine
- Imaging responsibility shifting between internal and external teams

Financial / Strategic Triggers:
- Recent funding round (Series B or later preferred)
- Partnership suggesting scale-up
- Radiopharma asset entering the clinic`

const scoringTemplate = `You are a critical deal qualifier analyzing biopharma companies for ICP fit.

COMPANY TO ANALYZE:
- Name: %s
- Website: %s
- Therapeutic Area: %s
- Clinical Phase: %s
- Imaging Signal: %s

ICP CRITERIA:
%s

YOUR TASK:
1. Verify 'Must-Have' criteria (Biopharma, Phase 2+, Imaging Materiality)
2. Find a specific 'Why Now' trigger (Trial timeline, Funding, Org change)
3. Calculate a detailed score breakdown
4. Provide clear reasoning for each score component

SCORING FRAMEWORK:
- base_company_fit: 0-40 points (Is it a biopharma? Right therapeutic area?)
- phase_match: 0-20 points (Phase 2/3 gets full points, Phase 1 gets partial)
- imaging_materiality: 0-20 points (How critical is imaging to their trial?)
- why_now_trigger: 0-15 points (Is there a clear timing signal?)
- complexity_bonus: 0-5 points (Multi-site, multi-region, specialty imaging)

CONSTRAINTS:
- Do not speculate if evidence is missing. Say "Unclear" and lower the score.
- Prefer information from the last 18 months.
- Be conservative: false positives are worse than false negatives.

RETURN JSON FORMAT (ONLY JSON, no markdown):
{
    "icp_score": <total 0-100>,
    "score_breakdown": {
        "base_company_fit": <0-40>,
        "phase_match": <0-20>,
        "imaging_materiality": <0-20>,
        "why_now_trigger": <0-15>,
        "complexity_bonus": <0-5>
    },
    "score_explanation": "<One sentence per score component explaining points given>",
    "is_qualified": <true if score >= %d>,
    "disqualification_reason": "<If not qualified, explain why>",
    "buying_signal": "<The specific Why Now trigger for outreach>",
    "recommended_offer": "<Best offer: 'Imaging Readiness Sprint', 'Imaging Charter Fast-Track', or 'End-to-End Imaging Management'>",
    "reasoning_chain": "<Full Chain-of-Thought analysis>"
}`

func buildPrompts(c model.Candidate, icp string, threshold int) (system, user string) {
	website := c.Website
	if website == "" {
		website = "N/A"
	}
	system = fmt.Sprintf(scoringTemplate,
		c.CompanyName, website, c.TherapeuticArea, c.ClinicalPhase, c.ImagingSignal,
		icp, threshold)
	user = fmt.Sprintf("Analyze %s for ICP fit. Return JSON only.", c.CompanyName)
	return system, user
}

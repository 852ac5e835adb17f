package scribe

import (
	"fmt"

	"github.com/sells-group/pharmhunter/internal/model"
)

// DefaultValueProp describes the consulting offers pitched in outreach.
const DefaultValueProp = `Marigold Consulting Offers:

1. Imaging Readiness Sprint (2-3 weeks)
   - Full imaging protocol review
   - Site readiness assessment
   - Risk identification and mitigation plan
   - Deliverable: Imaging Readiness Report with prioritized action items

2. Imaging Charter Fast-Track (10 business days)
   - Complete imaging charter development
   - Endpoint specification and validation
   - Central vs. site read strategy
   - Deliverable: Production-ready Imaging Charter

3. Vendor-neutral iCRO Selection Pack
   - Requirements definition
   - RFP development and distribution
   - Bid evaluation framework
   - Deliverable: Scored vendor comparison with recommendation

Marigold specializes in imaging in clinical trials: strategy, chartering, site training, and central review readiness.

Core Value: De-risk imaging execution before it becomes a trial liability.

Tone: Executive, concise, technically fluent. No marketing fluff.`

const draftTemplate = `You are an expert biotech BD copywriter and clinical trials ops strategist specializing in imaging endpoints (RECIST/PET/MRI) and translational/precision medicine stakeholders.

GOAL:
Create compelling, customized outreach for a senior leader at the target company. The outreach must be tightly grounded in the ICP analysis and should read as credible, specific, and non-salesy.

COMPANY CONTEXT:
Company: %s
Therapeutic Area: %s
Clinical Phase: %s
Buying Signal: %s
Recommended Offer: %s

VALUE PROPOSITION:
%s

TARGET PERSON SEARCH:
Find the most appropriate outreach target. Priority titles:
1. VP/Head of Precision Medicine
2. VP/Head of Translational Medicine / Translational Sciences
3. VP Biomarkers / Clinical Biomarkers
4. VP Clinical Development (oncology) with biomarker remit
5. Head Clinical Operations (if precision/translational not visible)

EMAIL REQUIREMENTS:
1. Subject Lines (6 options): short, executive, specific, no hype.
2. Primary Email (120-180 words): hook on the buying signal, connect it to the risk of imaging failure, mention the recommended offer, soft 15-20 minute call ask.
3. Variant 1 (90-150 words): de-risk proof-of-concept and endpoint integrity angle.
4. Variant 2 (90-150 words): scale-up execution and site consistency angle.
5. LinkedIn Message (max %d characters).
6. Follow-up Email (70-120 words) for 5-7 business days later.

TONE:
Executive, concise, technically fluent. Bottom line up front. No marketing jargon or exaggerated promises.

OUTPUT FORMAT (JSON only):
{
  "contact_persona": "VP of Clinical Operations",
  "contact_name": "Name if found or null",
  "contact_title": "Full title if found or null",
  "contact_linkedin": "LinkedIn URL if found or null",
  "email_subject_options": ["Subject 1", "Subject 2", "Subject 3", "Subject 4", "Subject 5", "Subject 6"],
  "email_body_primary": "Full primary email text...",
  "email_variant_1": "Variant 1 text...",
  "email_variant_2": "Variant 2 text...",
  "linkedin_message": "Short LinkedIn message...",
  "follow_up_email": "Follow-up email text..."
}

Return ONLY valid JSON, no markdown or explanation.`

func buildPrompts(l model.Lead, valueProp string) (system, user string) {
	var signal, offer string
	if l.Scoring != nil {
		signal = l.Scoring.BuyingSignal
		offer = l.Scoring.RecommendedOffer
	}
	system = fmt.Sprintf(draftTemplate,
		l.CompanyName, l.TherapeuticArea, l.ClinicalPhase, signal, offer,
		valueProp, MaxLinkedInChars)
	user = fmt.Sprintf("Create outreach for %s. Their buying signal: %s", l.CompanyName, signal)
	return system, user
}

package waypoint

import (
	"fmt"
	"strings"
	"time"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// Letter outcome keys matched against the final outcome string.
const (
	OutcomeApproved = "approved"
	OutcomePended   = "pended"
	OutcomeDenied   = "denied"
)

const approvalTemplate = `NOTICE OF PRIOR AUTHORIZATION APPROVAL

Date: %s
Case: %s
Patient: %s
Medication: %s (%s)
Payer: %s

The prior authorization request referenced above has been APPROVED following
review by a qualified human reviewer. The approval applies to the medication,
dose, and indication as submitted. Please retain this notice for your records.
`

const pendTemplate = `NOTICE OF PENDED PRIOR AUTHORIZATION

Date: %s
Case: %s
Patient: %s
Medication: %s (%s)
Payer: %s

The prior authorization request referenced above is PENDED awaiting additional
documentation. Please supply the following within the payer's stated window:

%s
A determination will be issued once the requested documentation is received.
`

const denialTemplate = `NOTICE OF PRIOR AUTHORIZATION DETERMINATION

Date: %s
Case: %s
Patient: %s
Medication: %s (%s)
Payer: %s

After review by a qualified human reviewer, the prior authorization request
referenced above has NOT been approved. This determination was made by a human
reviewer, not an automated system. Appeal rights and instructions are available
from the payer listed above.
`

// renderLetter produces the plain-text notification letter for terminal
// outcomes. Non-terminal outcomes yield no letter.
func renderLetter(c *models.Case, outcome string, docRequests []string) string {
	date := time.Now().UTC().Format("January 2, 2006")
	patient := c.Patient.FirstName + " " + c.Patient.LastName
	med := c.Medication.MedicationName
	indication := c.Medication.Indication
	payer := c.Patient.PrimaryPayer

	switch strings.ToLower(outcome) {
	case OutcomeApproved:
		return fmt.Sprintf(approvalTemplate, date, c.CaseID, patient, med, indication, payer)
	case OutcomePended:
		var reqs strings.Builder
		for _, r := range docRequests {
			fmt.Fprintf(&reqs, "  - %s\n", r)
		}
		if reqs.Len() == 0 {
			reqs.WriteString("  - (see payer correspondence)\n")
		}
		return fmt.Sprintf(pendTemplate, date, c.CaseID, patient, med, indication, payer, reqs.String())
	case OutcomeDenied:
		return fmt.Sprintf(denialTemplate, date, c.CaseID, patient, med, indication, payer)
	default:
		return ""
	}
}

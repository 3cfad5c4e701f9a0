package policy

import "errors"

var (
	// ErrPolicyNotFound is returned only when neither a structured nor a
	// textual policy is available for (payer, medication).
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrMalformedAssessment is returned when the LLM response carries
	// neither criteria assessments nor a coverage status.
	ErrMalformedAssessment = errors.New("malformed assessment response")
)

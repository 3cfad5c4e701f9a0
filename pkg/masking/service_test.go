package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrubBuiltinIdentifiers(t *testing.T) {
	svc := NewService(nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "ssn",
			in:   "Member SSN 123-45-6789 on file",
			want: "Member SSN ***-**-**** on file",
		},
		{
			name: "mrn",
			in:   "Chart MRN: 8675309 reviewed",
			want: "Chart MRN:[REDACTED] reviewed",
		},
		{
			name: "phone",
			in:   "Call (415) 555-1212 to confirm",
			want: "Call [PHONE] to confirm",
		},
		{
			name: "email",
			in:   "Contact jane.doe@example.org for records",
			want: "Contact [EMAIL] for records",
		},
		{
			name: "clinical content untouched",
			in:   "CRP 24.1 mg/L, ICD-10 K50.00, failed adalimumab 40mg",
			want: "CRP 24.1 mg/L, ICD-10 K50.00, failed adalimumab 40mg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.Scrub(tt.in))
		})
	}
}

func TestScrubExtraPatterns(t *testing.T) {
	svc := NewService(map[string]PatternSpec{
		"member_id": {Pattern: `\bMBR-\d{6}\b`, Replacement: "[MEMBER]"},
	})
	assert.Equal(t, "id [MEMBER] ok", svc.Scrub("id MBR-123456 ok"))
}

func TestScrubSkipsInvalidExtraPattern(t *testing.T) {
	svc := NewService(map[string]PatternSpec{
		"broken": {Pattern: `([`, Replacement: "x"},
	})
	// Built-ins still apply.
	assert.Equal(t, "***-**-****", svc.Scrub("123-45-6789"))
}

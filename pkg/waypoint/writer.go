// Package waypoint persists human-readable artifacts at case milestones:
// assessment and decision JSON files plus plain-text notification letters
// for terminal outcomes. All writes are best-effort; a failed waypoint is
// logged and never fails the parent operation.
package waypoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

const aiDisclaimer = "This assessment was produced by an automated system and requires review " +
	"by a qualified human before any coverage determination is communicated or acted upon."

// Writer renders waypoint artifacts under a root directory.
type Writer struct {
	dir string
}

// NewWriter creates a waypoint writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// assessmentWaypoint is the artifact written when policy analysis finishes.
type assessmentWaypoint struct {
	CaseID            string                                `json:"case_id"`
	GeneratedAt       time.Time                             `json:"generated_at"`
	Patient           patientSummary                        `json:"patient"`
	Medication        medicationSummary                     `json:"medication"`
	Assessments       map[string]*models.CoverageAssessment `json:"coverage_assessments"`
	DocumentationGaps []models.DocumentationGap             `json:"documentation_gaps,omitempty"`
	AIRecommendation  string                                `json:"ai_recommendation,omitempty"`
	Disclaimer        string                                `json:"disclaimer"`
}

type patientSummary struct {
	PatientID      string `json:"patient_id"`
	Name           string `json:"name"`
	DateOfBirth    string `json:"date_of_birth"`
	PrimaryPayer   string `json:"primary_payer"`
	SecondaryPayer string `json:"secondary_payer,omitempty"`
}

type medicationSummary struct {
	MedicationName string `json:"medication_name"`
	Dose           string `json:"dose,omitempty"`
	Indication     string `json:"indication"`
	ICD10Code      string `json:"icd10_code"`
	PrescriberName string `json:"prescriber_name,omitempty"`
}

// decisionWaypoint is the artifact written when a human decision lands.
type decisionWaypoint struct {
	CaseID                string                `json:"case_id"`
	GeneratedAt           time.Time             `json:"generated_at"`
	AssessmentWaypoint    string                `json:"assessment_waypoint"`
	HumanDecision         *models.HumanDecision `json:"human_decision"`
	FinalOutcome          string                `json:"final_outcome"`
	DocumentationRequests []string              `json:"documentation_requests,omitempty"`
	Compliance            complianceBlock       `json:"compliance"`
}

type complianceBlock struct {
	HumanInTheLoop bool   `json:"human_in_the_loop"`
	ReviewerID     string `json:"reviewer_id"`
	Statement      string `json:"statement"`
}

// WriteAssessment writes assessment_{case_id}.json.
func (w *Writer) WriteAssessment(c *models.Case) (string, error) {
	artifact := assessmentWaypoint{
		CaseID:      c.CaseID,
		GeneratedAt: time.Now().UTC(),
		Patient: patientSummary{
			PatientID:      c.Patient.PatientID,
			Name:           c.Patient.FirstName + " " + c.Patient.LastName,
			DateOfBirth:    c.Patient.DateOfBirth,
			PrimaryPayer:   c.Patient.PrimaryPayer,
			SecondaryPayer: c.Patient.SecondaryPayer,
		},
		Medication: medicationSummary{
			MedicationName: c.Medication.MedicationName,
			Dose:           c.Medication.Dose,
			Indication:     c.Medication.Indication,
			ICD10Code:      c.Medication.ICD10Code,
			PrescriberName: c.Medication.PrescriberName,
		},
		Assessments:       c.CoverageAssessments,
		DocumentationGaps: c.DocumentationGaps,
		AIRecommendation:  c.AIRecommendation,
		Disclaimer:        aiDisclaimer,
	}
	return w.writeJSON(fmt.Sprintf("assessment_%s.json", c.CaseID), artifact)
}

// WriteDecision writes decision_{case_id}.json referencing the assessment
// waypoint, plus a notification letter for terminal outcomes.
func (w *Writer) WriteDecision(c *models.Case, outcome string, docRequests []string) (string, error) {
	decision := c.LatestHumanDecision()
	artifact := decisionWaypoint{
		CaseID:                c.CaseID,
		GeneratedAt:           time.Now().UTC(),
		AssessmentWaypoint:    fmt.Sprintf("assessment_%s.json", c.CaseID),
		HumanDecision:         decision,
		FinalOutcome:          outcome,
		DocumentationRequests: docRequests,
		Compliance: complianceBlock{
			HumanInTheLoop: decision != nil,
			ReviewerID:     reviewerID(decision),
			Statement:      "Coverage determination reviewed and authorized by a human reviewer.",
		},
	}
	path, err := w.writeJSON(fmt.Sprintf("decision_%s.json", c.CaseID), artifact)
	if err != nil {
		return "", err
	}

	if letter := renderLetter(c, outcome, docRequests); letter != "" {
		letterPath := filepath.Join(w.dir, fmt.Sprintf("letter_%s.txt", c.CaseID))
		if werr := os.WriteFile(letterPath, []byte(letter), 0o644); werr != nil {
			return path, fmt.Errorf("write notification letter: %w", werr)
		}
	}
	return path, nil
}

func (w *Writer) writeJSON(name string, v any) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create waypoints dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal waypoint %s: %w", name, err)
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write waypoint %s: %w", name, err)
	}
	return path, nil
}

func reviewerID(d *models.HumanDecision) string {
	if d == nil {
		return ""
	}
	return d.ReviewerID
}

package models

// GroupOperator combines a criterion group's members.
type GroupOperator string

const (
	OperatorAND GroupOperator = "AND"
	OperatorOR  GroupOperator = "OR"
)

// NumericThreshold constrains a lab value or score referenced by a criterion.
// UpperValue is set when the operator expresses a range.
type NumericThreshold struct {
	Operator   string   `json:"operator"`
	Value      float64  `json:"value"`
	UpperValue *float64 `json:"upper_value,omitempty"`
	Unit       string   `json:"unit,omitempty"`
}

// Criterion is a single leaf-level policy requirement.
type Criterion struct {
	CriterionID          string            `json:"criterion_id"`
	Name                 string            `json:"name"`
	Type                 string            `json:"type,omitempty"`
	Category             string            `json:"category,omitempty"`
	Description          string            `json:"description,omitempty"`
	PolicyText           string            `json:"policy_text,omitempty"`
	ClinicalCodes        []string          `json:"clinical_codes,omitempty"`
	DrugNames            []string          `json:"drug_names,omitempty"`
	DrugClasses          []string          `json:"drug_classes,omitempty"`
	AllowedValues        []string          `json:"allowed_values,omitempty"`
	Threshold            *NumericThreshold `json:"threshold,omitempty"`
	MinDurationDays      int               `json:"min_duration_days,omitempty"`
	Required             bool              `json:"required"`
	EvidenceTypes        []string          `json:"evidence_types,omitempty"`
	ExtractionConfidence float64           `json:"extraction_confidence,omitempty"`
}

// CriterionGroup is a named AND/OR node over atomic criteria and subgroups.
// The tree is arena-style: groups reference children by ID, never by pointer,
// so arbitrary nesting (and buggy cyclic inputs) cannot create pointer cycles.
type CriterionGroup struct {
	GroupID   string        `json:"group_id"`
	Name      string        `json:"name,omitempty"`
	Operator  GroupOperator `json:"operator"`
	Criteria  []string      `json:"criteria,omitempty"`
	Subgroups []string      `json:"subgroups,omitempty"`
}

// Exclusion disqualifies coverage when triggered.
type Exclusion struct {
	ExclusionID string   `json:"exclusion_id"`
	Description string   `json:"description"`
	PolicyText  string   `json:"policy_text,omitempty"`
	Codes       []string `json:"codes,omitempty"`
}

// StepTherapyRequirement describes therapies that must be tried first.
type StepTherapyRequirement struct {
	RequirementID        string   `json:"requirement_id"`
	RequiredDrugs        []string `json:"required_drugs,omitempty"`
	RequiredClasses      []string `json:"required_classes,omitempty"`
	MinTrials            int      `json:"min_trials"`
	MinDurationDays      int      `json:"min_duration_days,omitempty"`
	IntoleranceSatisfies bool     `json:"intolerance_satisfies"`
	Description          string   `json:"description,omitempty"`
}

// Indication ties a diagnosis to the criterion sub-tree that governs it.
type Indication struct {
	IndicationID string   `json:"indication_id"`
	Name         string   `json:"name"`
	ICD10Codes   []string `json:"icd10_codes,omitempty"`
	RootGroups   []string `json:"root_groups,omitempty"`
	CriterionIDs []string `json:"criterion_ids,omitempty"`
}

// DigitizedPolicy is the structured form of a payer's coverage policy for
// one medication.
type DigitizedPolicy struct {
	PayerName               string                    `json:"payer_name"`
	MedicationName          string                    `json:"medication_name"`
	PolicyVersion           string                    `json:"policy_version,omitempty"`
	AtomicCriteria          map[string]Criterion      `json:"atomic_criteria"`
	CriterionGroups         map[string]CriterionGroup `json:"criterion_groups,omitempty"`
	Exclusions              []Exclusion               `json:"exclusions,omitempty"`
	StepTherapyRequirements []StepTherapyRequirement  `json:"step_therapy_requirements,omitempty"`
	Indications             []Indication              `json:"indications,omitempty"`
}

// CollectGroup returns the atomic criterion IDs reachable from a group,
// following subgroup references. A visited set guards against cyclic or
// malformed group graphs.
func (p *DigitizedPolicy) CollectGroup(groupID string) []string {
	visited := make(map[string]bool)
	var out []string
	p.collectGroup(groupID, visited, &out)
	return out
}

func (p *DigitizedPolicy) collectGroup(groupID string, visited map[string]bool, out *[]string) {
	if visited[groupID] {
		return
	}
	visited[groupID] = true
	group, ok := p.CriterionGroups[groupID]
	if !ok {
		return
	}
	*out = append(*out, group.Criteria...)
	for _, sub := range group.Subgroups {
		p.collectGroup(sub, visited, out)
	}
}

// IndicationCriteria returns the set of atomic criterion IDs governed by an
// indication: its explicit criterion list plus everything reachable from its
// root groups.
func (p *DigitizedPolicy) IndicationCriteria(ind Indication) map[string]bool {
	ids := make(map[string]bool)
	for _, id := range ind.CriterionIDs {
		ids[id] = true
	}
	for _, g := range ind.RootGroups {
		for _, id := range p.CollectGroup(g) {
			ids[id] = true
		}
	}
	return ids
}

// ORGroupsFor returns the IDs of OR-groups that contain the criterion.
func (p *DigitizedPolicy) ORGroupsFor(criterionID string) []string {
	var groups []string
	for id, g := range p.CriterionGroups {
		if g.Operator != OperatorOR {
			continue
		}
		for _, c := range g.Criteria {
			if c == criterionID {
				groups = append(groups, id)
				break
			}
		}
	}
	return groups
}

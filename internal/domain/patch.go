package domain

import (
	"fmt"
	"maps"
	"slices"
)

// Stage names a pipeline step.
type Stage string

const (
	StageVegetation    Stage = "vegetation"
	StageVulnerability Stage = "vulnerability"
	StageCarbon        Stage = "carbon"
	StageRisk          Stage = "risk"
)

// Stages lists the pipeline steps in execution order.
var Stages = []Stage{StageVegetation, StageVulnerability, StageCarbon, StageRisk}

// OutputField is the stored name of a ComputedOutput field.
type OutputField string

const (
	FieldMangScore   OutputField = "mangScore"
	FieldLostArea    OutputField = "lostArea"
	FieldState       OutputField = "state"
	FieldDropPct     OutputField = "dropPct"
	FieldExtraCarbon OutputField = "extraCarbon"
	FieldNeedsReview OutputField = "needsReview"
	FieldAnalysis    OutputField = "llmAnalysis"
	FieldVulnScore   OutputField = "vulnScore"
	FieldRiskScore   OutputField = "riskScore"
	FieldRiskBand    OutputField = "riskBand"
)

var ownedFields = map[Stage][]OutputField{
	StageVegetation: {
		FieldMangScore, FieldLostArea, FieldState, FieldDropPct,
		FieldExtraCarbon, FieldNeedsReview, FieldAnalysis,
	},
	StageVulnerability: {FieldVulnScore},
	StageRisk:          {FieldRiskScore, FieldRiskBand},
}

// Fields a stage may seed when the stored document lacks them.
var defaultableFields = map[Stage][]OutputField{
	StageVegetation: {FieldVulnScore},
}

// OwnedFields returns the fields stage is allowed to overwrite.
func OwnedFields(stage Stage) []OutputField {
	return slices.Clone(ownedFields[stage])
}

// OutputPatch is a merge-patch against one ComputedOutput. Set overwrites;
// Defaults only fill fields the stored document does not have yet. Fields
// not named are left untouched.
type OutputPatch struct {
	Stage    Stage
	Set      map[OutputField]any
	Defaults map[OutputField]any
}

// VegetationPatch writes the stage 1 field group and seeds vulnScore.
func VegetationPatch(a VegetationAssessment) OutputPatch {
	return OutputPatch{
		Stage: StageVegetation,
		Set: map[OutputField]any{
			FieldMangScore:   a.MangScore,
			FieldLostArea:    a.LostArea,
			FieldState:       a.State,
			FieldDropPct:     a.DropPct,
			FieldExtraCarbon: a.ExtraCarbon,
			FieldNeedsReview: a.NeedsReview,
			FieldAnalysis:    a.Analysis,
		},
		Defaults: map[OutputField]any{FieldVulnScore: DefaultVulnScore},
	}
}

// VulnerabilityPatch writes vulnScore only.
func VulnerabilityPatch(score int) OutputPatch {
	return OutputPatch{
		Stage: StageVulnerability,
		Set:   map[OutputField]any{FieldVulnScore: score},
	}
}

// RiskPatch writes the latest risk score and band.
func RiskPatch(score int, band Band) OutputPatch {
	return OutputPatch{
		Stage: StageRisk,
		Set:   map[OutputField]any{FieldRiskScore: score, FieldRiskBand: band},
	}
}

// Validate rejects fields outside the stage's declared groups and values of
// the wrong type.
func (p OutputPatch) Validate() error {
	owned, ok := ownedFields[p.Stage]
	if !ok {
		return fmt.Errorf("%w: stage %q owns no output fields", ErrValidation, p.Stage)
	}
	if len(p.Set) == 0 {
		return fmt.Errorf("%w: empty patch for stage %q", ErrValidation, p.Stage)
	}
	for _, f := range slices.Sorted(maps.Keys(p.Set)) {
		if !slices.Contains(owned, f) {
			return fmt.Errorf("%w: stage %q does not own field %q", ErrValidation, p.Stage, f)
		}
		if err := checkFieldType(f, p.Set[f]); err != nil {
			return err
		}
	}
	for _, f := range slices.Sorted(maps.Keys(p.Defaults)) {
		if !slices.Contains(defaultableFields[p.Stage], f) {
			return fmt.Errorf("%w: stage %q may not default field %q", ErrValidation, p.Stage, f)
		}
		if err := checkFieldType(f, p.Defaults[f]); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns o with the patch merged in. The patch must be valid.
func (p OutputPatch) Apply(o ComputedOutput) ComputedOutput {
	for f, v := range p.Set {
		o = withField(o, f, v)
	}
	for f, v := range p.Defaults {
		if !hasField(o, f) {
			o = withField(o, f, v)
		}
	}
	return o
}

func checkFieldType(f OutputField, v any) error {
	var ok bool
	switch f {
	case FieldMangScore, FieldDropPct, FieldVulnScore, FieldRiskScore:
		_, ok = v.(int)
	case FieldLostArea, FieldExtraCarbon:
		_, ok = v.(float64)
	case FieldState:
		_, ok = v.(VegetationState)
	case FieldNeedsReview:
		_, ok = v.(bool)
	case FieldAnalysis:
		_, ok = v.(string)
	case FieldRiskBand:
		_, ok = v.(Band)
	}
	if !ok {
		return fmt.Errorf("%w: field %q has unexpected value type %T", ErrValidation, f, v)
	}
	return nil
}

func hasField(o ComputedOutput, f OutputField) bool {
	switch f {
	case FieldMangScore:
		return o.MangScore != nil
	case FieldLostArea:
		return o.LostArea != nil
	case FieldState:
		return o.State != ""
	case FieldDropPct:
		return o.DropPct != nil
	case FieldExtraCarbon:
		return o.ExtraCarbon != nil
	case FieldAnalysis:
		return o.Analysis != ""
	case FieldVulnScore:
		return o.VulnScore != nil
	case FieldRiskScore:
		return o.RiskScore != nil
	case FieldRiskBand:
		return o.RiskBand != ""
	default:
		return true
	}
}

func withField(o ComputedOutput, f OutputField, v any) ComputedOutput {
	switch f {
	case FieldMangScore:
		n := v.(int)
		o.MangScore = &n
	case FieldLostArea:
		x := v.(float64)
		o.LostArea = &x
	case FieldState:
		o.State = v.(VegetationState)
	case FieldDropPct:
		n := v.(int)
		o.DropPct = &n
	case FieldExtraCarbon:
		x := v.(float64)
		o.ExtraCarbon = &x
	case FieldNeedsReview:
		o.NeedsReview = v.(bool)
	case FieldAnalysis:
		o.Analysis = v.(string)
	case FieldVulnScore:
		n := v.(int)
		o.VulnScore = &n
	case FieldRiskScore:
		n := v.(int)
		o.RiskScore = &n
	case FieldRiskBand:
		o.RiskBand = v.(Band)
	}
	return o
}

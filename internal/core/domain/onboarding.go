// Package domain defines the core domain models for onboarding session persistence.
package domain

import (
	"encoding/json"
	"slices"
)

// Step names an onboarding form step.
type Step string

// Onboarding steps in flow order.
const (
	StepParentInfo     Step = "parentInfo"
	StepChildInfo      Step = "childInfo"
	StepClinicalIntake Step = "clinicalIntake"
	StepInsurance      Step = "insurance"
	StepAssessment     Step = "assessment"
	StepAvailability   Step = "availability"
)

// Steps lists every onboarding step in flow order.
var Steps = []Step{
	StepParentInfo,
	StepChildInfo,
	StepClinicalIntake,
	StepInsurance,
	StepAssessment,
	StepAvailability,
}

// ParseStep validates a step name.
func ParseStep(name string) (Step, error) {
	s := Step(name)
	if !slices.Contains(Steps, s) {
		return "", ErrUnknownStep.WithDetails(name)
	}
	return s, nil
}

// OnboardingData is the aggregate the onboarding forms persist.
//
// Each sub-record is owned by its form and kept as raw JSON; the
// persistence layer never inspects it.
type OnboardingData struct {
	ParentInfo     json.RawMessage `json:"parentInfo,omitempty"`
	ChildInfo      json.RawMessage `json:"childInfo,omitempty"`
	ClinicalIntake json.RawMessage `json:"clinicalIntake,omitempty"`
	Insurance      json.RawMessage `json:"insurance,omitempty"`
	Assessment     json.RawMessage `json:"assessment,omitempty"`
	Availability   json.RawMessage `json:"availability,omitempty"`

	// CurrentStep is the step most recently merged.
	CurrentStep Step `json:"currentStep,omitempty"`

	// CompletedSteps holds each merged step once, in flow order.
	CompletedSteps []Step `json:"completedSteps,omitempty"`
}

// field returns a pointer to the sub-record for step.
func (d *OnboardingData) field(step Step) *json.RawMessage {
	switch step {
	case StepParentInfo:
		return &d.ParentInfo
	case StepChildInfo:
		return &d.ChildInfo
	case StepClinicalIntake:
		return &d.ClinicalIntake
	case StepInsurance:
		return &d.Insurance
	case StepAssessment:
		return &d.Assessment
	case StepAvailability:
		return &d.Availability
	default:
		return nil
	}
}

// Merge replaces the sub-record for step and records progress.
// Merging happens in the caller before save; stores never merge.
func (d *OnboardingData) Merge(step Step, record json.RawMessage) error {
	f := d.field(step)
	if f == nil {
		return ErrUnknownStep.WithDetails(string(step))
	}
	*f = append(json.RawMessage(nil), record...)
	d.CurrentStep = step

	if !slices.Contains(d.CompletedSteps, step) {
		d.CompletedSteps = append(d.CompletedSteps, step)
		slices.SortFunc(d.CompletedSteps, func(a, b Step) int {
			return slices.Index(Steps, a) - slices.Index(Steps, b)
		})
	}
	return nil
}

// Record returns the sub-record for step, or nil if it was never merged.
func (d *OnboardingData) Record(step Step) json.RawMessage {
	f := d.field(step)
	if f == nil {
		return nil
	}
	return *f
}

// Progress returns the completed fraction of the flow in [0, 1].
func (d *OnboardingData) Progress() float64 {
	return float64(len(d.CompletedSteps)) / float64(len(Steps))
}

// NextStep returns the first step not yet completed, or "" when done.
func (d *OnboardingData) NextStep() Step {
	for _, s := range Steps {
		if !slices.Contains(d.CompletedSteps, s) {
			return s
		}
	}
	return ""
}

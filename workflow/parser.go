package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// WorkflowParser - raw document → validated definition
// ============================================================================

// DefinitionDocument is the raw authoring schema accepted over the wire,
// either JSON or YAML.
type DefinitionDocument struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Version     int             `json:"version,omitempty" yaml:"version,omitempty"`
	StartStep   string          `json:"start_step" yaml:"start_step"`
	Variables   map[string]any  `json:"variables,omitempty" yaml:"variables,omitempty"`
	Trigger     WorkflowTrigger `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Steps       []Step          `json:"steps" yaml:"steps"`
}

// ParseDefinition turns a raw JSON or YAML document into a validated
// WorkflowDefinition for the given tenant. It never returns a
// partially-valid object: any validation error rejects the whole document,
// with the full error list attached to the returned error.
func ParseDefinition(raw []byte, tenantID kernel.TenantID) (*WorkflowDefinition, error) {
	def, err := DecodeDefinition(raw, tenantID)
	if err != nil {
		return nil, err
	}

	if errs := ValidateDefinition(def); len(errs) > 0 {
		return nil, ErrInvalidDefinition().
			WithDetail("errors", strings.Join(errs, "; ")).
			WithDetail("error_count", len(errs))
	}

	return def, nil
}

// DecodeDefinition builds the definition from a raw JSON or YAML document
// without validating the graph. Callers that want the full problem list run
// ValidateDefinition on the result.
func DecodeDefinition(raw []byte, tenantID kernel.TenantID) (*WorkflowDefinition, error) {
	var doc DefinitionDocument

	if err := json.Unmarshal(raw, &doc); err != nil {
		if yamlErr := yaml.Unmarshal(raw, &doc); yamlErr != nil {
			return nil, ErrInvalidDefinition().
				WithDetail("json_error", err.Error()).
				WithDetail("yaml_error", yamlErr.Error())
		}
	}

	now := time.Now()
	version := doc.Version
	if version <= 0 {
		version = 1
	}

	def := &WorkflowDefinition{
		ID:          kernel.NewWorkflowID(doc.ID),
		TenantID:    tenantID,
		Name:        doc.Name,
		Description: doc.Description,
		Version:     version,
		StartStep:   doc.StartStep,
		Variables:   doc.Variables,
		Steps:       doc.Steps,
		Trigger:     doc.Trigger,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return def, nil
}

// ValidateDefinition checks the whole graph and returns every problem found,
// not just the first one. An empty slice means the definition is valid.
func ValidateDefinition(def *WorkflowDefinition) []string {
	var errs []string

	if def.ID.IsEmpty() {
		errs = append(errs, "definition id is required")
	}
	if def.Name == "" {
		errs = append(errs, "definition name is required")
	}
	if len(def.Steps) == 0 {
		errs = append(errs, "definition has no steps")
	}
	if def.StartStep == "" {
		errs = append(errs, "start_step is required")
	}

	stepIDs := make(map[string]bool, len(def.Steps))
	for _, step := range def.Steps {
		if step.ID == "" {
			errs = append(errs, "step has no id")
			continue
		}
		if stepIDs[step.ID] {
			errs = append(errs, fmt.Sprintf("duplicate step id %q", step.ID))
		}
		stepIDs[step.ID] = true
	}

	if def.StartStep != "" && !stepIDs[def.StartStep] {
		errs = append(errs, fmt.Sprintf("start_step %q references non-existent step", def.StartStep))
	}

	for _, step := range def.Steps {
		if step.ID == "" {
			continue
		}
		errs = append(errs, validateStep(step, stepIDs)...)
	}

	return errs
}

func validateStep(step Step, stepIDs map[string]bool) []string {
	var errs []string

	if !step.Type.IsValid() {
		errs = append(errs, fmt.Sprintf("step %q has unknown type %q", step.ID, step.Type))
		return errs
	}

	if step.NextStep != "" && !stepIDs[step.NextStep] {
		errs = append(errs, fmt.Sprintf("step %q next_step %q references non-existent step", step.ID, step.NextStep))
	}

	switch step.Type {
	case StepTypeMessage:
		if step.Content == "" {
			errs = append(errs, fmt.Sprintf("message step %q requires content", step.ID))
		}

	case StepTypeChoice:
		if step.Content == "" {
			errs = append(errs, fmt.Sprintf("choice step %q requires content", step.ID))
		}
		if step.Variable == "" {
			errs = append(errs, fmt.Sprintf("choice step %q requires a variable", step.ID))
		} else if strings.HasPrefix(step.Variable, ControlKeyPrefix) {
			errs = append(errs, fmt.Sprintf("choice step %q variable %q uses the reserved prefix", step.ID, step.Variable))
		}
		if len(step.Options) < 2 {
			errs = append(errs, fmt.Sprintf("choice step %q requires at least 2 options", step.ID))
		}
		values := make(map[string]bool, len(step.Options))
		for _, opt := range step.Options {
			if opt.Value == "" {
				errs = append(errs, fmt.Sprintf("choice step %q has an option without a value", step.ID))
				continue
			}
			if values[opt.Value] {
				errs = append(errs, fmt.Sprintf("choice step %q has duplicate option value %q", step.ID, opt.Value))
			}
			values[opt.Value] = true
			if opt.NextStep != "" && !stepIDs[opt.NextStep] {
				errs = append(errs, fmt.Sprintf("choice step %q option %q next_step %q references non-existent step", step.ID, opt.Value, opt.NextStep))
			}
		}

	case StepTypeInput:
		if step.Content == "" {
			errs = append(errs, fmt.Sprintf("input step %q requires content", step.ID))
		}
		if step.Variable == "" {
			errs = append(errs, fmt.Sprintf("input step %q requires a variable", step.ID))
		} else if strings.HasPrefix(step.Variable, ControlKeyPrefix) {
			errs = append(errs, fmt.Sprintf("input step %q variable %q uses the reserved prefix", step.ID, step.Variable))
		}
		if step.Validation != "" {
			if _, err := regexp.Compile(step.Validation); err != nil {
				errs = append(errs, fmt.Sprintf("input step %q has invalid validation pattern: %v", step.ID, err))
			}
		}

	case StepTypeCondition:
		if step.Condition == "" {
			errs = append(errs, fmt.Sprintf("condition step %q requires a condition", step.ID))
		}
		if step.ElseStep != "" && !stepIDs[step.ElseStep] {
			errs = append(errs, fmt.Sprintf("condition step %q else_step %q references non-existent step", step.ID, step.ElseStep))
		}

	case StepTypeAction:
		if step.Action == "" {
			errs = append(errs, fmt.Sprintf("action step %q requires an action name", step.ID))
		}

	case StepTypeDelay:
		if step.DurationSeconds <= 0 {
			errs = append(errs, fmt.Sprintf("delay step %q requires duration_seconds > 0", step.ID))
		}
		// A delay with nowhere to go would expire into nothing.
		if step.NextStep == "" {
			errs = append(errs, fmt.Sprintf("delay step %q requires next_step", step.ID))
		}
	}

	return errs
}

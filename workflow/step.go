package workflow

// ============================================================================
// Step - tagged union by Type
// ============================================================================

// StepType tipo de paso
type StepType string

const (
	StepTypeMessage   StepType = "MESSAGE"
	StepTypeChoice    StepType = "CHOICE"
	StepTypeInput     StepType = "INPUT"
	StepTypeCondition StepType = "CONDITION"
	StepTypeAction    StepType = "ACTION"
	StepTypeDelay     StepType = "DELAY"
)

// IsInteractive reports whether the step kind is a turn boundary: it consumes
// one external call and suspends the execution until the next one.
func (t StepType) IsInteractive() bool {
	switch t {
	case StepTypeMessage, StepTypeChoice, StepTypeInput:
		return true
	default:
		return false
	}
}

// IsValid reports whether the step type is a known kind.
func (t StepType) IsValid() bool {
	switch t {
	case StepTypeMessage, StepTypeChoice, StepTypeInput,
		StepTypeCondition, StepTypeAction, StepTypeDelay:
		return true
	default:
		return false
	}
}

// ChoiceOption una opción presentada por un paso CHOICE
type ChoiceOption struct {
	Text     string `json:"text" yaml:"text"`
	Value    string `json:"value" yaml:"value"`
	NextStep string `json:"next_step,omitempty" yaml:"next_step,omitempty"`
}

// Step paso de un workflow. Closed tagged union: the Type field selects which
// of the optional fields apply; behavior is resolved through the step
// executor registry, never by branching on Type in the engine loop.
type Step struct {
	ID       string   `json:"id" yaml:"id"`
	Type     StepType `json:"type" yaml:"type"`
	NextStep string   `json:"next_step,omitempty" yaml:"next_step,omitempty"`

	// MESSAGE / CHOICE / INPUT
	Content string `json:"content,omitempty" yaml:"content,omitempty"`

	// CHOICE / INPUT
	Variable   string         `json:"variable,omitempty" yaml:"variable,omitempty"`
	Options    []ChoiceOption `json:"options,omitempty" yaml:"options,omitempty"`
	Validation string         `json:"validation,omitempty" yaml:"validation,omitempty"`

	// CONDITION
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	ElseStep  string `json:"else_step,omitempty" yaml:"else_step,omitempty"`

	// ACTION
	Action string         `json:"action,omitempty" yaml:"action,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// DELAY
	DurationSeconds float64 `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
}

// OptionByValue busca una opción por value y luego por texto
func (s *Step) OptionByValue(selection string) *ChoiceOption {
	for i := range s.Options {
		if s.Options[i].Value == selection {
			return &s.Options[i]
		}
	}
	for i := range s.Options {
		if s.Options[i].Text == selection {
			return &s.Options[i]
		}
	}
	return nil
}

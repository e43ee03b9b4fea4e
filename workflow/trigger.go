package workflow

import (
	"log"
	"regexp"
	"strings"
)

// ============================================================================
// WorkflowTrigger
// ============================================================================

// WorkflowTrigger define cuándo un mensaje entrante inicia el workflow
type WorkflowTrigger struct {
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Patterns []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Priority int      `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// IsEmpty reports whether the trigger has no conditions at all. Workflows
// with an empty trigger can only be started explicitly.
func (t WorkflowTrigger) IsEmpty() bool {
	return len(t.Keywords) == 0 && len(t.Patterns) == 0
}

// Matches verifica si el texto entrante coincide con el trigger.
// Keywords match as case-insensitive substrings; patterns as regular
// expressions. A pattern that fails to compile is logged and skipped.
func (t WorkflowTrigger) Matches(text string) bool {
	if text == "" {
		return false
	}

	lowered := strings.ToLower(text)
	for _, keyword := range t.Keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return true
		}
	}

	for _, pattern := range t.Patterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			log.Printf("⚠️  Invalid trigger pattern %q: %v", pattern, err)
			continue
		}
		if re.MatchString(text) {
			return true
		}
	}

	return false
}

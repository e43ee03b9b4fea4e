package workflow

import (
	"strings"
	"testing"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/stretchr/testify/require"
)

const validDefinitionJSON = `{
	"id": "wf-onboarding",
	"name": "Onboarding",
	"start_step": "greet",
	"trigger": {"keywords": ["hello"], "priority": 10},
	"steps": [
		{"id": "greet", "type": "MESSAGE", "content": "Welcome {{name}}!", "next_step": "ask"},
		{"id": "ask", "type": "CHOICE", "content": "Pick one", "variable": "choice", "options": [
			{"text": "Option A", "value": "a", "next_step": "done_a"},
			{"text": "Option B", "value": "b", "next_step": "done_b"}
		]},
		{"id": "done_a", "type": "MESSAGE", "content": "You chose A"},
		{"id": "done_b", "type": "MESSAGE", "content": "You chose B"}
	]
}`

const validDefinitionYAML = `
id: wf-support
name: Support
start_step: intake
steps:
  - id: intake
    type: INPUT
    content: "Describe your problem"
    variable: problem
    next_step: bye
  - id: bye
    type: MESSAGE
    content: "Thanks"
`

func TestParseDefinitionJSON(t *testing.T) {
	tenantID := kernel.TenantID("tenant-1")

	def, err := ParseDefinition([]byte(validDefinitionJSON), tenantID)
	require.NoError(t, err)
	require.Equal(t, kernel.WorkflowID("wf-onboarding"), def.ID)
	require.Equal(t, tenantID, def.TenantID)
	require.Equal(t, 1, def.Version)
	require.Equal(t, "greet", def.StartStep)
	require.Len(t, def.Steps, 4)
	require.True(t, def.IsActive)
	require.Equal(t, []string{"hello"}, def.Trigger.Keywords)
	require.Equal(t, 10, def.Trigger.Priority)
}

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinition([]byte(validDefinitionYAML), kernel.TenantID("tenant-1"))
	require.NoError(t, err)
	require.Equal(t, kernel.WorkflowID("wf-support"), def.ID)
	require.Equal(t, StepTypeInput, def.Steps[0].Type)
	require.Equal(t, "problem", def.Steps[0].Variable)
}

func TestParseDefinitionGarbage(t *testing.T) {
	_, err := ParseDefinition([]byte("{{{not a document"), kernel.TenantID("tenant-1"))
	require.Error(t, err)
	require.True(t, errx.IsType(err, errx.TypeValidation))
}

func TestValidateDefinitionCollectsAllErrors(t *testing.T) {
	raw := `{
		"id": "wf-bad",
		"name": "",
		"start_step": "nowhere",
		"steps": [
			{"id": "msg", "type": "MESSAGE", "next_step": "ghost"},
			{"id": "msg", "type": "MESSAGE", "content": "dup id"},
			{"id": "pick", "type": "CHOICE", "content": "Pick", "variable": "__reserved", "options": [
				{"text": "Only", "value": "only"}
			]},
			{"id": "in", "type": "INPUT", "content": "Give", "variable": "v", "validation": "("},
			{"id": "cond", "type": "CONDITION", "else_step": "ghost2"},
			{"id": "act", "type": "ACTION"},
			{"id": "wait", "type": "DELAY", "duration_seconds": 0},
			{"id": "weird", "type": "TELEPORT"}
		]
	}`

	def, err := DecodeDefinition([]byte(raw), kernel.TenantID("tenant-1"))
	require.NoError(t, err)

	errs := ValidateDefinition(def)

	expected := []string{
		"definition name is required",
		`start_step "nowhere" references non-existent step`,
		`duplicate step id "msg"`,
		`step "msg" next_step "ghost" references non-existent step`,
		`message step "msg" requires content`,
		`choice step "pick" variable "__reserved" uses the reserved prefix`,
		`choice step "pick" requires at least 2 options`,
		`condition step "cond" requires a condition`,
		`condition step "cond" else_step "ghost2" references non-existent step`,
		`action step "act" requires an action name`,
		`delay step "wait" requires duration_seconds > 0`,
		`delay step "wait" requires next_step`,
		`step "weird" has unknown type "TELEPORT"`,
	}
	for _, want := range expected {
		require.Contains(t, errs, want)
	}

	// Invalid regex reported with the compile error attached
	foundRegexErr := false
	for _, e := range errs {
		if strings.HasPrefix(e, `input step "in" has invalid validation pattern`) {
			foundRegexErr = true
		}
	}
	require.True(t, foundRegexErr)

	// The whole list comes back in one pass: a parse attempt rejects the
	// document instead of returning a partial definition.
	_, err = ParseDefinition([]byte(raw), kernel.TenantID("tenant-1"))
	require.Error(t, err)
}

func TestValidateDefinitionDuplicateOptionValues(t *testing.T) {
	raw := `{
		"id": "wf-dup",
		"name": "Dup",
		"start_step": "pick",
		"steps": [
			{"id": "pick", "type": "CHOICE", "content": "Pick", "variable": "v", "options": [
				{"text": "A", "value": "same"},
				{"text": "B", "value": "same"}
			]}
		]
	}`

	def, err := DecodeDefinition([]byte(raw), kernel.TenantID("tenant-1"))
	require.NoError(t, err)

	errs := ValidateDefinition(def)
	require.Contains(t, errs, `choice step "pick" has duplicate option value "same"`)
}

func TestParseDefinitionValidDocumentHasNoErrors(t *testing.T) {
	def, err := DecodeDefinition([]byte(validDefinitionJSON), kernel.TenantID("tenant-1"))
	require.NoError(t, err)
	require.Empty(t, ValidateDefinition(def))
}

package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolverResolve(t *testing.T) {
	r := NewResolver()

	vars := map[string]any{
		"name": "Ana",
		"user": map[string]any{
			"email": "ana@example.com",
			"plan":  map[string]any{"tier": "pro"},
		},
		"count":              3,
		"__workflow_ctrl":    "hidden",
		VarWorkflowCompleted: true,
	}

	t.Run("simple interpolation", func(t *testing.T) {
		require.Equal(t, "Hola Ana!", r.Resolve("Hola {{name}}!", vars))
	})

	t.Run("dot notation", func(t *testing.T) {
		require.Equal(t, "ana@example.com", r.Resolve("{{user.email}}", vars))
		require.Equal(t, "tier pro", r.Resolve("tier {{user.plan.tier}}", vars))
	})

	t.Run("multiple occurrences", func(t *testing.T) {
		require.Equal(t, "Ana has 3, Ana confirmed", r.Resolve("{{name}} has {{count}}, {{name}} confirmed", vars))
	})

	t.Run("whitespace inside braces", func(t *testing.T) {
		require.Equal(t, "Ana", r.Resolve("{{ name }}", vars))
	})

	t.Run("unresolved becomes empty string", func(t *testing.T) {
		require.Equal(t, "Hola !", r.Resolve("Hola {{missing}}!", vars))
		require.Equal(t, "", r.Resolve("{{user.plan.missing}}", vars))
	})

	t.Run("path through non-map becomes empty string", func(t *testing.T) {
		require.Equal(t, "", r.Resolve("{{name.deeper}}", vars))
	})

	t.Run("reserved variables never leak", func(t *testing.T) {
		require.Equal(t, "", r.Resolve("{{__workflow_ctrl}}", vars))
		require.Equal(t, "", r.Resolve("{{__workflow_completed}}", vars))
	})

	t.Run("no templates passes through", func(t *testing.T) {
		require.Equal(t, "plain text", r.Resolve("plain text", vars))
	})
}

func TestResolverResolveParams(t *testing.T) {
	r := NewResolver()
	vars := map[string]any{"city": "Lima", "n": 2}

	params := map[string]any{
		"to":      "{{city}}",
		"retries": 5,
		"nested": map[string]any{
			"note": "visit {{city}}",
		},
		"list": []any{"{{city}}", 7},
	}

	resolved := r.ResolveParams(params, vars)

	require.Equal(t, "Lima", resolved["to"])
	require.Equal(t, 5, resolved["retries"])
	require.Equal(t, "visit Lima", resolved["nested"].(map[string]any)["note"])
	require.Equal(t, "Lima", resolved["list"].([]any)[0])
	require.Equal(t, 7, resolved["list"].([]any)[1])

	// Originals untouched
	require.Equal(t, "{{city}}", params["to"])
}

func TestResolverEvaluate(t *testing.T) {
	r := NewResolver()

	vars := map[string]any{
		"age":    30,
		"name":   "Ana",
		"score":  "18.5",
		"active": true,
		"user":   map[string]any{"plan": "pro"},
	}

	cases := []struct {
		name      string
		condition string
		want      bool
	}{
		{"numeric equality", "{{age}} == 30", true},
		{"numeric inequality", "{{age}} != 30", false},
		{"numeric less than", "{{age}} < 40", true},
		{"numeric greater or equal", "{{age}} >= 30", true},
		{"numeric string coercion", "{{score}} > 18", true},
		{"string equality quoted", `{{name}} == "Ana"`, true},
		{"string inequality", `{{name}} != "Bob"`, true},
		{"dot notation reference", `{{user.plan}} == "pro"`, true},
		{"bare path reference", `user.plan == "pro"`, true},
		{"bool coercion", "{{active}} == 1", true},
		{"missing variable is false", "{{missing}} == 1", false},
		{"bare missing variable is false", "missing != 5", false},
		{"bare missing variable equality is false", `missing == "missing"`, false},
		{"bare numeric literal", "1 == 1", true},
		{"bare bool literal", "true == 1", true},
		{"no operator is false", "{{age}} 30", false},
		{"empty condition is false", "", false},
		{"missing right side is false", "{{age}} ==", false},
		{"longest operator wins", "{{age}} <= 30", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, r.Evaluate(tc.condition, vars))
		})
	}
}

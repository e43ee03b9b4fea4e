package triggerdetect

import (
	"context"
	"log"
	"sort"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/errx"
)

// Detector matches inbound free text against the tenant's active workflow
// set. Candidates are evaluated in priority order (higher first, creation
// time breaks ties, oldest wins) and the first match short-circuits.
type Detector struct {
	definitionRepo workflow.DefinitionRepository
}

var _ workflow.TriggerDetector = (*Detector)(nil)

func NewDetector(definitionRepo workflow.DefinitionRepository) *Detector {
	return &Detector{definitionRepo: definitionRepo}
}

// Detect returns the winning definition, or nil when no trigger matches so
// normal message handling proceeds.
func (d *Detector) Detect(ctx context.Context, tenantID kernel.TenantID, text string) (*workflow.WorkflowDefinition, error) {
	if text == "" {
		return nil, nil
	}

	defs, err := d.definitionRepo.FindActiveByTenant(ctx, tenantID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to load active definitions", errx.TypeInternal)
	}

	candidates := make([]*workflow.WorkflowDefinition, 0, len(defs))
	for _, def := range defs {
		if !def.Trigger.IsEmpty() {
			candidates = append(candidates, def)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Trigger.Priority != b.Trigger.Priority {
			return a.Trigger.Priority > b.Trigger.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	for _, def := range candidates {
		if def.Trigger.Matches(text) {
			log.Printf("🎯 Trigger matched workflow %s (priority %d) for tenant %s",
				def.ID, def.Trigger.Priority, tenantID)
			return def, nil
		}
	}

	return nil, nil
}

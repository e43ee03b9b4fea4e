package workflowinfra

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/storex"
)

// In-memory implementations of the persistence ports. They back local
// development and tests with the same conflict and not-found semantics as
// the Postgres/Redis versions.

// ============================================================================
// MemoryDefinitionRepository
// ============================================================================

type MemoryDefinitionRepository struct {
	mu sync.RWMutex
	// keyed by id, then version
	defs map[kernel.WorkflowID]map[int]workflow.WorkflowDefinition
}

var _ workflow.DefinitionRepository = (*MemoryDefinitionRepository)(nil)

func NewMemoryDefinitionRepository() *MemoryDefinitionRepository {
	return &MemoryDefinitionRepository{
		defs: make(map[kernel.WorkflowID]map[int]workflow.WorkflowDefinition),
	}
}

func (r *MemoryDefinitionRepository) Save(ctx context.Context, def workflow.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.defs[def.ID]
	if !ok {
		versions = make(map[int]workflow.WorkflowDefinition)
		r.defs[def.ID] = versions
	}
	versions[def.Version] = def
	return nil
}

func (r *MemoryDefinitionRepository) FindByID(ctx context.Context, id kernel.WorkflowID) (*workflow.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.defs[id]
	if !ok || len(versions) == 0 {
		return nil, workflow.ErrDefinitionNotFound().WithDetail("workflow_id", id.String())
	}

	latest := -1
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	def := versions[latest]
	return &def, nil
}

func (r *MemoryDefinitionRepository) FindVersion(ctx context.Context, id kernel.WorkflowID, version int) (*workflow.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.defs[id]
	if !ok {
		return nil, workflow.ErrDefinitionNotFound().WithDetail("workflow_id", id.String())
	}
	def, ok := versions[version]
	if !ok {
		return nil, workflow.ErrDefinitionNotFound().
			WithDetail("workflow_id", id.String()).
			WithDetail("version", version)
	}
	return &def, nil
}

func (r *MemoryDefinitionRepository) FindActiveByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*workflow.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*workflow.WorkflowDefinition
	for id := range r.defs {
		def, err := r.findLatestLocked(id)
		if err != nil {
			continue
		}
		if def.TenantID == tenantID && def.IsActive {
			result = append(result, def)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (r *MemoryDefinitionRepository) findLatestLocked(id kernel.WorkflowID) (*workflow.WorkflowDefinition, error) {
	versions := r.defs[id]
	if len(versions) == 0 {
		return nil, workflow.ErrDefinitionNotFound()
	}
	latest := -1
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	def := versions[latest]
	return &def, nil
}

func (r *MemoryDefinitionRepository) List(ctx context.Context, req workflow.DefinitionListRequest) (workflow.DefinitionListResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []workflow.WorkflowDefinition
	for id := range r.defs {
		def, err := r.findLatestLocked(id)
		if err != nil {
			continue
		}
		if def.TenantID != req.TenantID {
			continue
		}
		if req.IsActive != nil && def.IsActive != *req.IsActive {
			continue
		}
		all = append(all, *def)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	start := req.GetOffset()
	if start > len(all) {
		start = len(all)
	}
	end := start + req.PageSize
	if end > len(all) {
		end = len(all)
	}

	return storex.NewPaginated(all[start:end], req.Page, req.PageSize, len(all)), nil
}

func (r *MemoryDefinitionRepository) Delete(ctx context.Context, id kernel.WorkflowID, tenantID kernel.TenantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.defs[id]
	if !ok {
		return workflow.ErrDefinitionNotFound().WithDetail("workflow_id", id.String())
	}
	for _, def := range versions {
		if def.TenantID != tenantID {
			return workflow.ErrDefinitionNotFound().WithDetail("workflow_id", id.String())
		}
		break
	}
	delete(r.defs, id)
	return nil
}

// ============================================================================
// MemoryExecutionRepository
// ============================================================================

type MemoryExecutionRepository struct {
	mu    sync.RWMutex
	execs map[kernel.ExecutionID]workflow.WorkflowExecution
}

var _ workflow.ExecutionRepository = (*MemoryExecutionRepository)(nil)

func NewMemoryExecutionRepository() *MemoryExecutionRepository {
	return &MemoryExecutionRepository{
		execs: make(map[kernel.ExecutionID]workflow.WorkflowExecution),
	}
}

func (r *MemoryExecutionRepository) Save(ctx context.Context, exec workflow.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs[exec.ID] = exec
	return nil
}

func (r *MemoryExecutionRepository) FindByID(ctx context.Context, id kernel.ExecutionID) (*workflow.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.execs[id]
	if !ok {
		return nil, workflow.ErrExecutionNotFound().WithDetail("execution_id", id.String())
	}
	return &exec, nil
}

func (r *MemoryExecutionRepository) FindActiveBySession(ctx context.Context, sessionID kernel.SessionID) (*workflow.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *workflow.WorkflowExecution
	for id := range r.execs {
		exec := r.execs[id]
		if exec.SessionID != sessionID || exec.Status.IsTerminal() {
			continue
		}
		if newest == nil || exec.CreatedAt.After(newest.CreatedAt) {
			e := exec
			newest = &e
		}
	}
	if newest == nil {
		return nil, workflow.ErrExecutionNotFound().WithDetail("session_id", sessionID.String())
	}
	return newest, nil
}

func (r *MemoryExecutionRepository) List(ctx context.Context, req workflow.ExecutionListRequest) (workflow.ExecutionListResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []workflow.WorkflowExecution
	for id := range r.execs {
		exec := r.execs[id]
		if exec.TenantID != req.TenantID {
			continue
		}
		if !req.SessionID.IsEmpty() && exec.SessionID != req.SessionID {
			continue
		}
		if req.Status != nil && exec.Status != *req.Status {
			continue
		}
		if !req.Workflow.IsEmpty() && exec.WorkflowID != req.Workflow {
			continue
		}
		all = append(all, exec)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	start := req.GetOffset()
	if start > len(all) {
		start = len(all)
	}
	end := start + req.PageSize
	if end > len(all) {
		end = len(all)
	}

	return storex.NewPaginated(all[start:end], req.Page, req.PageSize, len(all)), nil
}

// ============================================================================
// MemoryStateStore
// ============================================================================

type MemoryStateStore struct {
	mu     sync.Mutex
	states map[kernel.ExecutionID]workflow.ExecutionState
}

var _ workflow.StateStore = (*MemoryStateStore)(nil)

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[kernel.ExecutionID]workflow.ExecutionState),
	}
}

func (s *MemoryStateStore) Get(ctx context.Context, executionID kernel.ExecutionID) (*workflow.ExecutionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[executionID]
	if !ok {
		return nil, workflow.ErrStateNotFound().WithDetail("execution_id", executionID.String())
	}

	copied := state
	copied.Variables = make(map[string]any, len(state.Variables))
	for k, v := range state.Variables {
		copied.Variables[k] = v
	}
	return &copied, nil
}

func (s *MemoryStateStore) Put(ctx context.Context, state *workflow.ExecutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.states[state.ExecutionID]; ok && stored.Version != state.Version {
		return workflow.ErrStateConflict().
			WithDetail("execution_id", state.ExecutionID.String()).
			WithDetail("expected_version", state.Version).
			WithDetail("stored_version", stored.Version)
	}

	state.Version++
	state.UpdatedAt = time.Now()

	copied := *state
	copied.Variables = make(map[string]any, len(state.Variables))
	for k, v := range state.Variables {
		copied.Variables[k] = v
	}
	s.states[state.ExecutionID] = copied
	return nil
}

func (s *MemoryStateStore) Delete(ctx context.Context, executionID kernel.ExecutionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, executionID)
	return nil
}

// ============================================================================
// MemoryDelaySchedule
// ============================================================================

type MemoryDelaySchedule struct {
	mu      sync.Mutex
	resumes map[kernel.ExecutionID]workflow.DelayedResume
}

var _ workflow.DelaySchedule = (*MemoryDelaySchedule)(nil)

func NewMemoryDelaySchedule() *MemoryDelaySchedule {
	return &MemoryDelaySchedule{
		resumes: make(map[kernel.ExecutionID]workflow.DelayedResume),
	}
}

func (s *MemoryDelaySchedule) Schedule(ctx context.Context, resume workflow.DelayedResume) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumes[resume.ExecutionID] = resume
	return nil
}

func (s *MemoryDelaySchedule) Due(ctx context.Context, now time.Time, limit int64) ([]workflow.DelayedResume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []workflow.DelayedResume
	for id, resume := range s.resumes {
		if int64(len(due)) >= limit {
			break
		}
		if !resume.ResumeAt.After(now) {
			due = append(due, resume)
			delete(s.resumes, id)
		}
	}
	return due, nil
}

func (s *MemoryDelaySchedule) Remove(ctx context.Context, executionID kernel.ExecutionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resumes, executionID)
	return nil
}

// ============================================================================
// MemoryQueuePublisher
// ============================================================================

type MemoryQueuePublisher struct {
	mu       sync.Mutex
	Messages []workflow.OutboundMessage
}

var _ workflow.QueuePublisher = (*MemoryQueuePublisher)(nil)

func NewMemoryQueuePublisher() *MemoryQueuePublisher {
	return &MemoryQueuePublisher{}
}

func (p *MemoryQueuePublisher) Publish(ctx context.Context, msg workflow.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = append(p.Messages, msg)
	return nil
}

// ============================================================================
// MemoryActionRecordRepository
// ============================================================================

type MemoryActionRecordRepository struct {
	mu      sync.Mutex
	records []workflow.ActionRecord
}

var _ workflow.ActionRecordRepository = (*MemoryActionRecordRepository)(nil)

func NewMemoryActionRecordRepository() *MemoryActionRecordRepository {
	return &MemoryActionRecordRepository{}
}

func (r *MemoryActionRecordRepository) Append(ctx context.Context, record workflow.ActionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *MemoryActionRecordRepository) FindByExecution(ctx context.Context, executionID kernel.ExecutionID) ([]*workflow.ActionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*workflow.ActionRecord
	for i := range r.records {
		if r.records[i].ExecutionID == executionID {
			rec := r.records[i]
			result = append(result, &rec)
		}
	}
	return result, nil
}

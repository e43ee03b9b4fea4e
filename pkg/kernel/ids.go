package kernel

type TenantID string

func NewTenantID(id string) TenantID { return TenantID(id) }
func (t TenantID) String() string    { return string(t) }
func (t TenantID) IsEmpty() bool     { return string(t) == "" }

type WorkflowID string

func NewWorkflowID(id string) WorkflowID { return WorkflowID(id) }
func (r WorkflowID) String() string      { return string(r) }
func (r WorkflowID) IsEmpty() bool       { return string(r) == "" }

type ExecutionID string

func NewExecutionID(id string) ExecutionID { return ExecutionID(id) }
func (r ExecutionID) String() string       { return string(r) }
func (r ExecutionID) IsEmpty() bool        { return string(r) == "" }

type SessionID string

func NewSessionID(id string) SessionID { return SessionID(id) }
func (r SessionID) String() string     { return string(r) }
func (r SessionID) IsEmpty() bool      { return string(r) == "" }

type ActionRecordID string

func NewActionRecordID(id string) ActionRecordID { return ActionRecordID(id) }
func (r ActionRecordID) String() string          { return string(r) }
func (r ActionRecordID) IsEmpty() bool           { return string(r) == "" }

package kernel

// ============================================================================
// Context Types
// ============================================================================

// AuthContext is the authenticated caller injected into each request.
type AuthContext struct {
	TenantID TenantID `json:"tenant_id"`
	Subject  string   `json:"subject"`
	IsAdmin  bool     `json:"is_admin"`
}

// IsValid checks whether the AuthContext carries a tenant.
func (a *AuthContext) IsValid() bool {
	return !a.TenantID.IsEmpty()
}

// ============================================================================
// Context Keys
// ============================================================================

type ContextKey string

const (
	// AuthContextKey stores the AuthContext in context.Context / fiber locals
	AuthContextKey ContextKey = "auth_context"

	// TenantContextKey stores the TenantID in context.Context
	TenantContextKey ContextKey = "tenant_id"

	// RequestIDKey stores the request id
	RequestIDKey ContextKey = "request_id"
)

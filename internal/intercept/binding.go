// Package intercept implements the Endpoint Binding Interceptor (C10): a
// chi middleware that, for routes with an active EndpointBinding, opens an
// ApprovalRequest instead of letting the wrapped handler run.
package intercept

// Binding is one EndpointBinding row (§3): a route pattern + method that,
// when active, must be converted into an ApprovalRequest rather than
// executed directly.
type Binding struct {
	ID            string `gorm:"primaryKey;column:id"`
	RoutePattern  string `gorm:"column:route_pattern;index"`
	HTTPMethod    string `gorm:"column:http_method"`
	ApprovalType  string `gorm:"column:approval_type"`
	Active        bool   `gorm:"column:active"`
	RequireReason bool   `gorm:"column:require_reason"`
}

func (Binding) TableName() string { return "endpoint_bindings" }

// Registry resolves (method, route pattern) to an active Binding.
type Registry struct {
	bindings map[string]Binding
}

// NewRegistry builds a lookup keyed by "METHOD pattern" from the given bindings.
func NewRegistry(bindings []Binding) *Registry {
	r := &Registry{bindings: make(map[string]Binding, len(bindings))}
	for _, b := range bindings {
		if !b.Active {
			continue
		}
		r.bindings[key(b.HTTPMethod, b.RoutePattern)] = b
	}
	return r
}

func key(method, pattern string) string { return method + " " + pattern }

// Lookup returns the active binding for (method, pattern), if any.
func (r *Registry) Lookup(method, pattern string) (Binding, bool) {
	b, ok := r.bindings[key(method, pattern)]
	return b, ok
}

package llm

import (
	"fmt"

	"github.com/kadirpekel/persona-core/pkg/registry"
)

// Registry names concrete Invokers by role ("main"/"fast"/"judge"),
// built on pkg/registry's generic component table.
type Registry struct {
	*registry.BaseRegistry[Invoker]
}

// NewRegistry builds an empty invoker registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Invoker]()}
}

// RegisterInvoker names a concrete Invoker for later lookup (e.g. by a
// config-driven Router).
func (r *Registry) RegisterInvoker(name string, inv Invoker) error {
	if inv == nil {
		return fmt.Errorf("llm: invoker %q cannot be nil", name)
	}
	return r.Register(name, inv)
}

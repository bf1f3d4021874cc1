package registry

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"binancemcp/pkg/core"
)

// Registry is the concurrent-safe tool catalogue. Registration happens at
// startup; lookups and validation happen per call.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*ToolDefinition
	order []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*ToolDefinition)}
}

// NewWithBuiltins creates a registry pre-loaded with the full tool set.
func NewWithBuiltins() *Registry {
	r := New()
	for _, def := range Builtins() {
		// Builtin names are unique by construction.
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a tool definition. Registering the same name twice fails.
func (r *Registry) Register(def *ToolDefinition) error {
	if def == nil || def.Name == "" {
		return core.NewError(core.KindInternal, "tool definition requires a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("%w: %s", core.ErrDuplicateTool, def.Name)
	}
	r.tools[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Lookup returns the definition for a tool name.
func (r *Registry) Lookup(name string) (*ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// List returns all definitions in registration order.
func (r *Registry) List() []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name])
	}
	return defs
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

// Validate checks the arguments against the tool's parameter specs. Every
// violation is collected so the caller sees the full list at once, not just
// the first failure.
func (r *Registry) Validate(def *ToolDefinition, params core.Params) error {
	var violations []string

	specs := make(map[string]*ParamSpec, len(def.Params))
	for i := range def.Params {
		specs[def.Params[i].Name] = &def.Params[i]
	}

	for i := range def.Params {
		spec := &def.Params[i]
		val, present := params[spec.Name]
		if !present {
			if spec.Required {
				violations = append(violations, fmt.Sprintf("missing required parameter: %s", spec.Name))
			}
			continue
		}
		violations = append(violations, checkValue(spec, val)...)
	}

	unknown := make([]string, 0)
	for key := range params {
		if _, ok := specs[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		violations = append(violations, fmt.Sprintf("unknown parameter: %s", key))
	}

	if len(violations) > 0 {
		return core.NewInvalidArgumentError(violations)
	}
	return nil
}

func checkValue(spec *ParamSpec, val any) []string {
	var violations []string

	switch spec.Type {
	case TypeString:
		s, ok := val.(string)
		if !ok {
			return []string{fmt.Sprintf("parameter %s must be a string", spec.Name)}
		}
		if spec.Required && s == "" {
			violations = append(violations, fmt.Sprintf("parameter %s cannot be empty", spec.Name))
		}
		if len(spec.Enum) > 0 && s != "" && !enumContains(spec.Enum, s) {
			violations = append(violations, fmt.Sprintf(
				"parameter %s must be one of [%s]", spec.Name, strings.Join(spec.Enum, ", ")))
		}

	case TypeInteger:
		switch n := val.(type) {
		case int, int64:
		case float64:
			if n != math.Trunc(n) {
				violations = append(violations, fmt.Sprintf("parameter %s must be an integer", spec.Name))
			}
		default:
			violations = append(violations, fmt.Sprintf("parameter %s must be an integer", spec.Name))
		}

	case TypeNumber:
		switch val.(type) {
		case int, int64, float64:
		default:
			violations = append(violations, fmt.Sprintf("parameter %s must be a number", spec.Name))
		}

	case TypeBoolean:
		if _, ok := val.(bool); !ok {
			violations = append(violations, fmt.Sprintf("parameter %s must be a boolean", spec.Name))
		}
	}

	return violations
}

// enumContains matches case-insensitively: callers routinely send "buy"
// where the exchange expects "BUY", and the protocol uppercases on build.
func enumContains(enum []string, val string) bool {
	for _, e := range enum {
		if strings.EqualFold(e, val) {
			return true
		}
	}
	return false
}

package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	models "github.com/Desarso/toolgate/models"
)

// Func is the callable behind a registered tool. Arguments arrive already
// unmarshaled from the model's JSON string; the returned string becomes the
// tool message content verbatim.
type Func func(ctx context.Context, args map[string]interface{}) (string, error)

type snapshot struct {
	decls map[string]models.FunctionDeclaration
	funcs map[string]Func
	tools []models.Tool // wire format, precomputed in name order
}

// Registry holds the tool set advertised to models. Reads are lock-free
// against an immutable snapshot; writers swap in a fresh snapshot, so a
// request that started before a reload keeps the tool set it started with.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{
		decls: map[string]models.FunctionDeclaration{},
		funcs: map[string]Func{},
	})
	return r
}

// Register adds or replaces a tool. The declaration's Callable must be a
// tools.Func.
func (r *Registry) Register(decl models.FunctionDeclaration, fn Func) error {
	if decl.Name == "" {
		return fmt.Errorf("tool declaration missing name")
	}
	if fn == nil {
		return fmt.Errorf("tool %q has no function", decl.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snap.Load()
	next := cloneSnapshot(old)
	next.decls[decl.Name] = decl
	next.funcs[decl.Name] = fn
	next.rebuildTools()
	r.snap.Store(next)
	return nil
}

// Unregister removes a tool. Removing an unknown name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snap.Load()
	if _, ok := old.decls[name]; !ok {
		return
	}
	next := cloneSnapshot(old)
	delete(next.decls, name)
	delete(next.funcs, name)
	next.rebuildTools()
	r.snap.Store(next)
}

// Replace swaps the entire tool set in one step.
func (r *Registry) Replace(decls []models.FunctionDeclaration, funcs map[string]Func) error {
	next := &snapshot{
		decls: make(map[string]models.FunctionDeclaration, len(decls)),
		funcs: make(map[string]Func, len(decls)),
	}
	for _, d := range decls {
		fn, ok := funcs[d.Name]
		if !ok || fn == nil {
			return fmt.Errorf("tool %q has no function", d.Name)
		}
		next.decls[d.Name] = d
		next.funcs[d.Name] = fn
	}
	next.rebuildTools()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Store(next)
	return nil
}

// Snapshot pins the current tool set. The returned value never changes, even
// across later Register/Unregister calls.
func (r *Registry) Snapshot() *Snapshot {
	return &Snapshot{snap: r.snap.Load()}
}

// Snapshot is an immutable view of the registry taken at request start.
type Snapshot struct {
	snap *snapshot
}

// Tools returns the wire-format tool list to advertise to the provider.
func (s *Snapshot) Tools() []models.Tool {
	return s.snap.tools
}

// Lookup returns the declaration and callable for name.
func (s *Snapshot) Lookup(name string) (models.FunctionDeclaration, Func, bool) {
	decl, ok := s.snap.decls[name]
	if !ok {
		return models.FunctionDeclaration{}, nil, false
	}
	return decl, s.snap.funcs[name], true
}

// Len returns the number of registered tools.
func (s *Snapshot) Len() int { return len(s.snap.decls) }

func cloneSnapshot(old *snapshot) *snapshot {
	next := &snapshot{
		decls: make(map[string]models.FunctionDeclaration, len(old.decls)+1),
		funcs: make(map[string]Func, len(old.funcs)+1),
	}
	for k, v := range old.decls {
		next.decls[k] = v
	}
	for k, v := range old.funcs {
		next.funcs[k] = v
	}
	return next
}

func (s *snapshot) rebuildTools() {
	names := make([]string, 0, len(s.decls))
	for name := range s.decls {
		names = append(names, name)
	}
	sort.Strings(names)

	s.tools = make([]models.Tool, 0, len(names))
	for _, name := range names {
		s.tools = append(s.tools, s.decls[name].AsTool())
	}
}

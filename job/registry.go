package job

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// HandlerFunc is a type-erased handler. Simple job handlers unmarshal
// the payload of j; cron task handlers ignore it.
type HandlerFunc func(ctx context.Context, j *Job) (any, error)

// Entry is a registered, type-erased definition.
type Entry struct {
	Type    Type
	Name    string
	Handler HandlerFunc
	Opts    Options

	// Schedule is the cron expression of cron task entries.
	Schedule string
}

type entryKey struct {
	typ  Type
	name string
}

// Registry maps (type, name) pairs to definitions.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[entryKey]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[entryKey]*Entry),
	}
}

// RegisterDefinition registers a typed job definition. The generic handler
// is wrapped in a closure that JSON-unmarshals the payload into T before
// calling the typed handler.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, j *Job) (any, error) {
		var t T
		if len(j.Payload) > 0 && string(j.Payload) != "null" {
			if err := json.Unmarshal(j.Payload, &t); err != nil {
				return nil, fmt.Errorf("unmarshal payload for job %q: %w", def.Name, err)
			}
		}
		return def.Handler(ctx, t)
	}

	r.Register(&Entry{
		Type:    TypeSimple,
		Name:    def.Name,
		Handler: handler,
		Opts:    def.Opts,
	})
}

// Register stores an entry, replacing any previous one with the same type
// and name.
func (r *Registry) Register(e *Entry) {
	if e.Opts.Concurrency == "" {
		e.Opts.Concurrency = ModeConcurrent
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entryKey{typ: e.Type, name: e.Name}] = e
}

// Get returns the entry for the given type and name.
// Returns false if nothing is registered.
func (r *Registry) Get(t Type, name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[entryKey{typ: t, name: name}]
	return e, ok
}

// Len returns the number of registered entries of every type.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns the entries of the given type sorted by name.
func (r *Registry) Entries(t Type) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for k, e := range r.entries {
		if k.typ == t {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered names of the given type.
func (r *Registry) Names(t Type) []string {
	entries := r.Entries(t)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

// ConcurrencyFor returns the concurrency mode of a definition, defaulting
// to concurrent when the name is unknown.
func (r *Registry) ConcurrencyFor(t Type, name string) ConcurrencyMode {
	if e, ok := r.Get(t, name); ok {
		return e.Opts.Concurrency
	}
	return ModeConcurrent
}

// Scope returns the claim scope for a worker with the given tags. Nil tags
// mean every definition.
func (r *Registry) Scope(tags []string) Scope {
	if tags == nil {
		return Scope{All: true}
	}

	allowed := func(e *Entry) bool {
		return e.Opts.Tag == "" || slices.Contains(tags, e.Opts.Tag)
	}

	var s Scope
	for _, e := range r.Entries(TypeSimple) {
		if allowed(e) {
			s.SimpleNames = append(s.SimpleNames, e.Name)
		}
	}
	for _, e := range r.Entries(TypeCronTask) {
		if allowed(e) {
			s.CronTaskNames = append(s.CronTaskNames, e.Name)
		}
	}
	return s
}

// Scope restricts which executable records a worker may claim.
type Scope struct {
	// All disables name filtering.
	All bool

	// SimpleNames are the claimable simple job names when All is false.
	SimpleNames []string

	// CronTaskNames are the claimable cron task names when All is false.
	CronTaskNames []string
}

// Matches reports whether j falls inside the scope.
func (s Scope) Matches(j *Job) bool {
	switch j.Type {
	case TypeSimple:
		return s.All || slices.Contains(s.SimpleNames, j.Name)
	case TypeCronTask:
		return s.All || slices.Contains(s.CronTaskNames, j.Name)
	case TypeCron:
		return false
	default:
		return false
	}
}

// Empty reports whether nothing can match.
func (s Scope) Empty() bool {
	return !s.All && len(s.SimpleNames) == 0 && len(s.CronTaskNames) == 0
}

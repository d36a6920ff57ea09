// Package hooks implements the in-process extension bus. Hooks are declared as
// typed values next to the payload they carry, so registration and invocation
// are checked by the compiler.
package hooks

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DefaultPriority is used when callers have no ordering preference.
const DefaultPriority = 10

// Filter declares a hook that transforms a value of type V given an argument A.
type Filter[V, A any] struct{ Name string }

// Action declares a side-effect hook receiving an argument A.
type Action[A any] struct{ Name string }

// NewFilter declares a filter hook.
func NewFilter[V, A any](name string) Filter[V, A] { return Filter[V, A]{Name: name} }

// NewAction declares an action hook.
func NewAction[A any](name string) Action[A] { return Action[A]{Name: name} }

type entry struct {
	priority int
	seq      uint64
	fn       any
}

// Bus stores registered callbacks per hook name.
type Bus struct {
	mu      sync.RWMutex
	seq     uint64
	filters map[string][]entry
	actions map[string][]entry
	logger  *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		filters: make(map[string][]entry),
		actions: make(map[string][]entry),
		logger:  logger.Named("Hooks"),
	}
}

func (b *Bus) add(table map[string][]entry, name string, priority int, fn any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	list := append(table[name], entry{priority: priority, seq: b.seq, fn: fn})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority < list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	table[name] = list
}

func (b *Bus) snapshot(table map[string][]entry, name string) []entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := table[name]
	out := make([]entry, len(list))
	copy(out, list)
	return out
}

// AddFilter registers fn on hook. Lower priorities run first.
func AddFilter[V, A any](b *Bus, hook Filter[V, A], fn func(V, A) (V, error), priority int) {
	b.add(b.filters, hook.Name, priority, fn)
}

// AddAction registers fn on hook. Lower priorities run first.
func AddAction[A any](b *Bus, hook Action[A], fn func(A) error, priority int) {
	b.add(b.actions, hook.Name, priority, fn)
}

// ApplyFilters threads value through every filter. A failing or panicking
// filter is logged and skipped; the value it received flows on unchanged.
func ApplyFilters[V, A any](b *Bus, hook Filter[V, A], value V, arg A) V {
	for _, e := range b.snapshot(b.filters, hook.Name) {
		fn, ok := e.fn.(func(V, A) (V, error))
		if !ok {
			continue
		}
		next, err := callFilter(fn, value, arg)
		if err != nil {
			b.logger.Warn("filter failed", zap.String("hook", hook.Name), zap.Error(err))
			continue
		}
		value = next
	}
	return value
}

// DoAction runs every action callback; failures are logged and do not stop the chain.
func DoAction[A any](b *Bus, hook Action[A], arg A) {
	for _, e := range b.snapshot(b.actions, hook.Name) {
		fn, ok := e.fn.(func(A) error)
		if !ok {
			continue
		}
		if err := callAction(fn, arg); err != nil {
			b.logger.Warn("action failed", zap.String("hook", hook.Name), zap.Error(err))
		}
	}
}

// Count reports how many callbacks are registered under name.
func (b *Bus) Count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.filters[name]) + len(b.actions[name])
}

func callFilter[V, A any](fn func(V, A) (V, error), value V, arg A) (out V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(value, arg)
}

func callAction[A any](fn func(A) error, arg A) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(arg)
}

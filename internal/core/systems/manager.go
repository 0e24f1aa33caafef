package systems

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zeusync/grabkit/internal/core/observability/log"
)

type entry struct {
	system  System
	enabled bool
	order   int
	metrics Metrics
}

// Manager runs registered systems once per tick in descending priority.
// Systems with equal priority run in registration order. Manager is driven
// from the tick goroutine and is not safe for concurrent use.
type Manager struct {
	entries []*entry
	byName  map[string]*entry
	seq     int
	frames  uint64
	logger  log.Log

	onError func(name string, err error)
}

// NewManager creates an empty manager.
func NewManager(logger log.Log) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Manager{byName: make(map[string]*entry), logger: logger}
}

// RegisterSystem adds an enabled system.
func (m *Manager) RegisterSystem(s System) error {
	if s == nil {
		return ErrNilSystem
	}
	if _, ok := m.byName[s.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrSystemExists, s.Name())
	}
	e := &entry{system: s, enabled: true, order: m.seq}
	m.seq++
	m.entries = append(m.entries, e)
	m.byName[s.Name()] = e
	sort.SliceStable(m.entries, func(i, j int) bool {
		if m.entries[i].system.Priority() != m.entries[j].system.Priority() {
			return m.entries[i].system.Priority() > m.entries[j].system.Priority()
		}
		return m.entries[i].order < m.entries[j].order
	})
	return nil
}

// UnregisterSystem removes a system by name.
func (m *Manager) UnregisterSystem(name string) error {
	e, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSystemNotFound, name)
	}
	delete(m.byName, name)
	for i, cur := range m.entries {
		if cur == e {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	return nil
}

// GetSystem looks up a system by name.
func (m *Manager) GetSystem(name string) (System, bool) {
	e, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return e.system, true
}

// SetEnabled toggles a system without unregistering it.
func (m *Manager) SetEnabled(name string, enabled bool) error {
	e, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSystemNotFound, name)
	}
	e.enabled = enabled
	return nil
}

// OnSystemError registers a callback for failing systems.
func (m *Manager) OnSystemError(fn func(name string, err error)) { m.onError = fn }

// Update runs one tick. A failing system does not stop the ones after it;
// all errors are joined.
func (m *Manager) Update(deltaTime float64) error {
	m.frames++
	var all error
	for _, e := range m.entries {
		if !e.enabled {
			continue
		}
		start := time.Now()
		err := e.system.Update(deltaTime)
		e.metrics.record(time.Since(start), err)
		if err != nil {
			m.logger.Error("system update failed",
				log.String("system", e.system.Name()),
				log.Uint64("frame", m.frames),
				log.Error(err))
			if m.onError != nil {
				m.onError(e.system.Name(), err)
			}
			all = errors.Join(all, fmt.Errorf("%s: %w", e.system.Name(), err))
		}
	}
	return all
}

// ExecutionOrder lists system names in the order Update runs them.
func (m *Manager) ExecutionOrder() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.system.Name())
	}
	return out
}

// GetSystemMetrics returns a copy of a system's metrics.
func (m *Manager) GetSystemMetrics(name string) (Metrics, bool) {
	e, ok := m.byName[name]
	if !ok {
		return Metrics{}, false
	}
	return e.metrics, true
}

// Frames is the number of completed Update calls.
func (m *Manager) Frames() uint64 { return m.frames }

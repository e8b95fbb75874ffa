package orchestrator

import "sync"

// Manager hands out exactly one orchestrator per resume so that every
// mutating operation for a resume funnels through the same busy guard.
type Manager struct {
	deps Deps

	mu    sync.Mutex
	orchs map[uint]*Orchestrator
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, orchs: make(map[uint]*Orchestrator)}
}

// For returns the orchestrator for a resume, creating it on first use.
func (m *Manager) For(resumeID uint) *Orchestrator {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orchs[resumeID]; ok {
		return o
	}
	o := New(resumeID, m.deps)
	m.orchs[resumeID] = o
	return o
}

// Drop forgets the orchestrator for a resume. Used after administrative
// deletion; an in-flight operation keeps its own reference.
func (m *Manager) Drop(resumeID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orchs, resumeID)
}

package directory

import (
	"sync"
)

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

func (l *listeners) add(fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func())
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *listeners) fire() {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.fns))
	for i := 0; i < l.next; i++ {
		if fn, ok := l.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Memory is an in-process directory. It keeps insertion order.
type Memory struct {
	mu        sync.RWMutex
	order     []string
	employees map[string]Employee
	listeners listeners
}

func NewMemory(employees ...Employee) *Memory {
	m := &Memory{employees: make(map[string]Employee)}
	for _, e := range employees {
		m.put(e)
	}
	return m
}

func (m *Memory) Get(id string) (Employee, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	return e, ok
}

func (m *Memory) All() []Employee {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Employee, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.employees[id])
	}
	return out
}

func (m *Memory) Subscribe(fn func()) func() {
	return m.listeners.add(fn)
}

// Put inserts or replaces an employee and notifies subscribers.
func (m *Memory) Put(e Employee) {
	m.mu.Lock()
	m.put(e)
	m.mu.Unlock()
	m.listeners.fire()
}

// Delete removes an employee record and notifies subscribers.
func (m *Memory) Delete(id string) {
	m.mu.Lock()
	if _, ok := m.employees[id]; ok {
		delete(m.employees, id)
		for i, existing := range m.order {
			if existing == id {
				m.order = append(m.order[:i:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()
	m.listeners.fire()
}

// Replace swaps the whole record set and notifies subscribers once.
func (m *Memory) Replace(employees []Employee) {
	m.mu.Lock()
	m.order = nil
	m.employees = make(map[string]Employee, len(employees))
	for _, e := range employees {
		m.put(e)
	}
	m.mu.Unlock()
	m.listeners.fire()
}

func (m *Memory) put(e Employee) {
	if _, ok := m.employees[e.ID]; !ok {
		m.order = append(m.order, e.ID)
	}
	m.employees[e.ID] = e
}

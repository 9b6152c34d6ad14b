// Package keyedmutex provee un RWMutex por clave (ej: id de certificado) que libera la
// entrada del mapa cuando no quedan usuarios.
package keyedmutex

import "sync"

type entry struct {
	mu   sync.RWMutex
	refs int
}

// KeyedRWMutex bloqueo lector/escritor particionado por clave. El valor cero es usable.
type KeyedRWMutex[K comparable] struct {
	mu    sync.Mutex
	table map[K]*entry
}

func (m *KeyedRWMutex[K]) acquire(key K) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.table == nil {
		m.table = make(map[K]*entry)
	}
	e, ok := m.table[key]
	if !ok {
		e = &entry{}
		m.table[key] = e
	}
	e.refs++
	return e
}

func (m *KeyedRWMutex[K]) lookup(key K) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.table[key]
	if !ok {
		panic("keyedmutex: unlock de una clave no bloqueada")
	}
	return e
}

func (m *KeyedRWMutex[K]) release(key K, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.table, key)
	}
}

func (m *KeyedRWMutex[K]) RLock(key K) { m.acquire(key).mu.RLock() }

func (m *KeyedRWMutex[K]) RUnlock(key K) {
	e := m.lookup(key)
	e.mu.RUnlock()
	m.release(key, e)
}

func (m *KeyedRWMutex[K]) Lock(key K) { m.acquire(key).mu.Lock() }

func (m *KeyedRWMutex[K]) Unlock(key K) {
	e := m.lookup(key)
	e.mu.Unlock()
	m.release(key, e)
}

// Len cantidad de claves con usuarios activos.
func (m *KeyedRWMutex[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table)
}

// Package keyring provides the small key-value stores the session core
// persists into. Two tiers exist by convention: a durable tier that
// survives process restarts (the browser's cookie/localStorage analog)
// and a session-scoped tier that does not (the sessionStorage analog).
// Implementations are not safe for concurrent use unless stated;
// session.Keyring serializes all access behind its own mutex.
package keyring

// Store is a minimal string key-value store.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool)

	// Set writes the value for key, overwriting any previous value.
	Set(key, value string)

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(key string)
}

// Memory is an in-process Store. It models session-scoped browser
// storage: contents vanish with the process.
type Memory struct {
	values map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get returns the value for key and whether it was present.
func (m *Memory) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set writes the value for key.
func (m *Memory) Set(key, value string) {
	m.values[key] = value
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	delete(m.values, key)
}

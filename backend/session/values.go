package session

// Values is the per-visitor key-value view the auth flow works against.
type Values interface {
	Get(key string) (any, bool)
	Put(key string, value any)
	Forget(key string)
}

// MemoryValues is a Values backed by a plain map. Used by tests and the CLI.
type MemoryValues map[string]any

func (m MemoryValues) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func (m MemoryValues) Put(key string, value any) {
	m[key] = value
}

func (m MemoryValues) Forget(key string) {
	delete(m, key)
}

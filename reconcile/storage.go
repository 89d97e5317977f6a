package reconcile

// Storage is the client side key value cache, local storage in a browser
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// MapStorage is an in-memory Storage, the server uses it to compute the
// snapshot it returns to the browser
type MapStorage map[string]string

func (m MapStorage) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m MapStorage) Set(key, value string) {
	m[key] = value
}

func (m MapStorage) Remove(key string) {
	delete(m, key)
}

// Snapshot copies the current contents
func (m MapStorage) Snapshot() map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

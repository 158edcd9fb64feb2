// Package record implements the flat record format spoken on the promptline
// wire: a single-line, JSON-like object whose keys and values are always
// double-quoted strings.
//
// The format is deliberately smaller than JSON. Numbers, booleans, null,
// arrays, nested objects and \uXXXX escapes are not supported; a value such
// as {"n_predict":64} is rejected and must be written {"n_predict":"64"}.
// Inside string literals only four escapes are recognized: \t, \n, \\ and \".
package record

// Record is an ordered set of string key/value pairs.
// Setting an existing key replaces its value in place (last write wins)
// and keeps the position of the first occurrence.
type Record struct {
	keys   []string
	values map[string]string
}

// New returns an empty record.
func New() *Record {
	return &Record{values: make(map[string]string)}
}

// FromMap builds a record from m. Keys are inserted in encoding order.
func FromMap(m map[string]string) *Record {
	r := New()
	for _, k := range sortedKeys(m) {
		r.Set(k, m[k])
	}
	return r
}

// Set stores value under key.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Len returns the number of distinct keys.
func (r *Record) Len() int {
	return len(r.keys)
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Each calls fn for every pair in insertion order.
func (r *Record) Each(fn func(key, value string)) {
	for _, k := range r.keys {
		fn(k, r.values[k])
	}
}

// Map returns a copy of the pairs as a map.
func (r *Record) Map() map[string]string {
	out := make(map[string]string, len(r.keys))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Equal reports whether r and other hold the same pairs, ignoring order.
func (r *Record) Equal(other *Record) bool {
	if r.Len() != other.Len() {
		return false
	}
	for k, v := range r.values {
		if ov, ok := other.values[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// String returns the encoded form of r.
func (r *Record) String() string {
	return Encode(r)
}

// Package importmap implements the ambient specifier->URL side channel
// that is propagated alongside typed values across every edge of a weft
// graph (spec §3 ImportMap, §4.B).
package importmap

// Map is an immutable specifier -> URL mapping. The zero Map is empty and
// ready to use. Map values are never mutated in place; all operations
// return a new Map, so a Map can be shared freely between goroutines once
// published (the same discipline the executor relies on for node results).
type Map struct {
	// entries is nil for the zero Map. Never mutated after creation:
	// Register and Merge both copy into a fresh map.
	entries map[string]string
}

// Register returns a copy of m with key bound to url. It takes precedence
// over any existing binding for key (spec §4.B: local takes precedence).
func (m Map) Register(key, url string) Map {
	out := make(map[string]string, len(m.entries)+1)
	for k, v := range m.entries {
		out[k] = v
	}
	out[key] = url
	return Map{entries: out}
}

// Len reports the number of bindings in m.
func (m Map) Len() int {
	return len(m.entries)
}

// Lookup returns the URL bound to key and whether it was present.
func (m Map) Lookup(key string) (string, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// All returns an iter.Seq2 over every binding in m, in unspecified order,
// so callers write `for k, v := range m.All()`. This matches the range-
// over-func shape the rest of this codebase uses for iteration
// (collection.go's Collection.All), rather than a push-iterator taking
// yield directly.
func (m Map) All() func(yield func(key, url string) bool) {
	return func(yield func(key, url string) bool) {
		for k, v := range m.entries {
			if !yield(k, v) {
				return
			}
		}
	}
}

// ToStringMap returns a plain map[string]string copy of m, suitable for
// JSON-serializing into an HTML <head> by the caller (spec §6: "this
// library provides the merged map, not the HTML wrapper").
func (m Map) ToStringMap() map[string]string {
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Merge combines an inherited map (the union of upstream effective maps)
// with a local map (registered directly by a node's own body), with local
// entries taking precedence on key collision. Merge is the "inherited ⊕
// local" operation from spec §4.B.
func Merge(inherited, local Map) Map {
	if local.Len() == 0 {
		return inherited
	}
	if inherited.Len() == 0 {
		return local
	}
	out := make(map[string]string, len(inherited.entries)+len(local.entries))
	for k, v := range inherited.entries {
		out[k] = v
	}
	for k, v := range local.entries {
		out[k] = v
	}
	return Map{entries: out}
}

// MergeAll unions any number of upstream effective maps. Per spec §4.B,
// collision behavior across multiple upstreams for the same key is
// unspecified beyond "deterministic"; this implementation resolves
// collisions by later-in-the-slice-wins, which callers must treat as an
// implementation detail, not a guarantee (same-key-same-value collisions
// are always safe per spec).
func MergeAll(maps []Map) Map {
	switch len(maps) {
	case 0:
		return Map{}
	case 1:
		return maps[0]
	}
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m.entries {
			out[k] = v
		}
	}
	return Map{entries: out}
}

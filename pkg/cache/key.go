package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key kinds used by the client.
const (
	KindChunk = "chunk"
)

// Key identifies a cached object.
type Key struct {
	// Kind groups keys by object type (e.g. "chunk")
	Kind string

	// ID is the object identifier within its kind
	ID string

	// Params distinguish variants of the same object
	Params map[string]string
}

// String generates a deterministic cache key string.
// Format: seer:kind:id:param1=val1:param2=val2
//
// Example:
//
//	seer:chunk:bucket/seg-1/00000000002.dat
func (k Key) String() string {
	parts := []string{"seer"}

	if k.Kind != "" {
		parts = append(parts, k.Kind)
	}

	id := strings.Trim(k.ID, "/")
	if id != "" {
		parts = append(parts, id)
	}

	// Params sorted for determinism
	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
		}
	}

	return strings.Join(parts, ":")
}

// ChunkKey returns the key for a data chunk URL. The query string (the
// URL signature) and the scheme are ignored so that re-signed URLs for the
// same chunk share one entry.
func ChunkKey(rawURL string) Key {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		id := rawURL
		if i := strings.IndexByte(id, '?'); i >= 0 {
			id = id[:i]
		}
		return Key{Kind: KindChunk, ID: id}
	}
	return Key{Kind: KindChunk, ID: u.Host + u.EscapedPath()}
}

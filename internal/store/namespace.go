package store

import "context"

type namespaced struct {
	inner  Store
	prefix string
}

// Namespace scopes every key of s under ns, so several devices can share one
// backend without seeing each other's snapshots.
func Namespace(s Store, ns string) Store {
	return &namespaced{inner: s, prefix: ns + ":"}
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, keys ...string) error {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = n.prefix + k
	}
	return n.inner.Delete(ctx, scoped...)
}

func (n *namespaced) DeletePrefix(ctx context.Context, prefix string) error {
	return n.inner.DeletePrefix(ctx, n.prefix+prefix)
}

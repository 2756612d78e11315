// Package rendezvous implements the cluster partitioner of spec.md §4.9:
// deterministic assignment of trigger IDs to live scheduler nodes by
// highest-random-weight hashing, grounded on
// original_source/src/rendezvous.rs and backed by the same hashing library
// the teacher's go.mod already pulls in transitively.
package rendezvous

import (
	"sort"
	"sync"

	"github.com/dgryski/go-rendezvous"
)

// hash64 is go-rendezvous's required hash signature: a fast non-
// cryptographic 64-bit hash of an item's key.
func hash64(s string) uint64 {
	var h uint64 = 14695981039346656037 // FNV-1a offset basis
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211 // FNV-1a prime
	}
	return h
}

// Client holds the live node set and resolves item ownership. Ties break by
// node-id ordering because go-rendezvous itself resolves the maximum-score
// node deterministically per the library's documented behavior.
type Client struct {
	mu    sync.RWMutex
	nodes []string
	rv    *rendezvous.Rendezvous
}

// New returns a Client seeded with the given node ids.
func New(nodes []string) *Client {
	sorted := append([]string(nil), nodes...)
	sort.Strings(sorted)
	return &Client{
		nodes: sorted,
		rv:    rendezvous.New(sorted, hash64),
	}
}

// Owner returns the node id that owns item under the current membership.
func (c *Client) Owner(item string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rv.Lookup(item)
}

// Owns reports whether me owns item.
func (c *Client) Owns(me, item string) bool {
	return c.Owner(item) == me
}

// Nodes returns a snapshot of the current node set.
func (c *Client) Nodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// SetNodes replaces the live node set, e.g. on a gossip membership change.
func (c *Client) SetNodes(nodes []string) {
	sorted := append([]string(nil), nodes...)
	sort.Strings(sorted)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = sorted
	c.rv = rendezvous.New(sorted, hash64)
}

// OwnedSet returns the subset of items this Client's node (me) owns.
func (c *Client) OwnedSet(me string, items []string) map[string]bool {
	owned := make(map[string]bool, len(items))
	for _, item := range items {
		if c.Owns(me, item) {
			owned[item] = true
		}
	}
	return owned
}

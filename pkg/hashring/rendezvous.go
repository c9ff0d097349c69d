package hashring

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"
)

// Rendezvous places keys with highest-random-weight hashing. Removing a
// node only moves the keys that node owned, the same guarantee HashRing
// gives, without virtual points.
type Rendezvous struct {
	nodes map[uint32]struct{}
	table *rendezvous.Rendezvous
	mu    sync.RWMutex
}

var _ Ring = (*Rendezvous)(nil)

// NewRendezvous creates an empty rendezvous placement.
func NewRendezvous() *Rendezvous {
	return &Rendezvous{nodes: make(map[uint32]struct{})}
}

// rebuild must be called with mu held for writing.
func (r *Rendezvous) rebuild() {
	ids := sortedIDs(r.nodes)
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = strconv.FormatUint(uint64(id), 10)
	}
	r.table = rendezvous.New(names, xxhash.Sum64String)
}

// AddNode adds a node to the placement
func (r *Rendezvous) AddNode(id uint32) error {
	if id == NoNode {
		return ErrInvalidNode
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[id]; exists {
		return ErrNodeExists
	}
	r.nodes[id] = struct{}{}
	r.rebuild()
	return nil
}

// RemoveNode removes a node from the placement
func (r *Rendezvous) RemoveNode(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[id]; !exists {
		return ErrNodeNotFound
	}
	delete(r.nodes, id)
	r.rebuild()
	return nil
}

// GetNode returns the node with the highest weight for key
func (r *Rendezvous) GetNode(key string) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 {
		return NoNode
	}

	id, err := strconv.ParseUint(r.table.Lookup(key), 10, 32)
	if err != nil {
		return NoNode
	}
	return uint32(id)
}

// Nodes returns all node ids, sorted ascending
func (r *Rendezvous) Nodes() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedIDs(r.nodes)
}

// Len returns the number of nodes
func (r *Rendezvous) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

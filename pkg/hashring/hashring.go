package hashring

import (
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultReplicas is the number of virtual points placed per node when
// New is given a non-positive replica count.
const DefaultReplicas = 160

// Hash maps bytes onto the ring's coordinate space.
type Hash func(data []byte) uint32

// Sum32 is the default Hash: the low 32 bits of xxhash64. It has no
// per-process seed, so every client agrees on placement.
func Sum32(data []byte) uint32 {
	return uint32(xxhash.Sum64(data))
}

type point struct {
	hash uint32
	node uint32
}

// HashRing implements a consistent hash ring
type HashRing struct {
	hash     Hash
	replicas int
	nodes    map[uint32]struct{}
	points   []point // sorted by hash, then node id
	mu       sync.RWMutex
}

var _ Ring = (*HashRing)(nil)

// New creates a new consistent hash ring. A nil fn selects Sum32.
func New(replicas int, fn Hash) *HashRing {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	if fn == nil {
		fn = Sum32
	}

	return &HashRing{
		hash:     fn,
		replicas: replicas,
		nodes:    make(map[uint32]struct{}),
	}
}

// virtualKey names the i-th virtual point of a node.
func virtualKey(id uint32, i int) []byte {
	b := strconv.AppendUint(nil, uint64(id), 10)
	b = append(b, '#')
	return strconv.AppendInt(b, int64(i), 10)
}

// AddNode adds a node to the hash ring
func (h *HashRing) AddNode(id uint32) error {
	if id == NoNode {
		return ErrInvalidNode
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.nodes[id]; exists {
		return ErrNodeExists
	}
	h.nodes[id] = struct{}{}

	for i := 0; i < h.replicas; i++ {
		h.points = append(h.points, point{hash: h.hash(virtualKey(id, i)), node: id})
	}

	// Colliding points keep the lower id first so lookups do not depend on
	// insertion order.
	sort.Slice(h.points, func(i, j int) bool {
		if h.points[i].hash != h.points[j].hash {
			return h.points[i].hash < h.points[j].hash
		}
		return h.points[i].node < h.points[j].node
	})

	return nil
}

// RemoveNode removes a node from the hash ring
func (h *HashRing) RemoveNode(id uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.nodes[id]; !exists {
		return ErrNodeNotFound
	}
	delete(h.nodes, id)

	kept := make([]point, 0, len(h.points)-h.replicas)
	for _, p := range h.points {
		if p.node != id {
			kept = append(kept, p)
		}
	}
	h.points = kept

	return nil
}

// GetNode returns the node responsible for the given key
func (h *HashRing) GetNode(key string) uint32 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.points) == 0 {
		return NoNode
	}

	hash := h.hash([]byte(key))

	// Find the first virtual point with hash >= key hash
	idx := sort.Search(len(h.points), func(i int) bool {
		return h.points[i].hash >= hash
	})

	// Past the last point: wrap around to the first one
	if idx == len(h.points) {
		idx = 0
	}

	return h.points[idx].node
}

// Nodes returns all node ids in the hash ring
func (h *HashRing) Nodes() []uint32 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return sortedIDs(h.nodes)
}

// Len returns the number of nodes in the hash ring
func (h *HashRing) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

func sortedIDs(set map[uint32]struct{}) []uint32 {
	ids := make([]uint32, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

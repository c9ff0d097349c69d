package hashring

// NoNode is the sentinel id returned by GetNode when the ring is empty.
// Zero is never a valid node id.
const NoNode uint32 = 0

// Ring defines the interface for a key to node placement strategy
type Ring interface {
	// AddNode adds a new node to the ring. Adding an existing node leaves
	// the ring unchanged and returns ErrNodeExists.
	AddNode(id uint32) error

	// RemoveNode removes a node from the ring
	RemoveNode(id uint32) error

	// GetNode returns the node responsible for the given key, or NoNode
	// if the ring is empty
	GetNode(key string) uint32

	// Nodes returns the ids of all nodes in the ring, sorted ascending
	Nodes() []uint32

	// Len returns the number of nodes in the ring
	Len() int
}

package lite3

import "github.com/fleetcontrolsio/lite3/pkg/hashring"

// Owner returns the node the ring assigns key to. No request is made.
func (r *Router) Owner(key string) (Node, bool) {
	state := r.current()
	id := state.ring.GetNode(key)
	if id == hashring.NoNode {
		return Node{}, false
	}
	node, ok := state.pool.nodes[id]
	return node, ok
}

// Distribute groups keys by the id of the node that owns them under the
// current topology. Keys are returned in input order within each group.
// It returns nil when no node is known.
func (r *Router) Distribute(keys []string) map[uint32][]string {
	state := r.current()
	if state.ring.Len() == 0 {
		return nil
	}

	distribution := make(map[uint32][]string)
	for _, key := range keys {
		id := state.ring.GetNode(key)
		distribution[id] = append(distribution[id], key)
	}

	return distribution
}

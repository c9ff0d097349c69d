package lite3

// TopologyChange describes an installed topology relative to the previous one
type TopologyChange struct {
	// Added; ids present now but not before
	Added []uint32
	// Removed; ids present before but not now
	Removed []uint32
	// Nodes; the full new membership, sorted by id
	Nodes []Node
}

func diffTopology(prev, next []Node) TopologyChange {
	before := make(map[uint32]struct{}, len(prev))
	for _, n := range prev {
		before[n.ID] = struct{}{}
	}

	change := TopologyChange{Nodes: next}
	after := make(map[uint32]struct{}, len(next))
	for _, n := range next {
		after[n.ID] = struct{}{}
		if _, ok := before[n.ID]; !ok {
			change.Added = append(change.Added, n.ID)
		}
	}
	for _, n := range prev {
		if _, ok := after[n.ID]; !ok {
			change.Removed = append(change.Removed, n.ID)
		}
	}

	return change
}

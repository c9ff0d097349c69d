package lite3

import (
	"net"
	"sort"
	"strconv"
)

const (
	defaultPeerHost = "127.0.0.1"
	defaultPeerPort = 8080
)

// Node is one addressable member of the cluster
type Node struct {
	// ID; non-zero identifier, also the node's position key on the ring
	ID uint32
	// Host; the host the node serves HTTP on
	Host string
	// Port; the node's HTTP port
	Port int
}

// Addr returns host:port
func (n Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// Topology is one snapshot of cluster membership
type Topology struct {
	Nodes []Node
}

// normalize drops id 0, keeps the last descriptor for a repeated id and
// sorts by id.
func (t Topology) normalize() Topology {
	byID := make(map[uint32]Node, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.ID == 0 {
			continue
		}
		byID[n.ID] = n
	}

	nodes := make([]Node, 0, len(byID))
	for _, n := range byID {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return Topology{Nodes: nodes}
}

package lite3

import (
	"sync/atomic"

	"github.com/zhangyunhao116/skipmap"
)

// connPool holds the nodes of one topology epoch and their lazily dialed
// connections. The node set is fixed at construction.
type connPool struct {
	nodes   map[uint32]Node
	ordered []Node // sorted by id
	conns   *skipmap.FuncMap[uint32, *Conn]
	dial    func(Node) *Conn
	closed  atomic.Bool
}

func newConnPool(nodes []Node, dial func(Node) *Conn) *connPool {
	p := &connPool{
		nodes:   make(map[uint32]Node, len(nodes)),
		ordered: nodes,
		conns: skipmap.NewFunc[uint32, *Conn](func(a, b uint32) bool {
			return a < b
		}),
		dial: dial,
	}
	for _, n := range nodes {
		p.nodes[n.ID] = n
	}
	return p
}

func (p *connPool) empty() bool {
	return len(p.ordered) == 0
}

// get returns the connection for id, creating it on first use. An id that
// is not in the pool falls back to the lowest id present; ok is false only
// when the pool is empty.
func (p *connPool) get(id uint32) (conn *Conn, node Node, ok bool) {
	node, ok = p.nodes[id]
	if !ok {
		if p.empty() {
			return nil, Node{}, false
		}
		node = p.ordered[0]
	}

	conn, _ = p.conns.LoadOrStoreLazy(node.ID, func() *Conn {
		return p.dial(node)
	})
	// a caller still holding a replaced epoch may dial after close ran
	if p.closed.Load() {
		conn.retire()
	}
	return conn, node, true
}

// close retires every dialed connection. Connections dialed afterwards
// are retired by get.
func (p *connPool) close() {
	p.closed.Store(true)
	p.conns.Range(func(_ uint32, c *Conn) bool {
		c.retire()
		return true
	})
}

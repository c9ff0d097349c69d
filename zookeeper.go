package lite3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/go-zookeeper/zk"
)

// ZKConn is the subset of *zk.Conn used by ZooKeeperTopology
type ZKConn interface {
	Children(path string) ([]string, *zk.Stat, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Close()
}

var _ ZKConn = (*zk.Conn)(nil)

// ZooKeeperTopology reads membership from the children of <root>/nodes.
// Each child is named by node id and may carry a JSON descriptor
// {"host":"10.0.0.1","http_port":9001}; absent fields take the defaults.
type ZooKeeperTopology struct {
	conn     ZKConn
	rootPath string
}

var _ TopologySource = (*ZooKeeperTopology)(nil)

// NewZooKeeperTopology connects to the ensemble, e.g. servers
// ["zk1:2181", "zk2:2181"].
func NewZooKeeperTopology(servers []string, rootPath string, sessionTimeout time.Duration) (*ZooKeeperTopology, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	return NewZooKeeperTopologyWithConn(conn, rootPath), nil
}

func NewZooKeeperTopologyWithConn(conn ZKConn, rootPath string) *ZooKeeperTopology {
	return &ZooKeeperTopology{conn: conn, rootPath: rootPath}
}

func (m *ZooKeeperTopology) nodesPath() string {
	return path.Join(m.rootPath, "nodes")
}

// Fetch lists the registered nodes. zk calls do not take a context, so ctx
// is only checked between reads.
func (m *ZooKeeperTopology) Fetch(ctx context.Context) (Topology, error) {
	children, _, err := m.conn.Children(m.nodesPath())
	if err != nil {
		return Topology{}, fmt.Errorf("zk children: %w", err)
	}
	sort.Strings(children)

	topology := Topology{Nodes: make([]Node, 0, len(children))}
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return Topology{}, err
		}

		id, err := strconv.ParseUint(child, 10, 32)
		if err != nil || id == 0 {
			continue
		}

		data, _, err := m.conn.Get(path.Join(m.nodesPath(), child))
		if errors.Is(err, zk.ErrNoNode) {
			// ephemeral node went away after Children
			continue
		}
		if err != nil {
			return Topology{}, fmt.Errorf("zk get %s: %w", child, err)
		}

		p := defaultPeer()
		if len(data) > 0 {
			if err := json.Unmarshal(data, &p); err != nil {
				return Topology{}, &Error{Kind: KindSerialization, Message: "decode zk node " + child, Err: err}
			}
		}
		p.ID = uint32(id)
		topology.Nodes = append(topology.Nodes, p.node())
	}

	return topology.normalize(), nil
}

func (m *ZooKeeperTopology) Close() error {
	m.conn.Close()
	return nil
}

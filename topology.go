package lite3

import (
	"context"
	"encoding/json"
)

// ClusterMapPath is the endpoint every node serves its view of membership on
const ClusterMapPath = "/cluster/map"

// TopologySource provides snapshots of cluster membership
type TopologySource interface {
	Fetch(ctx context.Context) (Topology, error)
	Close() error
}

// peer is one entry of the topology document
type peer struct {
	ID       uint32 `json:"id"`
	Host     string `json:"host"`
	HTTPPort int    `json:"http_port"`
}

func defaultPeer() peer {
	return peer{Host: defaultPeerHost, HTTPPort: defaultPeerPort}
}

func (p peer) node() Node {
	return Node{ID: p.ID, Host: p.Host, Port: p.HTTPPort}
}

// ParseTopology decodes a /cluster/map document:
//
//	{"peers":[{"id":1,"host":"10.0.0.1","http_port":9001}]}
//
// Missing host and http_port take their defaults; peers with id 0 are
// skipped. A document without a peers array is an empty topology.
func ParseTopology(data []byte) (Topology, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Topology{}, &Error{Kind: KindSerialization, Message: "decode topology", Err: err}
	}

	var entries []json.RawMessage
	raw, ok := doc["peers"]
	if !ok || json.Unmarshal(raw, &entries) != nil {
		return Topology{}, nil
	}

	topology := Topology{Nodes: make([]Node, 0, len(entries))}
	for _, entry := range entries {
		p := defaultPeer()
		if err := json.Unmarshal(entry, &p); err != nil {
			return Topology{}, &Error{Kind: KindSerialization, Message: "decode peer", Err: err}
		}
		if p.ID == 0 {
			continue
		}
		topology.Nodes = append(topology.Nodes, p.node())
	}

	return topology.normalize(), nil
}

// HTTPTopology reads the topology from a seed node's /cluster/map
type HTTPTopology struct {
	seedHost string
	seedPort int
	options  *Options
}

var _ TopologySource = (*HTTPTopology)(nil)

// NewHTTPTopology creates a source backed by the seed at host:port.
// options may be nil.
func NewHTTPTopology(host string, port int, options *Options) *HTTPTopology {
	if options == nil {
		options = NewOptions()
	}
	return &HTTPTopology{seedHost: host, seedPort: port, options: options}
}

// Fetch dials the seed through a throwaway connection
func (s *HTTPTopology) Fetch(ctx context.Context) (Topology, error) {
	seed := newConn(s.seedHost, s.seedPort, s.options, false)
	defer seed.Close()

	body, err := seed.RawGet(ctx, ClusterMapPath)
	if err != nil {
		return Topology{}, err
	}
	return ParseTopology(body)
}

func (s *HTTPTopology) Close() error {
	return nil
}

package lite3

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RedisTopology keeps cluster membership in redis, one hash per node:
//
//	<prefix>:<name>:nodes:<id> -> host, http_port, joined_at
//
// Nodes register themselves; routers read the registry on refresh.
type RedisTopology struct {
	prefix    string
	namespace string
	redis     RedisClient
}

var _ TopologySource = (*RedisTopology)(nil)

func NewRedisTopology(prefix string, namespace string, client RedisClient) *RedisTopology {
	return &RedisTopology{
		prefix:    prefix,
		namespace: namespace,
		redis:     client,
	}
}

// makeKey creates a key for the registry
func (s *RedisTopology) makeKey(parts ...string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, s.namespace, strings.Join(parts, ":"))
}

func (s *RedisTopology) nodeKey(id uint32) string {
	return s.makeKey("nodes", strconv.FormatUint(uint64(id), 10))
}

// Register adds or replaces a node in the registry
func (s *RedisTopology) Register(ctx context.Context, node Node) error {
	if node.ID == 0 {
		return newError(KindBadRequest, "node id 0 is reserved")
	}

	reply := s.redis.HSet(ctx, s.nodeKey(node.ID),
		"host", node.Host,
		"http_port", strconv.Itoa(node.Port),
		"joined_at", strconv.FormatInt(time.Now().Unix(), 10))
	if err := reply.Err(); err != nil {
		return fmt.Errorf("register node %d: %w", node.ID, err)
	}

	return nil
}

// Deregister removes a node from the registry
func (s *RedisTopology) Deregister(ctx context.Context, id uint32) error {
	if err := s.redis.Del(ctx, s.nodeKey(id)).Err(); err != nil {
		return fmt.Errorf("deregister node %d: %w", id, err)
	}
	return nil
}

// Fetch reads every registered node. Entries whose key does not end in a
// non-zero id are ignored; missing fields take the document defaults.
func (s *RedisTopology) Fetch(ctx context.Context) (Topology, error) {
	keys := s.redis.Keys(ctx, s.makeKey("nodes", "*"))
	if err := keys.Err(); err != nil {
		return Topology{}, fmt.Errorf("list nodes: %w", err)
	}

	nodeKeys := keys.Val()
	sort.Strings(nodeKeys)

	prefix := s.makeKey("nodes", "")
	topology := Topology{Nodes: make([]Node, 0, len(nodeKeys))}
	for _, key := range nodeKeys {
		id, err := strconv.ParseUint(strings.TrimPrefix(key, prefix), 10, 32)
		if err != nil || id == 0 {
			continue
		}

		reply := s.redis.HGetAll(ctx, key)
		if err := reply.Err(); err != nil {
			return Topology{}, fmt.Errorf("read node %d: %w", id, err)
		}
		fields := reply.Val()
		if len(fields) == 0 {
			// removed between KEYS and HGETALL
			continue
		}

		node := Node{ID: uint32(id), Host: defaultPeerHost, Port: defaultPeerPort}
		if host, ok := fields["host"]; ok && host != "" {
			node.Host = host
		}
		if raw, ok := fields["http_port"]; ok {
			port, err := strconv.Atoi(raw)
			if err != nil {
				return Topology{}, &Error{Kind: KindSerialization, Message: fmt.Sprintf("node %d http_port", id), Err: err}
			}
			node.Port = port
		}
		topology.Nodes = append(topology.Nodes, node)
	}

	return topology.normalize(), nil
}

// Close closes the redis client
func (s *RedisTopology) Close() error {
	return s.redis.Close()
}

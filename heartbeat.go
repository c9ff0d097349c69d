package lite3

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// ProbeResult is the outcome of probing one node
type ProbeResult struct {
	Node Node
	// Latency; round trip of the probe request
	Latency time.Duration
	// Error; nil when the node answered
	Error error
}

// Healthy reports whether the node answered the probe
func (p ProbeResult) Healthy() bool {
	return p.Error == nil
}

// Probe asks every node in the current topology for its cluster map,
// at most Options concurrency at a time, and reports which ones answered.
// Results are sorted by node id.
func (r *Router) Probe(ctx context.Context) []ProbeResult {
	state := r.current()
	nodes := state.pool.ordered
	results := make([]ProbeResult, len(nodes))

	p := pool.New().WithMaxGoroutines(r.options.concurrency)
	for i, node := range nodes {
		p.Go(func() {
			conn, _, _ := state.pool.get(node.ID)
			results[i] = r.probeNode(ctx, conn, node)
		})
	}
	p.Wait()

	return results
}

func (r *Router) probeNode(ctx context.Context, conn *Conn, node Node) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, r.options.probeTimeout)
	defer cancel()

	started := time.Now()
	_, err := conn.RawGet(ctx, ClusterMapPath)
	result := ProbeResult{Node: node, Latency: time.Since(started), Error: err}
	if err != nil {
		r.logger.Warn("probe failed", "id", node.ID, "addr", node.Addr(), "error", err)
	}
	return result
}

// Result is the outcome of one key in MultiGet
type Result struct {
	Value []byte
	Err   error
}

// MultiGet fetches keys grouped by owning node. Nodes are queried
// concurrently, keys on one node one after another over its connection.
// Empty keys are reported as bad requests. A group that hit a transport
// failure counts once toward the automatic refresh threshold.
func (r *Router) MultiGet(ctx context.Context, keys []string) map[string]Result {
	results := make(map[string]Result, len(keys))
	state := r.current()

	groups := make(map[uint32][]string)
	for _, key := range keys {
		if key == "" {
			results[key] = Result{Err: newError(KindBadRequest, "key cannot be empty")}
			continue
		}
		id := state.ring.GetNode(key)
		groups[id] = append(groups[id], key)
	}

	type keyed struct {
		key string
		res Result
	}
	type groupResult struct {
		keys []keyed
		// failure; the group's last transport error
		failure error
	}
	p := pool.NewWithResults[groupResult]().WithMaxGoroutines(r.options.concurrency)
	for id, group := range groups {
		p.Go(func() groupResult {
			conn, node := r.clientForNode(state, id)
			out := groupResult{keys: make([]keyed, 0, len(group))}
			for _, key := range group {
				if conn == nil {
					out.keys = append(out.keys, keyed{key, Result{Err: errNoNodes}})
					continue
				}
				started := time.Now()
				value, err := conn.Get(ctx, key)
				r.metrics.requestCompleted("get", node, started, err)
				if isTransportKind(KindOf(err)) {
					out.failure = err
				}
				out.keys = append(out.keys, keyed{key, Result{Value: value, Err: err}})
			}
			return out
		})
	}

	for _, group := range p.Wait() {
		for _, k := range group.keys {
			results[k.key] = k.res
		}
		if group.failure != nil {
			r.observe(ctx, group.failure)
		}
	}

	return results
}

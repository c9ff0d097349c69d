package lite3

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/fleetcontrolsio/lite3/pkg/hashring"
)

// Router routes key-value operations to the node that owns each key.
// Connect must be called before use.
type Router struct {
	// seedHost/seedPort; the node first asked for the topology
	seedHost string
	seedPort int
	// options; the validated options the router was built with
	options *Options
	// source; where the topology comes from
	source TopologySource
	logger  *slog.Logger
	metrics *routerMetrics

	// mu guards state. Routing takes the read lock only to copy the
	// pointer; a refresh installs a fully built state under the write lock.
	mu    sync.RWMutex
	state *routerState

	// refresh; coalesces concurrent refreshes into one fetch
	refresh singleflight.Group
	// failures; consecutive transport failures since the last success
	failures atomic.Int64
}

// routerState is one immutable topology epoch
type routerState struct {
	ring hashring.Ring
	pool *connPool
}

// New creates a router for the cluster reachable through the seed node.
// options may be nil.
func New(seedHost string, seedPort int, options *Options) (*Router, error) {
	if options == nil {
		options = NewOptions()
	}
	if seedHost == "" {
		return nil, ErrInvalidSeedHost
	}
	if seedPort <= 0 || seedPort > 65535 {
		return nil, ErrInvalidSeedPort
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	source := options.source
	if source == nil {
		source = NewHTTPTopology(seedHost, seedPort, options)
	}

	r := &Router{
		seedHost: seedHost,
		seedPort: seedPort,
		options:  options,
		source:   source,
		logger:   options.log().With("component", "router"),
		metrics:  newRouterMetrics(options.registerer),
	}
	r.state = r.buildState(Topology{})

	return r, nil
}

func (r *Router) newRing() hashring.Ring {
	if r.options.placement == PlacementRendezvous {
		return hashring.NewRendezvous()
	}
	return hashring.New(r.options.replicas, nil)
}

func (r *Router) buildState(topology Topology) *routerState {
	ring := r.newRing()
	for _, n := range topology.Nodes {
		// duplicates were dropped by normalize; a repeat is a no-op anyway
		_ = ring.AddNode(n.ID)
	}
	return &routerState{
		ring: ring,
		pool: newConnPool(topology.Nodes, func(n Node) *Conn {
			return newConn(n.Host, n.Port, r.options, false)
		}),
	}
}

func (r *Router) current() *routerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Connect fetches the cluster topology and installs it. On failure the
// previous topology stays in place.
func (r *Router) Connect(ctx context.Context) error {
	return r.Refresh(ctx)
}

const refreshKey = "refresh"

// Refresh replaces the ring and connection pool with a freshly fetched
// topology. Concurrent calls share a single fetch. The fetch runs detached
// from ctx, bounded by the refresh timeout; ctx only limits how long this
// caller waits for it.
func (r *Router) Refresh(ctx context.Context) error {
	ch := r.refresh.DoChan(refreshKey, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.options.refreshTimeout)
		defer cancel()
		return nil, r.doRefresh(refreshCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return &Error{Kind: KindNetwork, Message: "topology refresh", Err: ctx.Err()}
	}
}

func (r *Router) doRefresh(ctx context.Context) error {
	topology, err := r.fetchTopology(ctx)
	if err != nil {
		r.metrics.refreshCompleted(0, err)
		r.logger.Warn("topology refresh failed", "seed", r.seedAddr(), "error", err)
		return &Error{Kind: KindNetwork, Message: "topology refresh", Err: err}
	}

	next := r.buildState(topology)

	r.mu.Lock()
	prev := r.state
	r.state = next
	r.mu.Unlock()

	// calls already holding an old connection finish on it
	prev.pool.close()
	r.failures.Store(0)

	change := diffTopology(prev.pool.ordered, next.pool.ordered)
	r.metrics.refreshCompleted(len(topology.Nodes), nil)
	if len(topology.Nodes) == 0 {
		r.logger.Warn("installed empty topology", "seed", r.seedAddr())
	}
	for _, n := range topology.Nodes {
		r.logger.Info("added node", "id", n.ID, "addr", n.Addr())
	}
	r.logger.Info("topology installed", "nodes", len(topology.Nodes), "added", change.Added, "removed", change.Removed)

	if r.options.hook != nil {
		// later Refresh calls, including the hook's own, start a new fetch
		r.refresh.Forget(refreshKey)
		r.options.hook(change)
	}

	return nil
}

// fetchTopology asks the source for the topology, retrying with exponential
// backoff when retries are configured. Undecodable documents are not retried.
func (r *Router) fetchTopology(ctx context.Context) (Topology, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.options.refreshInitialInterval
	policy.MaxElapsedTime = r.options.refreshBackoff

	var topology Topology
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		t, err := r.source.Fetch(ctx)
		if err != nil {
			if KindOf(err) == KindSerialization || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			r.logger.Debug("topology fetch attempt failed", "attempt", attempts, "error", err)
			return err
		}
		topology = t.normalize()
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.options.refreshMaxRetries)), ctx))
	if err != nil {
		return Topology{}, err
	}

	return topology, nil
}

func (r *Router) seedAddr() string {
	return Node{Host: r.seedHost, Port: r.seedPort}.Addr()
}

// ClientForNode returns the pooled connection for id, creating it on first
// use. If id is not part of the current topology, for instance because a
// refresh just replaced it, the connection of the lowest-id node is
// returned instead: placement is best-effort while membership changes.
// It returns nil when no node is known.
func (r *Router) ClientForNode(id uint32) *Conn {
	conn, _ := r.clientForNode(r.current(), id)
	return conn
}

func (r *Router) clientForNode(state *routerState, id uint32) (*Conn, uint32) {
	conn, node, ok := state.pool.get(id)
	if !ok {
		return nil, hashring.NoNode
	}
	if node.ID != id {
		r.metrics.routingFallbacks.Inc()
		r.logger.Debug("owner missing from pool, using fallback node", "owner", id, "fallback", node.ID)
	}
	return conn, node.ID
}

func (r *Router) clientForKey(key string) (*Conn, uint32) {
	state := r.current()
	return r.clientForNode(state, state.ring.GetNode(key))
}

var errNoNodes = newError(KindNetwork, "no nodes available")

// route runs fn against the connection owning key and records the outcome
func (r *Router) route(ctx context.Context, op, key string, fn func(*Conn) error) error {
	started := time.Now()

	conn, id := r.clientForKey(key)
	if conn == nil {
		r.metrics.requestCompleted(op, hashring.NoNode, started, errNoNodes)
		return errNoNodes
	}

	err := fn(conn)
	r.metrics.requestCompleted(op, id, started, err)
	r.observe(ctx, err)
	return err
}

// observe counts consecutive transport failures and refreshes the topology
// once the configured threshold is reached.
func (r *Router) observe(ctx context.Context, err error) {
	threshold := int64(r.options.refreshAfterFailures)
	if threshold == 0 {
		return
	}
	if !isTransportKind(KindOf(err)) {
		r.failures.Store(0)
		return
	}
	if r.failures.Add(1) < threshold {
		return
	}

	r.logger.Info("refreshing topology after repeated failures", "failures", threshold)
	// the failed request's context may already be done
	if rerr := r.Refresh(context.WithoutCancel(ctx)); rerr != nil && !errors.Is(rerr, context.Canceled) {
		r.logger.Warn("automatic topology refresh failed", "error", rerr)
	}
}

// Put stores value under key on the owning node
func (r *Router) Put(ctx context.Context, key string, value []byte) error {
	return r.route(ctx, "put", key, func(c *Conn) error {
		return c.Put(ctx, key, value)
	})
}

// Get returns the value of key from the owning node
func (r *Router) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.route(ctx, "get", key, func(c *Conn) error {
		var err error
		value, err = c.Get(ctx, key)
		return err
	})
	return value, err
}

// Delete removes key from the owning node. A missing key is not an error.
func (r *Router) Delete(ctx context.Context, key string) error {
	return r.route(ctx, "delete", key, func(c *Conn) error {
		return c.Delete(ctx, key)
	})
}

// PatchInt sets an integer field of the document under key
func (r *Router) PatchInt(ctx context.Context, key, field string, val int64) error {
	return r.route(ctx, "patch_int", key, func(c *Conn) error {
		return c.PatchInt(ctx, key, field, val)
	})
}

// PatchStr sets a string field of the document under key
func (r *Router) PatchStr(ctx context.Context, key, field, val string) error {
	return r.route(ctx, "patch_str", key, func(c *Conn) error {
		return c.PatchStr(ctx, key, field, val)
	})
}

// Nodes returns the current topology sorted by id
func (r *Router) Nodes() []Node {
	ordered := r.current().pool.ordered
	nodes := make([]Node, len(ordered))
	copy(nodes, ordered)
	return nodes
}

// Close drops every pooled connection and closes the topology source
func (r *Router) Close() error {
	r.mu.Lock()
	state := r.state
	r.state = r.buildState(Topology{})
	r.mu.Unlock()

	state.pool.close()
	return r.source.Close()
}

var _ KV = (*Router)(nil)

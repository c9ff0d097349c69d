package lite3

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Placement selects the key to node placement strategy.
type Placement string

const (
	// PlacementRing is consistent hashing with virtual points.
	PlacementRing Placement = "ring"
	// PlacementRendezvous is highest-random-weight hashing.
	PlacementRendezvous Placement = "rendezvous"
)

type Options struct {
	// Per-request timeout on node connections, 0 disables it
	timeout time.Duration
	// Virtual points per node on the hash ring
	replicas int
	placement Placement
	// Extra attempts when fetching the topology fails
	refreshMaxRetries int
	// First wait between topology fetch attempts
	refreshInitialInterval time.Duration
	// Upper bound on the total time spent retrying a topology fetch
	refreshBackoff time.Duration
	// Upper bound on one refresh, independent of the callers waiting on it
	refreshTimeout time.Duration
	// Consecutive transport failures that trigger a topology refresh, 0 disables
	refreshAfterFailures int
	// Upper bound on concurrent node calls in MultiGet and Probe
	concurrency  int
	probeTimeout time.Duration
	// When set, shared by every node connection instead of a private transport
	httpClient *http.Client
	logger     *slog.Logger
	registerer prometheus.Registerer
	// Where the router reads cluster membership from; nil means the seed's /cluster/map
	source TopologySource
	hook   func(TopologyChange)
}

func NewOptions() *Options {
	return &Options{
		timeout:                5 * time.Second,
		replicas:               160,
		placement:              PlacementRing,
		refreshMaxRetries:      0,
		refreshInitialInterval: 100 * time.Millisecond,
		refreshBackoff:         10 * time.Second,
		refreshTimeout:         30 * time.Second,
		refreshAfterFailures:   0,
		concurrency:            4,
		probeTimeout:           2 * time.Second,
	}
}

func (o *Options) WithTimeout(timeout time.Duration) *Options {
	o.timeout = timeout
	return o
}

func (o *Options) WithReplicas(replicas int) *Options {
	o.replicas = replicas
	return o
}

func (o *Options) WithPlacement(placement Placement) *Options {
	o.placement = placement
	return o
}

func (o *Options) WithRefreshMaxRetries(retries int) *Options {
	o.refreshMaxRetries = retries
	return o
}

func (o *Options) WithRefreshInitialInterval(interval time.Duration) *Options {
	o.refreshInitialInterval = interval
	return o
}

func (o *Options) WithRefreshBackoff(limit time.Duration) *Options {
	o.refreshBackoff = limit
	return o
}

// WithRefreshTimeout bounds a refresh. The refresh keeps running when the
// caller that started it gives up, so it needs its own deadline.
func (o *Options) WithRefreshTimeout(timeout time.Duration) *Options {
	o.refreshTimeout = timeout
	return o
}

func (o *Options) WithRefreshAfterFailures(failures int) *Options {
	o.refreshAfterFailures = failures
	return o
}

func (o *Options) WithConcurrency(concurrency int) *Options {
	o.concurrency = concurrency
	return o
}

func (o *Options) WithProbeTimeout(timeout time.Duration) *Options {
	o.probeTimeout = timeout
	return o
}

func (o *Options) WithHTTPClient(client *http.Client) *Options {
	o.httpClient = client
	return o
}

func (o *Options) WithLogger(logger *slog.Logger) *Options {
	o.logger = logger
	return o
}

// WithMetrics registers the router's collectors on reg.
func (o *Options) WithMetrics(reg prometheus.Registerer) *Options {
	o.registerer = reg
	return o
}

func (o *Options) WithTopologySource(source TopologySource) *Options {
	o.source = source
	return o
}

// WithTopologyHook sets a function called after every installed topology.
// It runs on the refresh goroutine once the refresh has been released, so
// it may call Refresh itself; callers waiting on that refresh return after
// the hook does.
func (o *Options) WithTopologyHook(hook func(TopologyChange)) *Options {
	o.hook = hook
	return o
}

func (o *Options) log() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger
}

func (o *Options) Validate() error {
	if o.timeout < 0 {
		return ErrInvalidTimeout
	}

	if o.placement != PlacementRing && o.placement != PlacementRendezvous {
		return ErrInvalidPlacement
	}

	if o.refreshMaxRetries < 0 {
		return ErrInvalidRefreshMaxRetries
	}

	if o.refreshInitialInterval <= 0 || o.refreshBackoff <= 0 {
		return ErrInvalidRefreshBackoff
	}

	if o.refreshTimeout <= 0 {
		return ErrInvalidRefreshTimeout
	}

	if o.refreshAfterFailures < 0 {
		return ErrInvalidRefreshAfterFailures
	}

	if o.concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if o.probeTimeout <= 0 {
		return ErrInvalidProbeTimeout
	}

	return nil
}

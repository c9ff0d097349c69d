package lite3

import (
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetcontrolsio/lite3/internal/kvtest"
)

func testOptions() *Options {
	return NewOptions().
		WithTimeout(2 * time.Second).
		WithRefreshInitialInterval(time.Millisecond).
		WithLogger(slog.New(slog.DiscardHandler))
}

// closedPort returns a local port nothing listens on
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return p
}

func connTo(n *kvtest.Node, options *Options) *Conn {
	return NewConn(n.Host(), n.Port(), options)
}

// newConnectedRouter seeds a router from node and connects it
func newConnectedRouter(t *testing.T, seed *kvtest.Node, options *Options) *Router {
	t.Helper()
	r, err := New(seed.Host(), seed.Port(), options)
	require.NoError(t, err)
	require.NoError(t, r.Connect(t.Context()))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// keyOwnedBy finds a key the router places on id
func keyOwnedBy(t *testing.T, r *Router, id uint32) string {
	t.Helper()
	for i := 0; i < 10_000; i++ {
		k := "key-" + strconv.Itoa(i)
		if n, ok := r.Owner(k); ok && n.ID == id {
			return k
		}
	}
	t.Fatalf("no key owned by node %d", id)
	return ""
}

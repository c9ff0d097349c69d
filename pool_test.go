package lite3

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcontrolsio/lite3/internal/kvtest"
)

func newTestPool(nodes ...*kvtest.Node) *connPool {
	members := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		members = append(members, Node{ID: n.ID, Host: n.Host(), Port: n.Port()})
	}
	options := testOptions()
	return newConnPool(members, func(n Node) *Conn {
		return newConn(n.Host, n.Port, options, false)
	})
}

func TestConnPool_ReusesConnections(t *testing.T) {
	node := kvtest.NewNode(t, 1)
	p := newTestPool(node)

	first, n, ok := p.get(1)
	require.True(t, ok)
	assert.Equal(t, uint32(1), n.ID)
	second, _, _ := p.get(1)
	assert.Same(t, first, second)

	require.NoError(t, first.Put(t.Context(), "a", []byte("1")))
	require.NoError(t, first.Put(t.Context(), "b", []byte("2")))
	assert.Equal(t, 1, node.OpenConns())
}

func TestConnPool_CloseDropsConnections(t *testing.T) {
	node := kvtest.NewNode(t, 1)
	p := newTestPool(node)

	conn, _, _ := p.get(1)
	require.NoError(t, conn.Put(t.Context(), "a", []byte("1")))
	require.Equal(t, 1, node.OpenConns())

	p.close()
	assert.Eventually(t, func() bool { return node.OpenConns() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestConnPool_GetAfterCloseDoesNotLeak(t *testing.T) {
	node := kvtest.NewNode(t, 1)
	p := newTestPool(node)
	p.close()

	// a caller holding the replaced epoch still gets a working connection
	conn, _, ok := p.get(1)
	require.True(t, ok)
	assert.True(t, conn.retired.Load())
	require.NoError(t, conn.Put(t.Context(), "a", []byte("1")))

	assert.Eventually(t, func() bool { return node.OpenConns() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestConnPool_Empty(t *testing.T) {
	p := newTestPool()
	conn, _, ok := p.get(1)
	assert.False(t, ok)
	assert.Nil(t, conn)
}

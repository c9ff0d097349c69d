package hashring

import (
	"fmt"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRing(t *testing.T, n, replicas int) *HashRing {
	t.Helper()
	r := New(replicas, nil)
	for i := 1; i <= n; i++ {
		require.NoError(t, r.AddNode(uint32(i)))
	}
	return r
}

func TestHashRing_InjectedHash(t *testing.T) {
	// Virtual keys look like "<id>#<i>"; hash them to id*10+i so point
	// positions are easy to reason about. Keys are plain numbers.
	ring := New(3, func(data []byte) uint32 {
		s := string(data)
		var id, i int
		if _, err := fmt.Sscanf(s, "%d#%d", &id, &i); err == nil {
			return uint32(id*10 + i)
		}
		n, _ := strconv.Atoi(s)
		return uint32(n)
	})

	// points: 20,21,22 40,41,42 60,61,62
	for _, id := range []uint32{6, 4, 2} {
		require.NoError(t, ring.AddNode(id))
	}

	cases := map[string]uint32{
		"20": 2,
		"23": 4,
		"42": 4,
		"43": 6,
		"63": 2, // wraps
	}
	for key, want := range cases {
		assert.Equal(t, want, ring.GetNode(key), "key %s", key)
	}

	// points 80,81,82 now catch what used to wrap
	require.NoError(t, ring.AddNode(8))
	cases["63"] = 8
	for key, want := range cases {
		assert.Equal(t, want, ring.GetNode(key), "key %s", key)
	}
}

func TestHashRing_EmptyReturnsNoNode(t *testing.T) {
	r := New(0, nil)
	assert.Equal(t, NoNode, r.GetNode("anything"))
	assert.Equal(t, NoNode, r.GetNode(""))
	assert.Equal(t, 0, r.Len())
}

func TestHashRing_NeverNoNodeWhenPopulated(t *testing.T) {
	r := makeRing(t, 1, 8)
	for i := 0; i < 1000; i++ {
		assert.Equal(t, uint32(1), r.GetNode(fmt.Sprintf("k-%d", i)))
	}

	r = makeRing(t, 5, 32)
	for i := 0; i < 5000; i++ {
		require.NotEqual(t, NoNode, r.GetNode(fmt.Sprintf("k-%d", i)))
	}
}

func TestHashRing_AddIsIdempotent(t *testing.T) {
	r := makeRing(t, 3, 64)
	before := make([]uint32, 2000)
	for i := range before {
		before[i] = r.GetNode(fmt.Sprintf("key-%d", i))
	}

	assert.ErrorIs(t, r.AddNode(2), ErrNodeExists)
	assert.Equal(t, 3, r.Len())

	for i := range before {
		require.Equal(t, before[i], r.GetNode(fmt.Sprintf("key-%d", i)))
	}
}

func TestHashRing_RejectsZeroID(t *testing.T) {
	r := New(4, nil)
	assert.ErrorIs(t, r.AddNode(NoNode), ErrInvalidNode)
	assert.Equal(t, 0, r.Len())
}

func TestHashRing_DistributionUniformity(t *testing.T) {
	n := 3
	r := makeRing(t, n, DefaultReplicas)
	total := 60_000

	counts := map[uint32]int{}
	for i := 0; i < total; i++ {
		counts[r.GetNode(fmt.Sprintf("key-%d", i))]++
	}
	require.Len(t, counts, n)

	ideal := float64(total) / float64(n)
	tolerance := 0.25 * ideal
	for node, c := range counts {
		diff := math.Abs(float64(c) - ideal)
		assert.LessOrEqual(t, diff, tolerance, "node %d count=%d ideal=%.0f", node, c, ideal)
	}
}

func TestHashRing_MinimalMovementOnAdd(t *testing.T) {
	total := 100_000
	r := makeRing(t, 3, DefaultReplicas)

	before := make([]uint32, total)
	for i := 0; i < total; i++ {
		before[i] = r.GetNode(fmt.Sprintf("k-%d", i))
	}

	require.NoError(t, r.AddNode(4))

	moved := 0
	for i := 0; i < total; i++ {
		now := r.GetNode(fmt.Sprintf("k-%d", i))
		if now != before[i] {
			// keys only ever move to the new node
			require.Equal(t, uint32(4), now)
			moved++
		}
	}
	frac := float64(moved) / float64(total)
	assert.InDelta(t, 0.25, frac, 0.08)
}

func TestHashRing_Deterministic(t *testing.T) {
	a := makeRing(t, 3, 128)
	b := New(128, nil)
	// different insertion order, same membership
	for _, id := range []uint32{3, 1, 2} {
		require.NoError(t, b.AddNode(id))
	}

	for i := 0; i < 10_000; i++ {
		k := fmt.Sprintf("id-%d", i)
		require.Equal(t, a.GetNode(k), b.GetNode(k), "key %s", k)
		require.Equal(t, a.GetNode(k), a.GetNode(k))
	}
}

func TestHashRing_RemoveNode(t *testing.T) {
	r := makeRing(t, 3, 128)
	owner := r.GetNode("foo")
	require.NotEqual(t, NoNode, owner)

	keys := make(map[string]uint32)
	for i := 0; i < 5000; i++ {
		k := fmt.Sprintf("k-%d", i)
		keys[k] = r.GetNode(k)
	}

	require.NoError(t, r.RemoveNode(owner))
	assert.ErrorIs(t, r.RemoveNode(owner), ErrNodeNotFound)
	assert.NotEqual(t, owner, r.GetNode("foo"))
	assert.NotContains(t, r.Nodes(), owner)

	// keys owned by surviving nodes stay put
	for k, was := range keys {
		if was != owner {
			require.Equal(t, was, r.GetNode(k), "key %s", k)
		}
	}
}

func TestHashRing_Nodes(t *testing.T) {
	r := New(4, nil)
	for _, id := range []uint32{9, 2, 5} {
		require.NoError(t, r.AddNode(id))
	}
	assert.Equal(t, []uint32{2, 5, 9}, r.Nodes())
}

func TestSum32_Stable(t *testing.T) {
	// Placement is shared between processes, so the hash must never drift.
	assert.Equal(t, Sum32([]byte("user:1")), Sum32([]byte("user:1")))
	assert.NotEqual(t, Sum32([]byte("user:1")), Sum32([]byte("user:2")))
}

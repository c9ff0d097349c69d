// Package kvtest runs in-process key-value nodes that speak the cluster
// wire protocol, for tests.
package kvtest

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Peer is one entry of the /cluster/map document
type Peer struct {
	ID       uint32 `json:"id"`
	Host     string `json:"host,omitempty"`
	HTTPPort int    `json:"http_port,omitempty"`
}

// Request is a request a Node received
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Body     []byte
}

// Node is a fake key-value node backed by a map
type Node struct {
	ID     uint32
	Server *httptest.Server

	mu       sync.Mutex
	data     map[string][]byte
	requests []Request
	peers    []Peer
	mapBody  []byte
	override http.HandlerFunc
	conns    map[net.Conn]http.ConnState
}

// NewNode starts a node and stops it when the test ends
func NewNode(t testing.TB, id uint32) *Node {
	t.Helper()

	n := &Node{ID: id, data: make(map[string][]byte), conns: make(map[net.Conn]http.ConnState)}
	n.Server = httptest.NewUnstartedServer(n.routes())
	n.Server.Config.ConnState = n.trackConn
	n.Server.Start()
	t.Cleanup(n.Server.Close)
	return n
}

func (n *Node) trackConn(c net.Conn, state http.ConnState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if state == http.StateClosed || state == http.StateHijacked {
		delete(n.conns, c)
		return
	}
	n.conns[c] = state
}

// OpenConns returns the number of client connections the node holds open
func (n *Node) OpenConns() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.conns)
}

func (n *Node) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(n.record)

	r.Get("/cluster/map", n.handleClusterMap)
	r.Get("/kv/*", n.handleGet)
	r.Put("/kv/*", n.handlePut)
	r.Delete("/kv/*", n.handleDelete)
	r.Post("/kv/*", n.handlePatch)

	return r
}

// record logs the request and hands it to the override when one is set
func (n *Node) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()

		n.mu.Lock()
		n.requests = append(n.requests, Request{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Body:     body,
		})
		override := n.override
		n.mu.Unlock()

		r.Body = io.NopCloser(bytes.NewReader(body))
		if override != nil {
			override(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Host returns the host the node listens on
func (n *Node) Host() string {
	host, _, _ := net.SplitHostPort(n.Server.Listener.Addr().String())
	return host
}

// Port returns the port the node listens on
func (n *Node) Port() int {
	_, port, _ := net.SplitHostPort(n.Server.Listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

// Peer describes this node for a cluster map
func (n *Node) Peer() Peer {
	return Peer{ID: n.ID, Host: n.Host(), HTTPPort: n.Port()}
}

// SetPeers sets the peers served on /cluster/map
func (n *Node) SetPeers(peers ...Peer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers = peers
	n.mapBody = nil
}

// SetClusterMap serves body verbatim on /cluster/map
func (n *Node) SetClusterMap(body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mapBody = []byte(body)
}

// Override replaces all routing with h; nil restores the normal handlers.
// Requests are still recorded.
func (n *Node) Override(h http.HandlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.override = h
}

// Requests returns a copy of the recorded requests
func (n *Node) Requests() []Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Request, len(n.requests))
	copy(out, n.requests)
	return out
}

// KVRequests returns the recorded requests under /kv/
func (n *Node) KVRequests() []Request {
	var out []Request
	for _, r := range n.Requests() {
		if strings.HasPrefix(r.Path, "/kv/") {
			out = append(out, r)
		}
	}
	return out
}

// Value returns the stored value of key
func (n *Node) Value(key string) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.data[key]
	return v, ok
}

// Len returns the number of stored keys
func (n *Node) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.data)
}

func (n *Node) handleClusterMap(w http.ResponseWriter, _ *http.Request) {
	n.mu.Lock()
	body := n.mapBody
	peers := n.peers
	n.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if body != nil {
		_, _ = w.Write(body)
		return
	}
	if peers == nil {
		peers = []Peer{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"peers": peers})
}

func key(r *http.Request) string {
	return chi.URLParam(r, "*")
}

func (n *Node) handleGet(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	v, ok := n.data[key(r)]
	n.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(v)
}

func (n *Node) handlePut(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.data[key(r)] = body
	n.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (n *Node) handleDelete(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	_, ok := n.data[key(r)]
	delete(n.data, key(r))
	n.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handlePatch sets one field of the JSON object stored under the key,
// creating the object when the key is absent.
func (n *Node) handlePatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field := q.Get("field")
	if field == "" {
		http.Error(w, "missing field", http.StatusBadRequest)
		return
	}

	var val any
	switch q.Get("op") {
	case "set_int":
		i, err := strconv.ParseInt(q.Get("val"), 10, 64)
		if err != nil {
			http.Error(w, "bad int", http.StatusBadRequest)
			return
		}
		val = i
	case "set_str":
		val = q.Get("val")
	default:
		http.Error(w, "unknown op", http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	doc := map[string]any{}
	if raw, ok := n.data[key(r)]; ok {
		if err := json.Unmarshal(raw, &doc); err != nil {
			http.Error(w, "value is not an object", http.StatusConflict)
			return
		}
	}
	doc[field] = val
	raw, _ := json.Marshal(doc)
	n.data[key(r)] = raw
	w.WriteHeader(http.StatusOK)
}

// Cluster is a set of nodes that all serve the same cluster map
type Cluster struct {
	Nodes []*Node
}

// NewCluster starts size nodes with ids 1..size
func NewCluster(t testing.TB, size int) *Cluster {
	t.Helper()

	c := &Cluster{}
	peers := make([]Peer, 0, size)
	for i := 1; i <= size; i++ {
		n := NewNode(t, uint32(i))
		c.Nodes = append(c.Nodes, n)
		peers = append(peers, n.Peer())
	}
	for _, n := range c.Nodes {
		n.SetPeers(peers...)
	}
	return c
}

// Seed returns the first node
func (c *Cluster) Seed() *Node {
	return c.Nodes[0]
}

// Node returns the node with the given id, or nil
func (c *Cluster) Node(id uint32) *Node {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

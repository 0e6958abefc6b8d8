package core

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// DefaultNodeCapacity is the per-node concurrent task limit used when none is configured.
const DefaultNodeCapacity = 10

// Node is one execution node. Its ID is generated when the process starts and
// is what gets written into the ownerId of the tasks it is given.
type Node struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Registry is the fixed, ordered set of execution nodes.
type Registry struct {
	nodes []Node
}

// NewRegistry creates one node per base address, keeping the given order.
func NewRegistry(addresses []string) (*Registry, error) {
	if len(addresses) == 0 {
		return nil, ErrValidation(CodeNoNodes, "at least one execution node address is required")
	}

	nodes := make([]Node, 0, len(addresses))
	for _, addr := range addresses {
		u, err := url.Parse(addr)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, ErrValidation(CodeInvalidNode, fmt.Sprintf("invalid node address %q", addr))
		}
		nodes = append(nodes, Node{
			ID:      uuid.NewString(),
			Address: addr,
		})
	}
	return &Registry{nodes: nodes}, nil
}

// Nodes returns a copy of the registered nodes in registration order.
func (r *Registry) Nodes() []Node {
	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	return len(r.nodes)
}

// Lookup finds a node by ID.
func (r *Registry) Lookup(id string) (Node, bool) {
	for _, n := range r.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// OwnershipMap counts the tasks attributed to each node during one cycle.
type OwnershipMap map[string]int

// Assign records one more task owned by id.
func (m OwnershipMap) Assign(id string) {
	m[id]++
}

// Remaining returns how many more tasks the node may take.
func (m OwnershipMap) Remaining(id string, capacity int) int {
	return capacity - m[id]
}

// Clone returns an independent copy of the map.
func (m OwnershipMap) Clone() OwnershipMap {
	out := make(OwnershipMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SelectNode picks the node with the most remaining capacity. Ties go to the
// node registered first. It returns false when no node has capacity left.
func SelectNode(nodes []Node, capacity int, owners OwnershipMap) (Node, bool) {
	best := -1
	bestRemaining := 0
	for i, n := range nodes {
		remaining := owners.Remaining(n.ID, capacity)
		if remaining > bestRemaining {
			best = i
			bestRemaining = remaining
		}
	}
	if best < 0 {
		return Node{}, false
	}
	return nodes[best], true
}

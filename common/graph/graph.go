package graph

import (
	"fmt"
	"strings"

	"github.com/lyzr/agentflow/common/models"
)

// Graph is the runtime view of a workflow snapshot: nodes keyed by id
// plus the labeled edges between them. The engine never holds an
// in-memory object graph spanning nodes; all traversal goes through
// node id lookups here.
type Graph struct {
	Nodes map[string]*models.Node
	Edges []models.Edge
}

// New builds a Graph from node and edge slices
func New(nodes []*models.Node, edges []models.Edge) *Graph {
	g := &Graph{
		Nodes: make(map[string]*models.Node, len(nodes)),
		Edges: edges,
	}
	for _, n := range nodes {
		g.Nodes[n.ID] = n
	}
	return g
}

// Node returns the node with the given id, or nil
func (g *Graph) Node(id string) *models.Node {
	return g.Nodes[id]
}

// StartNode returns the unique start node of the graph
func (g *Graph) StartNode() (*models.Node, error) {
	var start *models.Node
	for _, n := range g.Nodes {
		if n.Type == models.NodeStart {
			if start != nil {
				return nil, fmt.Errorf("workflow has more than one start node")
			}
			start = n
		}
	}
	if start == nil {
		return nil, fmt.Errorf("workflow has no start node")
	}
	return start, nil
}

// NextNodes returns the ids of nodes reachable from nodeID over one
// edge. With an empty outcome every outgoing edge is followed; with an
// outcome only edges whose source_handle matches (case-insensitively)
// are followed. Duplicate targets are removed preserving edge order.
func (g *Graph) NextNodes(nodeID, outcome string) []string {
	norm := strings.ToLower(strings.TrimSpace(outcome))

	var next []string
	seen := make(map[string]bool)
	for _, e := range g.Edges {
		if e.Source != nodeID {
			continue
		}
		handle := strings.ToLower(strings.TrimSpace(e.SourceHandle))
		if norm != "" && handle != norm {
			continue
		}
		if !seen[e.Target] {
			seen[e.Target] = true
			next = append(next, e.Target)
		}
	}
	return next
}

// outgoing returns adjacency lists ignoring handles
func (g *Graph) outgoing() map[string][]string {
	adj := make(map[string][]string, len(g.Nodes))
	for id := range g.Nodes {
		adj[id] = nil
	}
	for _, e := range g.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	return adj
}

// HasCycle reports whether the graph contains a directed cycle
func (g *Graph) HasCycle() bool {
	adj := g.outgoing()

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(g.Nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = inStack
		for _, next := range adj[id] {
			switch state[next] {
			case inStack:
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}

	for id := range g.Nodes {
		if state[id] == unvisited && visit(id) {
			return true
		}
	}
	return false
}

package graph

import (
	"fmt"

	"github.com/lyzr/agentflow/common/models"
)

// MaxVirtualNodes caps the size of an LLM-generated virtual workflow
const MaxVirtualNodes = 20

// Validate checks a workflow graph against the save-time rules:
// exactly one start node, at least one end node, no cycles, no
// unreachable nodes, no edges referencing missing nodes. An if_else
// node missing one of its "true"/"false" branches is a warning, not an
// error; the missing branch is simply a terminal path at runtime.
func (g *Graph) Validate() (warnings []string, err error) {
	if len(g.Nodes) == 0 {
		return nil, fmt.Errorf("workflow has no nodes")
	}

	start, err := g.StartNode()
	if err != nil {
		return nil, err
	}

	ends := 0
	for _, n := range g.Nodes {
		if n.Type == models.NodeEnd {
			ends++
		}
	}
	if ends == 0 {
		return nil, fmt.Errorf("workflow has no end node")
	}

	for _, e := range g.Edges {
		if g.Nodes[e.Source] == nil {
			return nil, fmt.Errorf("edge %s references missing source node %s", e.ID, e.Source)
		}
		if g.Nodes[e.Target] == nil {
			return nil, fmt.Errorf("edge %s references missing target node %s", e.ID, e.Target)
		}
	}

	if g.HasCycle() {
		return nil, fmt.Errorf("workflow contains a cycle")
	}

	// Reachability from the start node
	reached := map[string]bool{start.ID: true}
	frontier := []string{start.ID}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, next := range g.NextNodes(id, "") {
			if !reached[next] {
				reached[next] = true
				frontier = append(frontier, next)
			}
		}
	}
	for id := range g.Nodes {
		if !reached[id] {
			return nil, fmt.Errorf("node %s is unreachable from the start node", id)
		}
	}

	for _, n := range g.Nodes {
		switch n.Type {
		case models.NodeStart:
			if len(g.NextNodes(n.ID, "")) != 1 {
				return nil, fmt.Errorf("start node %s must have exactly one outgoing edge", n.ID)
			}
		case models.NodeIfElse:
			if len(g.NextNodes(n.ID, "true")) == 0 {
				warnings = append(warnings, fmt.Sprintf("if_else node %s has no \"true\" branch; that outcome terminates the path", n.ID))
			}
			if len(g.NextNodes(n.ID, "false")) == 0 {
				warnings = append(warnings, fmt.Sprintf("if_else node %s has no \"false\" branch; that outcome terminates the path", n.ID))
			}
		}
	}

	return warnings, nil
}

// ValidateVirtual checks an LLM-generated virtual workflow before the
// cognitive handler executes it inline: bounded size, no nested
// cognitive nodes, acyclic, exactly one start and at least one end.
func (g *Graph) ValidateVirtual() error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("virtual workflow has no nodes")
	}
	if len(g.Nodes) > MaxVirtualNodes {
		return fmt.Errorf("virtual workflow has %d nodes (max %d)", len(g.Nodes), MaxVirtualNodes)
	}

	ends := 0
	for _, n := range g.Nodes {
		switch n.Type {
		case models.NodeCognitive:
			return fmt.Errorf("virtual workflow may not contain a cognitive node")
		case models.NodeEnd:
			ends++
		}
	}

	if _, err := g.StartNode(); err != nil {
		return fmt.Errorf("virtual workflow: %w", err)
	}
	if ends == 0 {
		return fmt.Errorf("virtual workflow has no end node")
	}

	for _, e := range g.Edges {
		if g.Nodes[e.Source] == nil {
			return fmt.Errorf("virtual edge references missing source node %s", e.Source)
		}
		if g.Nodes[e.Target] == nil {
			return fmt.Errorf("virtual edge references missing target node %s", e.Target)
		}
	}

	if g.HasCycle() {
		return fmt.Errorf("virtual workflow contains a cycle")
	}

	return nil
}

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/agentflow/common/models"
)

func buildGraph(nodes []*models.Node, edges []models.Edge) *Graph {
	return New(nodes, edges)
}

func node(id string, t models.NodeType) *models.Node {
	return &models.Node{ID: id, Type: t}
}

func edge(id, source, target, handle string) models.Edge {
	return models.Edge{ID: id, Source: source, Target: target, SourceHandle: handle}
}

func TestStartNode(t *testing.T) {
	g := buildGraph(
		[]*models.Node{node("s", models.NodeStart), node("e", models.NodeEnd)},
		[]models.Edge{edge("1", "s", "e", "")},
	)

	start, err := g.StartNode()
	require.NoError(t, err)
	assert.Equal(t, "s", start.ID)
}

func TestStartNodeMissing(t *testing.T) {
	g := buildGraph([]*models.Node{node("e", models.NodeEnd)}, nil)

	_, err := g.StartNode()
	assert.Error(t, err)
}

func TestStartNodeDuplicate(t *testing.T) {
	g := buildGraph(
		[]*models.Node{node("s1", models.NodeStart), node("s2", models.NodeStart)},
		nil,
	)

	_, err := g.StartNode()
	assert.Error(t, err)
}

func TestNextNodesAllEdges(t *testing.T) {
	g := buildGraph(
		[]*models.Node{node("f", models.NodeFork), node("a", models.NodeAgent), node("b", models.NodeAgent)},
		[]models.Edge{
			edge("1", "f", "a", ""),
			edge("2", "f", "b", ""),
		},
	)

	assert.Equal(t, []string{"a", "b"}, g.NextNodes("f", ""))
}

func TestNextNodesHandleMatch(t *testing.T) {
	g := buildGraph(
		[]*models.Node{node("c", models.NodeIfElse), node("t", models.NodeEnd), node("f", models.NodeEnd)},
		[]models.Edge{
			edge("1", "c", "t", "true"),
			edge("2", "c", "f", "false"),
		},
	)

	assert.Equal(t, []string{"t"}, g.NextNodes("c", "true"))
	assert.Equal(t, []string{"f"}, g.NextNodes("c", "false"))
}

func TestNextNodesHandleCaseInsensitive(t *testing.T) {
	g := buildGraph(
		[]*models.Node{node("c", models.NodeIfElse), node("t", models.NodeEnd)},
		[]models.Edge{edge("1", "c", "t", "True")},
	)

	assert.Equal(t, []string{"t"}, g.NextNodes("c", "true"))
}

func TestNextNodesMissingBranch(t *testing.T) {
	g := buildGraph(
		[]*models.Node{node("c", models.NodeIfElse), node("t", models.NodeEnd)},
		[]models.Edge{edge("1", "c", "t", "true")},
	)

	assert.Empty(t, g.NextNodes("c", "false"))
}

func TestNextNodesDedupePreservesOrder(t *testing.T) {
	g := buildGraph(
		[]*models.Node{node("a", models.NodeAgent), node("b", models.NodeAgent), node("c", models.NodeAgent)},
		[]models.Edge{
			edge("1", "a", "b", ""),
			edge("2", "a", "c", ""),
			edge("3", "a", "b", ""),
		},
	)

	assert.Equal(t, []string{"b", "c"}, g.NextNodes("a", ""))
}

func TestHasCycle(t *testing.T) {
	cyclic := buildGraph(
		[]*models.Node{node("a", models.NodeAgent), node("b", models.NodeAgent)},
		[]models.Edge{
			edge("1", "a", "b", ""),
			edge("2", "b", "a", ""),
		},
	)
	assert.True(t, cyclic.HasCycle())

	acyclic := buildGraph(
		[]*models.Node{node("a", models.NodeAgent), node("b", models.NodeAgent)},
		[]models.Edge{edge("1", "a", "b", "")},
	)
	assert.False(t, acyclic.HasCycle())
}

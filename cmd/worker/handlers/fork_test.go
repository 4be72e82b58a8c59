package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/agentflow/common/models"
)

func TestForkFansOutAllBranches(t *testing.T) {
	fork := testNode("fork", models.NodeFork, nil)
	g := testGraph(
		[]*models.Node{
			fork,
			testNode("a", models.NodeEnd, nil),
			testNode("b", models.NodeEnd, nil),
			testNode("c", models.NodeEnd, nil),
		},
		[]models.Edge{
			testEdge("1", "fork", "a", ""),
			testEdge("2", "fork", "b", ""),
			testEdge("3", "fork", "c", ""),
		},
	)

	res, err := NewForkHandler().Execute(context.Background(), fork, testContext(g, "fork", map[string]any{"topic": "go"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, res.Next)
	assert.Equal(t, []string{"a", "b", "c"}, res.Output["branches"])
	assert.Equal(t, 3, res.Output["branch_count"])
	assert.Equal(t, "go", res.Output["topic"])
}

func TestForkNoSuccessors(t *testing.T) {
	fork := testNode("fork", models.NodeFork, nil)
	g := testGraph([]*models.Node{fork}, nil)

	res, err := NewForkHandler().Execute(context.Background(), fork, testContext(g, "fork", nil))
	require.NoError(t, err)

	assert.Empty(t, res.Next)
	assert.Equal(t, 0, res.Output["branch_count"])
}

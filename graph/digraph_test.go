package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiGraphAddEdgeIdempotent(t *testing.T) {
	g := NewDiGraph[int]()
	g.AddEdge(1, 2)
	g.AddEdge(1, 2)
	require.True(t, g.HasEdge(1, 2))
	require.Len(t, g.Adj(1), 1)
}

func TestDiGraphHasCycle(t *testing.T) {
	g := NewDiGraph[int]()
	g.AddEdge(1, 2)
	g.AddEdge(2, 3)
	assert.False(t, g.HasCycle())

	g.AddEdge(3, 1)
	assert.True(t, g.HasCycle())
}

func TestDiGraphHasCycleSelfLoop(t *testing.T) {
	g := NewDiGraph[int]()
	g.AddEdge(1, 1)
	assert.True(t, g.HasCycle())
}

func TestDiGraphTakeClosure(t *testing.T) {
	g := NewDiGraph[int]()
	g.AddEdge(1, 2)
	g.AddEdge(2, 3)
	g.AddEdge(3, 4)

	closure := g.TakeClosure()
	for _, v := range []int{2, 3, 4} {
		assert.True(t, closure.HasEdge(1, v), "1 should reach %d", v)
	}
	assert.False(t, closure.HasEdge(2, 1))
	assert.False(t, closure.HasEdge(4, 1))
}

func TestDiGraphTakeClosureWithCycle(t *testing.T) {
	g := NewDiGraph[int]()
	g.AddEdge(1, 2)
	g.AddEdge(2, 1)

	closure := g.TakeClosure()
	assert.True(t, closure.HasEdge(1, 1), "vertex on a cycle should reach itself")
	assert.True(t, closure.HasEdge(2, 2))
}

func TestDiGraphUnionWith(t *testing.T) {
	a := NewDiGraph[int]()
	a.AddEdge(1, 2)
	b := NewDiGraph[int]()
	b.AddEdge(2, 3)
	b.AddEdge(1, 3)

	a.UnionWith(b)
	assert.True(t, a.HasEdge(1, 2))
	assert.True(t, a.HasEdge(2, 3))
	assert.True(t, a.HasEdge(1, 3))
}

func TestDiGraphAddVertexNoOutEdges(t *testing.T) {
	g := NewDiGraph[int]()
	g.AddVertex(5)
	require.Contains(t, g.Vertices(), 5)
	assert.Empty(t, g.Adj(5))
}

// Package biconn computes the biconnected-component decomposition of
// an undirected graph.UGraph, used to shard consistency verification
// across independently decidable sub-histories: two sessions are
// adjacent in the session-communication graph iff they access some
// variable in common, and Read-Atomic-through-Serializable
// verdicts are compositional across those components (spec §4.2).
//
// The classic recursive Tarjan articulation-point/BCC algorithm is
// rewritten here with an explicit frame stack (spec design note: large
// histories can overflow a bounded call stack), tracking discovery
// time, low-link, and an edge stack exactly as the recursive version
// would, one simulated stack frame per open DFS call.
package biconn

import "github.com/go-isolation/isocheck/graph"

// Edge is an unordered pair of endpoints as visited by the DFS tree —
// direction here only reflects discovery order, not the underlying
// UGraph's (symmetric) adjacency.
type Edge[T comparable] struct {
	U, V T
}

// frame is one simulated recursive call of the classic bcc_util(u, ...).
type frame[T comparable] struct {
	u         T
	neighbors []T
	idx       int
	children  int
}

// Decompose runs the biconnected-component DFS over g and returns the
// isolated (degree-zero) vertices plus the edge-sets of every
// biconnected component with at least one edge.
func Decompose[T comparable](g *graph.UGraph[T]) (isolated []T, components [][]Edge[T]) {
	disc := make(map[T]int)
	low := make(map[T]int)
	parent := make(map[T]T)
	timer := 0

	for _, u := range g.Vertices() {
		neighbors := neighborSlice(g, u)
		if len(neighbors) == 0 {
			isolated = append(isolated, u)
			continue
		}
		if _, seen := disc[u]; seen {
			continue
		}
		components = append(components, runTree(g, u, disc, low, parent, &timer)...)
	}
	return isolated, components
}

// runTree drives one iterative DFS tree rooted at r and returns the
// biconnected components discovered within it.
func runTree[T comparable](g *graph.UGraph[T], r T, disc, low map[T]int, parent map[T]T, timer *int) [][]Edge[T] {
	var components [][]Edge[T]
	var edgeStack []Edge[T]

	parent[r] = r
	*timer++
	disc[r] = *timer
	low[r] = *timer

	stack := []*frame[T]{{u: r, neighbors: neighborSlice(g, r)}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.idx >= len(top.neighbors) {
			// u's neighbor list is exhausted: pop and fold into its parent.
			u := top.u
			uLow := low[u]
			stack = stack[:len(stack)-1]

			if len(stack) == 0 {
				break
			}
			pframe := stack[len(stack)-1]
			p := pframe.u
			if uLow < low[p] {
				low[p] = uLow
			}

			isRoot := parent[p] == p
			if (isRoot && pframe.children > 1) || (!isRoot && uLow >= disc[p]) {
				components = append(components, popComponent(&edgeStack, p, u))
			}
			continue
		}

		u := top.u
		v := top.neighbors[top.idx]
		top.idx++

		switch {
		case disc[v] == 0:
			parent[v] = u
			top.children++
			edgeStack = append(edgeStack, Edge[T]{U: u, V: v})
			*timer++
			disc[v] = *timer
			low[v] = *timer
			stack = append(stack, &frame[T]{u: v, neighbors: neighborSlice(g, v)})
		case v != parent[u] && disc[v] < disc[u]:
			if disc[v] < low[u] {
				low[u] = disc[v]
			}
			edgeStack = append(edgeStack, Edge[T]{U: u, V: v})
		}
	}

	if len(edgeStack) > 0 {
		components = append(components, edgeStack)
	}
	return components
}

// popComponent pops edgeStack down to and including the (p,u) edge
// that closed this biconnected component, and returns the popped
// edges as one component.
func popComponent[T comparable](edgeStack *[]Edge[T], p, u T) []Edge[T] {
	var comp []Edge[T]
	s := *edgeStack
	for len(s) > 0 {
		e := s[len(s)-1]
		s = s[:len(s)-1]
		comp = append(comp, e)
		if e.U == p && e.V == u {
			break
		}
	}
	*edgeStack = s
	return comp
}

func neighborSlice[T comparable](g *graph.UGraph[T], u T) []T {
	adj := g.Adj(u)
	out := make([]T, 0, len(adj))
	for v := range adj {
		out = append(out, v)
	}
	return out
}

// VertexComponents collapses Decompose's edge-set components to the
// set of their endpoint vertices, and wraps every isolated vertex as
// its own singleton component.
func VertexComponents[T comparable](g *graph.UGraph[T]) []map[T]struct{} {
	isolated, edgeComponents := Decompose(g)

	components := make([]map[T]struct{}, 0, len(isolated)+len(edgeComponents))
	for _, u := range isolated {
		components = append(components, map[T]struct{}{u: {}})
	}
	for _, comp := range edgeComponents {
		vs := make(map[T]struct{})
		for _, e := range comp {
			vs[e.U] = struct{}{}
			vs[e.V] = struct{}{}
		}
		components = append(components, vs)
	}
	return components
}

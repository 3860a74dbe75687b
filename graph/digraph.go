// Package graph implements the two relational primitives the
// consistency checker is built on: a directed adjacency-set graph
// (DiGraph) used for SO/VIS/WR and their closures, and an undirected
// adjacency-set graph (UGraph) used for the session-communication
// graph that package biconn decomposes.
//
// Both types are generic over any comparable vertex key so the same
// code serves transaction ids (txn.TxnID), (TxnID, phase) pairs, and
// plain session ids. Adjacency is stored as a set, not a list: callers
// must not depend on iteration order (spec invariant — downstream
// algorithms sort whenever order affects a result).
//
// Complexity: AddVertex, AddEdge and HasEdge are O(1) amortized;
// HasCycle and TakeClosure each run one search per vertex and are
// O(V*(V+E)). Both use
// an explicit work-stack rather than recursion, since the graphs here
// are built over transaction counts with no a priori bound on depth.
package graph

// DiGraph is a directed adjacency-set graph over vertex type T.
type DiGraph[T comparable] struct {
	adj map[T]map[T]struct{}
}

// NewDiGraph returns an empty directed graph.
func NewDiGraph[T comparable]() *DiGraph[T] {
	return &DiGraph[T]{adj: make(map[T]map[T]struct{})}
}

// AddVertex registers u with no outgoing edges if it is not already
// present. Idempotent.
func (g *DiGraph[T]) AddVertex(u T) {
	if _, ok := g.adj[u]; !ok {
		g.adj[u] = make(map[T]struct{})
	}
}

// AddEdge inserts the edge u->v, registering both endpoints. Idempotent;
// never creates a self-loop unless the caller explicitly passes u==v.
func (g *DiGraph[T]) AddEdge(u, v T) {
	g.AddVertex(u)
	g.adj[u][v] = struct{}{}
	g.AddVertex(v)
}

// AddEdges inserts edges u->v for every v in vs.
func (g *DiGraph[T]) AddEdges(u T, vs []T) {
	g.AddVertex(u)
	for _, v := range vs {
		g.adj[u][v] = struct{}{}
		g.AddVertex(v)
	}
}

// HasEdge reports whether u->v is present. Constant-time lookup.
func (g *DiGraph[T]) HasEdge(u, v T) bool {
	if g == nil {
		return false
	}
	vs, ok := g.adj[u]
	if !ok {
		return false
	}
	_, ok = vs[v]
	return ok
}

// Adj returns the set of direct successors of u, or nil if u is
// unknown. The returned map must be treated as read-only.
func (g *DiGraph[T]) Adj(u T) map[T]struct{} {
	if g == nil {
		return nil
	}
	return g.adj[u]
}

// Vertices returns every registered vertex in unspecified order.
func (g *DiGraph[T]) Vertices() []T {
	if g == nil {
		return nil
	}
	out := make([]T, 0, len(g.adj))
	for u := range g.adj {
		out = append(out, u)
	}
	return out
}

// HasCycle reports whether any vertex reaches itself through a path
// of one or more edges. Each vertex is tested independently with an
// iterative reachability search; a vertex with a self-loop edge is
// trivially a cycle.
func (g *DiGraph[T]) HasCycle() bool {
	if g == nil {
		return false
	}
	for u := range g.adj {
		if g.reachesSelf(u) {
			return true
		}
	}
	return false
}

// reachesSelf reports whether s is reachable from one of its own
// direct successors, i.e. whether s lies on a cycle. Uses an explicit
// stack rather than recursion (spec: large histories must not risk a
// recursive call-stack overflow).
func (g *DiGraph[T]) reachesSelf(s T) bool {
	visited := make(map[T]struct{})
	stack := make([]T, 0, len(g.adj[s]))
	for v := range g.adj[s] {
		stack = append(stack, v)
	}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if v == s {
			return true
		}
		if _, seen := visited[v]; seen {
			continue
		}
		visited[v] = struct{}{}
		for w := range g.adj[v] {
			stack = append(stack, w)
		}
	}
	return false
}

// TakeClosure returns a new graph whose adjacency for each vertex u is
// the full set of vertices reachable from u via one or more edges
// (the transitive closure). Irreflexive unless a cycle runs through u.
func (g *DiGraph[T]) TakeClosure() *DiGraph[T] {
	closure := NewDiGraph[T]()
	if g == nil {
		return closure
	}
	for u := range g.adj {
		reachable := make(map[T]struct{})
		stack := make([]T, 0, len(g.adj[u]))
		for v := range g.adj[u] {
			stack = append(stack, v)
		}
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := reachable[v]; ok {
				continue
			}
			reachable[v] = struct{}{}
			for w := range g.adj[v] {
				stack = append(stack, w)
			}
		}
		closure.adj[u] = reachable
	}
	return closure
}

// UnionWith merges every edge of other into g, in place.
func (g *DiGraph[T]) UnionWith(other *DiGraph[T]) {
	if other == nil {
		return
	}
	for u, vs := range other.adj {
		g.AddVertex(u)
		for v := range vs {
			g.adj[u][v] = struct{}{}
		}
	}
}

// Clone returns a deep copy of g.
func (g *DiGraph[T]) Clone() *DiGraph[T] {
	out := NewDiGraph[T]()
	if g == nil {
		return out
	}
	for u, vs := range g.adj {
		cp := make(map[T]struct{}, len(vs))
		for v := range vs {
			cp[v] = struct{}{}
		}
		out.adj[u] = cp
	}
	return out
}

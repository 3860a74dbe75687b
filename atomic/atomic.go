// Package atomic builds the AtomicHistoryPO relational object — session
// order, visibility-under-construction, and the per-variable WR graphs —
// and settles Read Atomic and Causal consistency by cycle detection
// alone, without any search (spec §4.5). Prefix, Snapshot Isolation and
// Serializable need the constrained-linearization search in package
// linearize and reuse the same object for their "vis" relation.
package atomic

import (
	"sort"

	"github.com/go-isolation/isocheck/graph"
	"github.com/go-isolation/isocheck/lift"
	"github.com/go-isolation/isocheck/txn"
)

// AtomicHistoryPO is the partial order derived from a set of committed
// transactions: SO (session precedence, transitively closed, rooted at
// txn.Root), Vis (visibility under construction, initialized to SO and
// only ever grown), and WR (one graph per variable, writer to reader).
type AtomicHistoryPO struct {
	SO  *graph.DiGraph[txn.TxnID]
	Vis *graph.DiGraph[txn.TxnID]
	WR  map[uint64]*graph.DiGraph[txn.TxnID]

	// Writers maps a variable to every transaction that wrote it, sorted
	// for deterministic iteration.
	Writers map[uint64][]txn.TxnID
}

// New builds an AtomicHistoryPO from a history's lifted transaction
// summaries. Vis starts out equal to SO; callers mutate it with
// VisIncludes/VisIsTrans.
func New(infos map[txn.TxnID]lift.TransactionInfo) *AtomicHistoryPO {
	a := &AtomicHistoryPO{
		WR:      make(map[uint64]*graph.DiGraph[txn.TxnID]),
		Writers: make(map[uint64][]txn.TxnID),
	}

	bySession := make(map[int][]int)
	for id := range infos {
		if id == txn.Root {
			continue
		}
		bySession[id.Node] = append(bySession[id.Node], id.Pos)
	}

	so := graph.NewDiGraph[txn.TxnID]()
	so.AddVertex(txn.Root)
	for node, positions := range bySession {
		sort.Ints(positions)
		prev := txn.Root
		for _, pos := range positions {
			cur := txn.TxnID{Node: node, Pos: pos}
			so.AddEdge(prev, cur)
			prev = cur
		}
	}
	a.SO = so.TakeClosure()
	a.Vis = a.SO.Clone()

	for id, info := range infos {
		for v := range info.WritesTo {
			a.Writers[v] = append(a.Writers[v], id)
		}
	}
	for v := range a.Writers {
		ws := a.Writers[v]
		sort.Slice(ws, func(i, j int) bool { return ws[i].Less(ws[j]) })
	}

	for id, info := range infos {
		for v, writer := range info.ReadsFrom {
			g, ok := a.WR[v]
			if !ok {
				g = graph.NewDiGraph[txn.TxnID]()
				a.WR[v] = g
			}
			g.AddEdge(writer, id)
		}
	}

	return a
}

// GetWR reports whether writer's write to variable was observed by
// reader.
func (a *AtomicHistoryPO) GetWR(variable uint64, writer, reader txn.TxnID) bool {
	wr, ok := a.WR[variable]
	if !ok {
		return false
	}
	return wr.HasEdge(writer, reader)
}

// VisIncludes unions extra into vis. Monotone: never removes an edge.
func (a *AtomicHistoryPO) VisIncludes(extra *graph.DiGraph[txn.TxnID]) {
	a.Vis.UnionWith(extra)
}

// VisIsTrans unions extra into vis and replaces vis with its transitive
// closure.
func (a *AtomicHistoryPO) VisIsTrans(extra *graph.DiGraph[txn.TxnID]) {
	a.Vis.UnionWith(extra)
	a.Vis = a.Vis.TakeClosure()
}

// CausalWW derives the write-write edges implied by the current vis: for
// each variable x and distinct writers t1, t2, emit t2 -> t1 when vis
// already orders t2 before t1, or before any reader of t1's write to x.
func (a *AtomicHistoryPO) CausalWW() *graph.DiGraph[txn.TxnID] {
	ww := graph.NewDiGraph[txn.TxnID]()
	for x, writers := range a.Writers {
		wr := a.WR[x]
		for _, t1 := range writers {
			for _, t2 := range writers {
				if t1 == t2 {
					continue
				}
				if a.Vis.HasEdge(t2, t1) {
					ww.AddEdge(t2, t1)
					continue
				}
				if wr == nil {
					continue
				}
				for t3 := range wr.Adj(t1) {
					if a.Vis.HasEdge(t2, t3) {
						ww.AddEdge(t2, t1)
						break
					}
				}
			}
		}
	}
	return ww
}

// CheckReadAtomic reports whether the history violates Read Atomic:
// vis := vis ∪ WR, then vis := vis ∪ causal-WW(vis), cycle ⇒ violated.
func CheckReadAtomic(infos map[txn.TxnID]lift.TransactionInfo) bool {
	a := New(infos)
	for _, wr := range a.WR {
		a.VisIncludes(wr)
	}
	a.VisIncludes(a.CausalWW())
	return a.Vis.HasCycle()
}

// BuildCausal runs the Causal procedure — transitive closure after each
// WR/WW inclusion — and returns the resulting AtomicHistoryPO (whose Vis
// is the fully causally-closed visibility relation, reused by package
// linearize for Prefix/SI/Serializable) along with whether it violates
// Causal consistency.
func BuildCausal(infos map[txn.TxnID]lift.TransactionInfo) (*AtomicHistoryPO, bool) {
	a := New(infos)
	for _, wr := range a.WR {
		a.VisIsTrans(wr)
	}
	a.VisIsTrans(a.CausalWW())
	return a, a.Vis.HasCycle()
}

// CheckCausal reports whether the history violates Causal consistency.
func CheckCausal(infos map[txn.TxnID]lift.TransactionInfo) bool {
	_, violated := BuildCausal(infos)
	return violated
}

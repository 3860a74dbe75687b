package linearize

import (
	"sort"

	"github.com/go-isolation/isocheck/atomic"
	"github.com/go-isolation/isocheck/lift"
	"github.com/go-isolation/isocheck/txn"
)

// undoEntry snapshots one variable's previous active-set membership so
// BacktrackBookKeeping can restore it exactly.
type undoEntry struct {
	variable uint64
	present  bool
	set      map[txn.TxnID]struct{}
}

// SerializableHistory instantiates Linearizable over plain transaction
// vertices: children_of(u) = vis.adj(u). A transaction may be placed
// once every outstanding reader of the write it is about to supersede
// has already been placed (spec §4.6.1).
type SerializableHistory struct {
	po        *atomic.AtomicHistoryPO
	infos     map[txn.TxnID]lift.TransactionInfo
	active    map[uint64]map[txn.TxnID]struct{} // active_write[x]
	undoStack [][]undoEntry
}

// NewSerializableHistory builds a Linearizable[txn.TxnID] over the
// visibility relation and transaction summaries produced for this
// history.
func NewSerializableHistory(po *atomic.AtomicHistoryPO, infos map[txn.TxnID]lift.TransactionInfo) *SerializableHistory {
	return &SerializableHistory{po: po, infos: infos, active: make(map[uint64]map[txn.TxnID]struct{})}
}

func (h *SerializableHistory) Root() txn.TxnID { return txn.Root }

func (h *SerializableHistory) Vertices() []txn.TxnID {
	out := make([]txn.TxnID, 0, len(h.infos))
	for id := range h.infos {
		if id == txn.Root {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (h *SerializableHistory) ChildrenOf(u txn.TxnID) []txn.TxnID {
	adj := h.po.Vis.Adj(u)
	out := make([]txn.TxnID, 0, len(adj))
	for v := range adj {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (h *SerializableHistory) readersOf(writer txn.TxnID, variable uint64) map[txn.TxnID]struct{} {
	readers := make(map[txn.TxnID]struct{})
	if wr, ok := h.po.WR[variable]; ok {
		for r := range wr.Adj(writer) {
			readers[r] = struct{}{}
		}
	}
	return readers
}

// AllowNext requires that for every variable t writes, no outstanding
// reader of the value it is about to overwrite remains unplaced, unless
// t itself is that one remaining reader (a transaction that reads then
// overwrites the same variable it just read).
func (h *SerializableHistory) AllowNext(_ []txn.TxnID, t txn.TxnID) bool {
	info := h.infos[t]
	for x := range info.WritesTo {
		aw, ok := h.active[x]
		if !ok || len(aw) == 0 {
			continue
		}
		if len(aw) == 1 {
			if _, only := aw[t]; only {
				continue
			}
		}
		return false
	}
	return true
}

func (h *SerializableHistory) snapshot(x uint64) undoEntry {
	if aw, ok := h.active[x]; ok {
		cp := make(map[txn.TxnID]struct{}, len(aw))
		for k := range aw {
			cp[k] = struct{}{}
		}
		return undoEntry{variable: x, present: true, set: cp}
	}
	return undoEntry{variable: x, present: false}
}

func touchedVars(info lift.TransactionInfo) map[uint64]struct{} {
	out := make(map[uint64]struct{}, len(info.WritesTo)+len(info.ReadsFrom))
	for x := range info.WritesTo {
		out[x] = struct{}{}
	}
	for x := range info.ReadsFrom {
		out[x] = struct{}{}
	}
	return out
}

func (h *SerializableHistory) ForwardBookKeeping(t txn.TxnID) {
	info := h.infos[t]

	entries := make([]undoEntry, 0, len(touchedVars(info)))
	for x := range touchedVars(info) {
		entries = append(entries, h.snapshot(x))
	}
	h.undoStack = append(h.undoStack, entries)

	for x := range info.WritesTo {
		readers := h.readersOf(t, x)
		if len(readers) == 0 {
			delete(h.active, x)
		} else {
			h.active[x] = readers
		}
	}
	for x := range info.ReadsFrom {
		if aw, ok := h.active[x]; ok {
			delete(aw, t)
			if len(aw) == 0 {
				delete(h.active, x)
			}
		}
	}
}

func (h *SerializableHistory) BacktrackBookKeeping(_ txn.TxnID) {
	n := len(h.undoStack)
	entries := h.undoStack[n-1]
	h.undoStack = h.undoStack[:n-1]
	for _, e := range entries {
		if e.present {
			h.active[e.variable] = e.set
		} else {
			delete(h.active, e.variable)
		}
	}
}

func (h *SerializableHistory) Less(a, b txn.TxnID) bool { return a.Less(b) }
func (h *SerializableHistory) Key(v txn.TxnID) string   { return v.String() }

// CheckSerializable reports whether the history violates Serializable.
func CheckSerializable(po *atomic.AtomicHistoryPO, infos map[txn.TxnID]lift.TransactionInfo) bool {
	_, ok := Search[txn.TxnID](NewSerializableHistory(po, infos))
	return !ok
}

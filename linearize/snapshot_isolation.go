package linearize

import (
	"github.com/go-isolation/isocheck/atomic"
	"github.com/go-isolation/isocheck/lift"
	"github.com/go-isolation/isocheck/txn"
)

type svUndoEntry struct {
	variable uint64
	present  bool
}

// SnapshotIsolationHistory extends PrefixHistory with active_variable —
// the set of variables written by currently open transactions — and
// refuses to BEGIN a transaction whose writes overlap it, enforcing
// SI's write-write conflict rule on top of Prefix's snapshot rule
// (spec §4.6.2).
type SnapshotIsolationHistory struct {
	*PrefixHistory
	activeVariable map[uint64]struct{}
	svUndoStack    [][]svUndoEntry
}

// NewSnapshotIsolationHistory builds a Linearizable[PhaseVertex] for
// the Snapshot Isolation check.
func NewSnapshotIsolationHistory(po *atomic.AtomicHistoryPO, infos map[txn.TxnID]lift.TransactionInfo) *SnapshotIsolationHistory {
	return &SnapshotIsolationHistory{
		PrefixHistory:  NewPrefixHistory(po, infos),
		activeVariable: make(map[uint64]struct{}),
	}
}

func (h *SnapshotIsolationHistory) AllowNext(prefix []PhaseVertex, v PhaseVertex) bool {
	if !h.PrefixHistory.AllowNext(prefix, v) {
		return false
	}
	if v.Phase {
		return true
	}
	info := h.infos[v.Txn]
	for x := range info.WritesTo {
		if _, busy := h.activeVariable[x]; busy {
			return false
		}
	}
	return true
}

func (h *SnapshotIsolationHistory) pushSV(vars map[uint64]struct{}) {
	entries := make([]svUndoEntry, 0, len(vars))
	for x := range vars {
		_, was := h.activeVariable[x]
		entries = append(entries, svUndoEntry{variable: x, present: was})
	}
	h.svUndoStack = append(h.svUndoStack, entries)
}

func (h *SnapshotIsolationHistory) popSV() {
	n := len(h.svUndoStack)
	entries := h.svUndoStack[n-1]
	h.svUndoStack = h.svUndoStack[:n-1]
	for _, e := range entries {
		if e.present {
			h.activeVariable[e.variable] = struct{}{}
		} else {
			delete(h.activeVariable, e.variable)
		}
	}
}

func (h *SnapshotIsolationHistory) ForwardBookKeeping(v PhaseVertex) {
	h.PrefixHistory.ForwardBookKeeping(v)

	info := h.infos[v.Txn]
	h.pushSV(info.WritesTo)
	if !v.Phase {
		for x := range info.WritesTo {
			h.activeVariable[x] = struct{}{}
		}
		return
	}
	for x := range info.WritesTo {
		delete(h.activeVariable, x)
	}
}

func (h *SnapshotIsolationHistory) BacktrackBookKeeping(v PhaseVertex) {
	h.popSV()
	h.PrefixHistory.BacktrackBookKeeping(v)
}

// CheckSnapshotIsolation reports whether the history violates Snapshot
// Isolation.
func CheckSnapshotIsolation(po *atomic.AtomicHistoryPO, infos map[txn.TxnID]lift.TransactionInfo) bool {
	_, ok := Search[PhaseVertex](NewSnapshotIsolationHistory(po, infos))
	return !ok
}

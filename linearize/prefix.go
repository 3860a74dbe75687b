package linearize

import (
	"fmt"
	"sort"

	"github.com/go-isolation/isocheck/atomic"
	"github.com/go-isolation/isocheck/lift"
	"github.com/go-isolation/isocheck/txn"
)

// PhaseVertex splits a transaction into its BEGIN and COMMIT instants,
// letting Prefix and Snapshot Isolation express that a transaction is
// "open" for an interval rather than a single point (spec §4.6.2).
type PhaseVertex struct {
	Txn   txn.TxnID
	Phase bool // false = BEGIN, true = COMMIT
}

func (p PhaseVertex) String() string {
	tag := "B"
	if p.Phase {
		tag = "C"
	}
	return fmt.Sprintf("%s:%s", p.Txn.String(), tag)
}

func (p PhaseVertex) Less(o PhaseVertex) bool {
	if p.Txn != o.Txn {
		return p.Txn.Less(o.Txn)
	}
	return !p.Phase && o.Phase
}

// PrefixHistory instantiates Linearizable over PhaseVertex: a writer's
// COMMIT claims every reader of its new write, and those claims drain
// one at a time as each reader BEGINs; the next writer of the same
// variable may only COMMIT once its own claim set has drained to
// nothing (or to itself alone).
type PrefixHistory struct {
	po        *atomic.AtomicHistoryPO
	infos     map[txn.TxnID]lift.TransactionInfo
	active    map[uint64]map[txn.TxnID]struct{} // active_write[x]
	undoStack [][]undoEntry
}

// NewPrefixHistory builds a Linearizable[PhaseVertex] for the Prefix
// consistency check.
func NewPrefixHistory(po *atomic.AtomicHistoryPO, infos map[txn.TxnID]lift.TransactionInfo) *PrefixHistory {
	return &PrefixHistory{po: po, infos: infos, active: make(map[uint64]map[txn.TxnID]struct{})}
}

func (h *PrefixHistory) Root() PhaseVertex { return PhaseVertex{Txn: txn.Root, Phase: true} }

func (h *PrefixHistory) Vertices() []PhaseVertex {
	out := make([]PhaseVertex, 0, 2*len(h.infos))
	for id := range h.infos {
		if id == txn.Root {
			continue
		}
		out = append(out, PhaseVertex{Txn: id, Phase: false}, PhaseVertex{Txn: id, Phase: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (h *PrefixHistory) ChildrenOf(v PhaseVertex) []PhaseVertex {
	if !v.Phase {
		return []PhaseVertex{{Txn: v.Txn, Phase: true}}
	}
	adj := h.po.Vis.Adj(v.Txn)
	out := make([]PhaseVertex, 0, len(adj))
	for t := range adj {
		out = append(out, PhaseVertex{Txn: t, Phase: false})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (h *PrefixHistory) readersOf(writer txn.TxnID, variable uint64) map[txn.TxnID]struct{} {
	readers := make(map[txn.TxnID]struct{})
	if wr, ok := h.po.WR[variable]; ok {
		for r := range wr.Adj(writer) {
			readers[r] = struct{}{}
		}
	}
	return readers
}

// AllowNext enforces that a transaction may only COMMIT once every
// variable it writes has no outstanding foreign claim on the prior
// write's readers: active_write[x] must be empty, or hold only t
// itself (t already consumed its own pending read of x, if any).
// BEGIN is always allowed — a transaction's reads never need to wait.
func (h *PrefixHistory) AllowNext(_ []PhaseVertex, v PhaseVertex) bool {
	if !v.Phase {
		return true
	}
	t := v.Txn
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

func (h *PrefixHistory) snapshot(x uint64) undoEntry {
	if aw, ok := h.active[x]; ok {
		cp := make(map[txn.TxnID]struct{}, len(aw))
		for k := range aw {
			cp[k] = struct{}{}
		}
		return undoEntry{variable: x, present: true, set: cp}
	}
	return undoEntry{variable: x, present: false}
}

// ForwardBookKeeping claims, at COMMIT, every variable t writes for
// the set of transactions that read that write — establishing the
// set active_write[x] must shrink to empty before the next writer of
// x may itself COMMIT. At BEGIN, t releases its own claim on every
// variable it reads, since it has now taken its observation of x and
// no longer blocks x's next writer.
func (h *PrefixHistory) ForwardBookKeeping(v PhaseVertex) {
	t := v.Txn
	info := h.infos[t]

	var touched map[uint64]struct{}
	if v.Phase {
		touched = info.WritesTo
	} else {
		touched = make(map[uint64]struct{}, len(info.ReadsFrom))
		for x := range info.ReadsFrom {
			touched[x] = struct{}{}
		}
	}
	entries := make([]undoEntry, 0, len(touched))
	for x := range touched {
		entries = append(entries, h.snapshot(x))
	}
	h.undoStack = append(h.undoStack, entries)

	if v.Phase {
		for x := range info.WritesTo {
			readers := h.readersOf(t, x)
			if len(readers) == 0 {
				delete(h.active, x)
			} else {
				h.active[x] = readers
			}
		}
		return
	}
	for x := range info.ReadsFrom {
		aw, ok := h.active[x]
		if !ok {
			continue
		}
		delete(aw, t)
		if len(aw) == 0 {
			delete(h.active, x)
		}
	}
}

func (h *PrefixHistory) BacktrackBookKeeping(_ PhaseVertex) {
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

func (h *PrefixHistory) Less(a, b PhaseVertex) bool { return a.Less(b) }
func (h *PrefixHistory) Key(v PhaseVertex) string   { return v.String() }

// CheckPrefix reports whether the history violates Prefix consistency.
func CheckPrefix(po *atomic.AtomicHistoryPO, infos map[txn.TxnID]lift.TransactionInfo) bool {
	_, ok := Search[PhaseVertex](NewPrefixHistory(po, infos))
	return !ok
}

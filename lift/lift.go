// Package lift turns a raw txnlog.History into the abstract object the
// rest of the checker reasons about: a map of txn.TxnID to
// TransactionInfo (what each transaction read from and wrote to), after
// running the four axiomatic checks that settle Read Committed and
// Repeatable Read without ever building a graph (spec §4.3-§4.4).
//
// Session index i (0-based) is node id i+1; node id 0 is reserved for
// the synthetic initial transaction txn.Root, which is registered here
// whenever some read observes a variable's initial zero value.
package lift

import (
	"fmt"

	"github.com/go-isolation/isocheck/txn"
	"github.com/go-isolation/isocheck/txnlog"
)

// TransactionInfo is the reads-from / writes-to summary of one committed
// transaction, the unit every downstream graph (package atomic) and
// linearization (package linearize) is built from.
type TransactionInfo struct {
	// ReadsFrom maps a variable to the transaction whose write produced
	// the value this transaction observed for it (external reads only,
	// including the synthetic root; a read satisfied by this
	// transaction's own prior write is not recorded here).
	ReadsFrom map[uint64]txn.TxnID
	// WritesTo is the set of variables this transaction wrote.
	WritesTo map[uint64]struct{}
}

type varVal struct {
	Var, Val uint64
}

type writeLoc struct {
	Txn   txn.TxnID
	Event int
}

// Result is the full output of Lift: either a settled verdict
// (Violation != nil, one of ReadCommitted/RepeatableRead) or, when no
// axiomatic check fires, the TransactionInfos for every committed
// transaction plus the synthetic root when one was needed.
type Result struct {
	Infos     map[txn.TxnID]TransactionInfo
	Violation *txn.Level
}

// Lift scans sessions and either returns the committed-transaction
// summaries or the weakest isolation level the history already
// violates. A non-nil error means the history itself is malformed
// (a duplicate write, or a read with no producing write) rather than
// merely inconsistent.
func Lift(sessions []txnlog.Session) (Result, error) {
	writeMap, err := buildWriteMap(sessions)
	if err != nil {
		return Result{}, err
	}
	lastWrites := transactionLastWrites(sessions)

	if lvl := checkDirtyReads(sessions, writeMap); lvl != nil {
		return Result{Violation: lvl}, nil
	}

	infos, rootVars, lvl, err := checkLocalAndRepeatable(sessions, writeMap, lastWrites)
	if err != nil {
		return Result{}, err
	}
	if lvl != nil {
		return Result{Violation: lvl}, nil
	}

	if len(rootVars) > 0 {
		infos[txn.Root] = TransactionInfo{
			ReadsFrom: map[uint64]txn.TxnID{},
			WritesTo:  rootVars,
		}
	}
	return Result{Infos: infos}, nil
}

// buildWriteMap maps every (variable, value) pair observed by a
// successful event to where it came from: a real successful write, or
// (for value zero, when no write produced it) the synthetic root.
func buildWriteMap(sessions []txnlog.Session) (map[varVal]writeLoc, error) {
	wm := make(map[varVal]writeLoc)
	for nodeIdx, session := range sessions {
		node := nodeIdx + 1
		for txnIdx, t := range session {
			for evIdx, e := range t.Events {
				if !e.Success {
					continue
				}
				if e.Write {
					key := varVal{e.Variable, e.Value}
					if _, exists := wm[key]; exists {
						return nil, fmt.Errorf("%w: variable %d value %d", ErrDuplicateWrite, e.Variable, e.Value)
					}
					wm[key] = writeLoc{Txn: txn.TxnID{Node: node, Pos: txnIdx}, Event: evIdx}
				} else if e.Value == 0 {
					key := varVal{e.Variable, 0}
					if _, exists := wm[key]; !exists {
						wm[key] = writeLoc{Txn: txn.Root, Event: 0}
					}
				}
			}
		}
	}
	return wm, nil
}

// transactionLastWrites records, per transaction and variable, the
// index of that transaction's last successful write to the variable —
// the only write index a reader is allowed to observe once the
// transaction has committed.
func transactionLastWrites(sessions []txnlog.Session) map[txn.TxnID]map[uint64]int {
	out := make(map[txn.TxnID]map[uint64]int)
	for nodeIdx, session := range sessions {
		node := nodeIdx + 1
		for txnIdx, t := range session {
			id := txn.TxnID{Node: node, Pos: txnIdx}
			for evIdx, e := range t.Events {
				if e.Write && e.Success {
					m, ok := out[id]
					if !ok {
						m = make(map[uint64]int)
						out[id] = m
					}
					m[e.Variable] = evIdx
				}
			}
		}
	}
	return out
}

// checkDirtyReads looks for a successful read, inside a committed
// transaction, whose producing write belongs to a transaction that
// never committed. Finding one settles the history at Read Committed.
func checkDirtyReads(sessions []txnlog.Session, writeMap map[varVal]writeLoc) *txn.Level {
	for _, session := range sessions {
		for _, t := range session {
			if !t.Success {
				continue
			}
			for _, e := range t.Events {
				if e.Write || !e.Success {
					continue
				}
				loc := writeMap[varVal{e.Variable, e.Value}]
				if loc.Txn == txn.Root {
					continue
				}
				producer := sessions[loc.Txn.Node-1][loc.Txn.Pos]
				if !producer.Success {
					lvl := txn.ReadCommitted
					return &lvl
				}
			}
		}
	}
	return nil
}

// checkLocalAndRepeatable walks every committed transaction's events in
// program order, testing three axioms that all share the same local
// state: lost update (a read not reflecting this transaction's own most
// recent write), uncommitted read (a read observing a non-last write of
// another transaction), and non-repeatable read (two external reads of
// the same variable disagreeing on their producer). It also builds the
// ReadsFrom/WritesTo summary for every transaction that clears all
// three, and the set of variables whose zero value was read from the
// synthetic root.
func checkLocalAndRepeatable(
	sessions []txnlog.Session,
	writeMap map[varVal]writeLoc,
	lastWrites map[txn.TxnID]map[uint64]int,
) (map[txn.TxnID]TransactionInfo, map[uint64]struct{}, *txn.Level, error) {
	infos := make(map[txn.TxnID]TransactionInfo)
	rootVars := make(map[uint64]struct{})

	for nodeIdx, session := range sessions {
		node := nodeIdx + 1
		for txnIdx, t := range session {
			if !t.Success {
				continue
			}
			id := txn.TxnID{Node: node, Pos: txnIdx}

			localWrites := make(map[uint64]int) // variable -> event index of this txn's latest write
			externalReads := make(map[uint64]writeLoc)
			info := TransactionInfo{
				ReadsFrom: map[uint64]txn.TxnID{},
				WritesTo:  map[uint64]struct{}{},
			}

			for evIdx, e := range t.Events {
				if !e.Success {
					continue
				}
				if e.Write {
					localWrites[e.Variable] = evIdx
					info.WritesTo[e.Variable] = struct{}{}
					continue
				}

				loc, ok := writeMap[varVal{e.Variable, e.Value}]
				if !ok {
					return nil, nil, nil, fmt.Errorf("%w: variable %d value %d", ErrMissingWrite, e.Variable, e.Value)
				}

				if lastLocal, wroteLocally := localWrites[e.Variable]; wroteLocally {
					if loc.Txn != id || loc.Event != lastLocal {
						lvl := txn.ReadCommitted
						return nil, nil, &lvl, nil
					}
					continue
				}

				if loc.Txn != txn.Root {
					if lastWrites[loc.Txn][e.Variable] != loc.Event {
						lvl := txn.ReadCommitted
						return nil, nil, &lvl, nil
					}
				}

				if prev, seen := externalReads[e.Variable]; seen && prev != loc {
					lvl := txn.RepeatableRead
					return nil, nil, &lvl, nil
				}
				externalReads[e.Variable] = loc

				info.ReadsFrom[e.Variable] = loc.Txn
				if loc.Txn == txn.Root {
					rootVars[e.Variable] = struct{}{}
				}
			}

			infos[id] = info
		}
	}

	return infos, rootVars, nil, nil
}

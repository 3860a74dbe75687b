package satenc

import (
	"sort"

	"github.com/go-isolation/isocheck/atomic"
	"github.com/go-isolation/isocheck/lift"
	"github.com/go-isolation/isocheck/txn"
)

// Encoder canonicalizes a history's committed transactions into CO and
// VI Boolean variables and emits clause families on demand. CO owns a
// variable only for the Less-ordered orientation of each pair; the
// reversed lookup returns the negation of that same variable.
type Encoder struct {
	cnf   *CNF
	txns  []txn.TxnID
	index map[txn.TxnID]int
	vi    map[[2]int]int
	co    map[[2]int]int
	po    *atomic.AtomicHistoryPO
}

// NewEncoder allocates a CO variable for every unordered pair and a VI
// variable for every ordered pair of distinct transactions in infos.
func NewEncoder(infos map[txn.TxnID]lift.TransactionInfo, po *atomic.AtomicHistoryPO) *Encoder {
	txns := make([]txn.TxnID, 0, len(infos))
	for id := range infos {
		txns = append(txns, id)
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].Less(txns[j]) })

	e := &Encoder{
		cnf:   &CNF{},
		txns:  txns,
		index: make(map[txn.TxnID]int, len(txns)),
		vi:    make(map[[2]int]int),
		co:    make(map[[2]int]int),
		po:    po,
	}
	for i, t := range txns {
		e.index[t] = i
	}

	n := len(txns)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			e.vi[[2]int{i, j}] = e.cnf.NewVar()
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			e.co[[2]int{i, j}] = e.cnf.NewVar()
		}
	}
	return e
}

// CNF returns the clauses accumulated so far.
func (e *Encoder) CNF() *CNF { return e.cnf }

// Transactions returns the canonical (Less-sorted) vertex list the
// encoder numbered its variables against.
func (e *Encoder) Transactions() []txn.TxnID { return e.txns }

func (e *Encoder) viLit(a, b txn.TxnID) Literal {
	return Literal(e.vi[[2]int{e.index[a], e.index[b]}])
}

func (e *Encoder) coLit(a, b txn.TxnID) Literal {
	i, j := e.index[a], e.index[b]
	if i < j {
		return Literal(e.co[[2]int{i, j}])
	}
	return -Literal(e.co[[2]int{j, i}])
}

func (e *Encoder) groupedSessions() map[int][]txn.TxnID {
	by := make(map[int][]txn.TxnID)
	for _, t := range e.txns {
		if t == txn.Root {
			continue
		}
		by[t.Node] = append(by[t.Node], t)
	}
	for node := range by {
		ts := by[node]
		sort.Slice(ts, func(i, j int) bool { return ts[i].Less(ts[j]) })
	}
	return by
}

// session asserts VI along every adjacent pair in a session, with the
// synthetic root preceding the first transaction of each (when the root
// is one of the encoded transactions).
func (e *Encoder) session() {
	_, hasRoot := e.index[txn.Root]
	for _, ts := range e.groupedSessions() {
		prev := txn.Root
		for i, cur := range ts {
			if i > 0 || hasRoot {
				e.cnf.AddClause(e.viLit(prev, cur))
			}
			prev = cur
		}
	}
}

// preVisCO asserts VI ⇒ CO, that CO is total and acyclic between every
// pair, and that CO is transitive across every triple.
func (e *Encoder) preVisCO() {
	n := len(e.txns)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			a, b := e.txns[i], e.txns[j]
			e.cnf.AddClause(-e.viLit(a, b), e.coLit(a, b))
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := e.txns[i], e.txns[j]
			e.cnf.AddClause(-e.coLit(a, b), -e.coLit(b, a))
			e.cnf.AddClause(e.coLit(a, b), e.coLit(b, a))
		}
	}
	e.forEachTriple(func(a, b, c txn.TxnID) {
		e.cnf.AddClause(-e.coLit(a, b), -e.coLit(b, c), e.coLit(a, c))
	})
}

// wr forces VI[writer, reader] for every WR edge.
func (e *Encoder) wr() {
	for _, writer := range e.txns {
		for _, wrGraph := range e.po.WR {
			for reader := range wrGraph.Adj(writer) {
				e.cnf.AddClause(e.viLit(writer, reader))
			}
		}
	}
}

// readAtomic forbids a visible earlier writer from being CO-after the
// writer whose value was actually read: for WR edge u1 -> v on x and
// any other writer u2 of x, ¬VI[u2,v] ∨ CO[u2,u1].
func (e *Encoder) readAtomic() {
	for x, writers := range e.po.Writers {
		wrGraph := e.po.WR[x]
		if wrGraph == nil {
			continue
		}
		for _, u1 := range writers {
			for reader := range wrGraph.Adj(u1) {
				for _, u2 := range writers {
					if u2 == u1 {
						continue
					}
					e.cnf.AddClause(-e.viLit(u2, reader), e.coLit(u2, u1))
				}
			}
		}
	}
}

// visTransitive asserts VI is transitive.
func (e *Encoder) visTransitive() {
	e.forEachTriple(func(a, b, c txn.TxnID) {
		e.cnf.AddClause(-e.viLit(a, b), -e.viLit(b, c), e.viLit(a, c))
	})
}

// prefix asserts CO;VI ⊆ VI: CO[a,b] ∧ VI[b,c] ⇒ VI[a,c].
func (e *Encoder) prefix() {
	e.forEachTriple(func(a, b, c txn.TxnID) {
		e.cnf.AddClause(-e.coLit(a, b), -e.viLit(b, c), e.viLit(a, c))
	})
}

// conflict asserts CO ⊆ VI between every pair of writers sharing a
// variable (the SI write-write conflict rule).
func (e *Encoder) conflict() {
	seen := make(map[[2]int]struct{})
	for _, writers := range e.po.Writers {
		for _, t1 := range writers {
			for _, t2 := range writers {
				if t1 == t2 {
					continue
				}
				key := [2]int{e.index[t1], e.index[t2]}
				if _, done := seen[key]; done {
					continue
				}
				seen[key] = struct{}{}
				e.cnf.AddClause(-e.coLit(t1, t2), e.viLit(t1, t2))
			}
		}
	}
}

// ser asserts CO ⊆ VI between every pair (Serializable).
func (e *Encoder) ser() {
	n := len(e.txns)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			a, b := e.txns[i], e.txns[j]
			e.cnf.AddClause(-e.coLit(a, b), e.viLit(a, b))
		}
	}
}

func (e *Encoder) forEachTriple(f func(a, b, c txn.TxnID)) {
	n := len(e.txns)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			for k := 0; k < n; k++ {
				if k == i || k == j {
					continue
				}
				f(e.txns[i], e.txns[j], e.txns[k])
			}
		}
	}
}

// BuildCNF emits the clause families the target consistency model
// requires and returns the encoder (for variable lookups, e.g. to
// project a witness) alongside the resulting CNF.
func BuildCNF(level txn.Level, infos map[txn.TxnID]lift.TransactionInfo, po *atomic.AtomicHistoryPO) (*Encoder, *CNF) {
	e := NewEncoder(infos, po)
	e.session()
	e.preVisCO()
	e.wr()
	e.readAtomic()
	if level == txn.ReadAtomic {
		return e, e.cnf
	}

	e.visTransitive()
	switch level {
	case txn.Prefix:
		e.prefix()
	case txn.SnapshotIsolation:
		e.prefix()
		e.conflict()
	case txn.Serializable:
		e.ser()
	}
	return e, e.cnf
}

// Linearization projects a SAT assignment's CO variables into a total
// order over the encoder's transactions — the serialization witness.
func (e *Encoder) Linearization(a *Assignment) []txn.TxnID {
	order := append([]txn.TxnID(nil), e.txns...)
	sort.Slice(order, func(i, j int) bool {
		lit := e.coLit(order[i], order[j])
		v := int(lit)
		val := a.Vals[abs(v)]
		if v < 0 {
			val = !val
		}
		return val
	})
	return order
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

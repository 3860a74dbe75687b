package atomic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-isolation/isocheck/lift"
	"github.com/go-isolation/isocheck/txn"
)

func TestReadAtomicOkOnSimpleReadsFrom(t *testing.T) {
	t1 := txn.TxnID{Node: 1, Pos: 0}
	t2 := txn.TxnID{Node: 2, Pos: 0}
	infos := map[txn.TxnID]lift.TransactionInfo{
		t1: {ReadsFrom: map[uint64]txn.TxnID{}, WritesTo: map[uint64]struct{}{0: {}}},
		t2: {ReadsFrom: map[uint64]txn.TxnID{0: t1}, WritesTo: map[uint64]struct{}{}},
	}

	assert.False(t, CheckReadAtomic(infos))
	assert.False(t, CheckCausal(infos))
}

func TestReadAtomicFracturedReadCycleViolates(t *testing.T) {
	t1 := txn.TxnID{Node: 1, Pos: 0} // W(x)=1, W(y)=1
	t2 := txn.TxnID{Node: 2, Pos: 0} // W(x)=2, W(y)=2
	t3 := txn.TxnID{Node: 3, Pos: 0} // R(y)<-t1, R(x)<-t2

	infos := map[txn.TxnID]lift.TransactionInfo{
		t1: {ReadsFrom: map[uint64]txn.TxnID{}, WritesTo: map[uint64]struct{}{0: {}, 1: {}}},
		t2: {ReadsFrom: map[uint64]txn.TxnID{}, WritesTo: map[uint64]struct{}{0: {}, 1: {}}},
		t3: {ReadsFrom: map[uint64]txn.TxnID{1: t1, 0: t2}, WritesTo: map[uint64]struct{}{}},
	}

	assert.True(t, CheckReadAtomic(infos))
	assert.True(t, CheckCausal(infos))
}

func TestCausalOkThroughTransitiveVis(t *testing.T) {
	t1 := txn.TxnID{Node: 1, Pos: 0}
	t2 := txn.TxnID{Node: 2, Pos: 0}
	t3 := txn.TxnID{Node: 3, Pos: 0}

	infos := map[txn.TxnID]lift.TransactionInfo{
		t1: {ReadsFrom: map[uint64]txn.TxnID{}, WritesTo: map[uint64]struct{}{0: {}}},
		t2: {ReadsFrom: map[uint64]txn.TxnID{0: t1}, WritesTo: map[uint64]struct{}{1: {}}},
		t3: {ReadsFrom: map[uint64]txn.TxnID{1: t2}, WritesTo: map[uint64]struct{}{}},
	}

	a, violated := BuildCausal(infos)
	require.False(t, violated)
	assert.True(t, a.Vis.HasEdge(t1, t3))
}

func TestGetWRReflectsReadsFrom(t *testing.T) {
	t1 := txn.TxnID{Node: 1, Pos: 0}
	t2 := txn.TxnID{Node: 2, Pos: 0}
	infos := map[txn.TxnID]lift.TransactionInfo{
		t1: {ReadsFrom: map[uint64]txn.TxnID{}, WritesTo: map[uint64]struct{}{3: {}}},
		t2: {ReadsFrom: map[uint64]txn.TxnID{3: t1}, WritesTo: map[uint64]struct{}{}},
	}
	a := New(infos)
	assert.True(t, a.GetWR(3, t1, t2))
	assert.False(t, a.GetWR(3, t2, t1))
	assert.False(t, a.GetWR(99, t1, t2))
}

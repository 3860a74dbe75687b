package verifier

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-isolation/isocheck/txn"
	"github.com/go-isolation/isocheck/txnlog"
)

func ev(write bool, variable, value uint64, success bool) txnlog.Event {
	return txnlog.Event{Write: write, Variable: variable, Value: value, Success: success}
}

func newVerifier(t *testing.T, model txn.Level, useSAT, useBic bool) *Verifier {
	t.Helper()
	v, err := New(model, useSAT, useBic, "minisat", filepath.Join(t.TempDir(), "out"), "error")
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

// TestTrivialSerializableHistoryVerifiesAtEveryLevel: a single write
// read by a second session verifies at every level, including Inc.
func TestTrivialSerializableHistoryVerifiesAtEveryLevel(t *testing.T) {
	h := &txnlog.History{Sessions: []txnlog.Session{
		{{Events: []txnlog.Event{ev(true, 0, 1, true)}, Success: true}},
		{{Events: []txnlog.Event{ev(false, 0, 1, true)}, Success: true}},
	}}

	v := newVerifier(t, txn.Inc, false, false)
	report, err := v.Verify(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

// TestDirtyReadSettledAtLiftStage reproduces spec §8's dirty-read
// scenario: a read observes a value written by a transaction that
// never committed. This never reaches the hard-verification backend —
// it is settled by the axiomatic pass in package lift.
func TestDirtyReadSettledAtLiftStage(t *testing.T) {
	h := &txnlog.History{Sessions: []txnlog.Session{
		{{Events: []txnlog.Event{ev(true, 0, 1, true)}, Success: false}},
		{{Events: []txnlog.Event{ev(false, 0, 1, true)}, Success: true}},
	}}

	v := newVerifier(t, txn.Inc, false, false)
	report, err := v.Verify(context.Background(), h)
	require.NoError(t, err)
	require.False(t, report.OK())
	assert.Equal(t, txn.ReadCommitted, *report.Violation)
}

// TestLostUpdateSettledAtLiftStage reproduces spec §8's lost-update
// scenario within a single transaction.
func TestLostUpdateSettledAtLiftStage(t *testing.T) {
	h := &txnlog.History{Sessions: []txnlog.Session{
		{{Events: []txnlog.Event{
			ev(true, 0, 1, true),
			ev(true, 0, 2, true),
			ev(false, 0, 1, true),
		}, Success: true}},
	}}

	v := newVerifier(t, txn.Inc, false, false)
	report, err := v.Verify(context.Background(), h)
	require.NoError(t, err)
	require.False(t, report.OK())
	assert.Equal(t, txn.ReadCommitted, *report.Violation)
}

// TestNonRepeatableReadSettledAtLiftStage reproduces spec §8's
// non-repeatable-read scenario.
func TestNonRepeatableReadSettledAtLiftStage(t *testing.T) {
	h := &txnlog.History{Sessions: []txnlog.Session{
		{{Events: []txnlog.Event{ev(true, 1, 10, true)}, Success: true}},
		{{Events: []txnlog.Event{ev(true, 1, 20, true)}, Success: true}},
		{{Events: []txnlog.Event{
			ev(false, 1, 10, true),
			ev(false, 1, 20, true),
		}, Success: true}},
	}}

	v := newVerifier(t, txn.Inc, false, false)
	report, err := v.Verify(context.Background(), h)
	require.NoError(t, err)
	require.False(t, report.OK())
	assert.Equal(t, txn.RepeatableRead, *report.Violation)
}

// TestFracturedReadViolatesReadAtomic: T1 writes x and y; T2 reads T1's
// new x but an older (root) y — a fractured read, the canonical Read
// Atomic violation, settled only once the hard-verification backend
// runs (it clears every lift-stage axiom).
func TestFracturedReadViolatesReadAtomic(t *testing.T) {
	h := &txnlog.History{Sessions: []txnlog.Session{
		{{Events: []txnlog.Event{
			ev(true, 0, 1, true),
			ev(true, 1, 1, true),
		}, Success: true}},
		{{Events: []txnlog.Event{
			ev(false, 0, 1, true),
			ev(false, 1, 0, true),
		}, Success: true}},
	}}

	v := newVerifier(t, txn.Inc, false, false)
	report, err := v.Verify(context.Background(), h)
	require.NoError(t, err)
	require.False(t, report.OK())
	assert.Equal(t, txn.ReadAtomic, *report.Violation)
}

// TestWriteSkewViolatesSerializableNotSnapshotIsolation reproduces
// spec §8's write-skew scenario end to end: Snapshot Isolation accepts
// it (targeted directly), Inc walks all the way to Serializable.
func TestWriteSkewViolatesSerializableNotSnapshotIsolation(t *testing.T) {
	h := &txnlog.History{Sessions: []txnlog.Session{
		{{Events: []txnlog.Event{
			ev(false, 1, 0, true),
			ev(true, 0, 1, true),
		}, Success: true}},
		{{Events: []txnlog.Event{
			ev(false, 0, 0, true),
			ev(true, 1, 1, true),
		}, Success: true}},
	}}

	siVerifier := newVerifier(t, txn.SnapshotIsolation, false, false)
	siReport, err := siVerifier.Verify(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, siReport.OK())

	incVerifier := newVerifier(t, txn.Inc, false, false)
	incReport, err := incVerifier.Verify(context.Background(), h)
	require.NoError(t, err)
	require.False(t, incReport.OK())
	assert.Equal(t, txn.Serializable, *incReport.Violation)
}

// TestBicomponentEquivalenceOnTrivialHistory checks spec §8's BCC
// equivalence property on the simplest possible case: two disjoint
// sessions that never share a variable decompose into two singleton
// components, and the aggregate verdict still matches the
// non-sharded run.
func TestBicomponentEquivalenceOnTrivialHistory(t *testing.T) {
	h := &txnlog.History{Sessions: []txnlog.Session{
		{{Events: []txnlog.Event{ev(true, 0, 1, true)}, Success: true}},
		{{Events: []txnlog.Event{ev(true, 1, 1, true)}, Success: true}},
	}}

	plain := newVerifier(t, txn.Serializable, false, false)
	plainReport, err := plain.Verify(context.Background(), h)
	require.NoError(t, err)

	sharded := newVerifier(t, txn.Serializable, false, true)
	shardedReport, err := sharded.Verify(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, plainReport.OK(), shardedReport.OK())
}

// TestSharedReadersOfOneWriteVerifiesUnderPrefixAndSnapshotIsolation
// runs an ordinary, conflict-free history — one write read by two
// distinct sessions — through the full pipeline at both Prefix and
// Snapshot Isolation, guarding against active_write[x] being treated
// as a replaceable set rather than a per-reader claim pool.
func TestSharedReadersOfOneWriteVerifiesUnderPrefixAndSnapshotIsolation(t *testing.T) {
	h := &txnlog.History{Sessions: []txnlog.Session{
		{{Events: []txnlog.Event{ev(true, 0, 1, true)}, Success: true}},
		{{Events: []txnlog.Event{ev(false, 0, 1, true)}, Success: true}},
		{{Events: []txnlog.Event{ev(false, 0, 1, true)}, Success: true}},
	}}

	prefixVerifier := newVerifier(t, txn.Prefix, false, false)
	prefixReport, err := prefixVerifier.Verify(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, prefixReport.OK())

	siVerifier := newVerifier(t, txn.SnapshotIsolation, false, false)
	siReport, err := siVerifier.Verify(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, siReport.OK())
}

func TestUnknownModelIsFatal(t *testing.T) {
	v := newVerifier(t, txn.Level(99), false, false)
	h := &txnlog.History{Sessions: []txnlog.Session{
		{{Events: []txnlog.Event{
			ev(false, 1, 0, true),
			ev(true, 0, 1, true),
		}, Success: true}},
	}}
	_, err := v.Verify(context.Background(), h)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

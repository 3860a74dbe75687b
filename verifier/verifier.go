// Package verifier is the façade that sequences a full consistency
// check: lift the raw history, settle Read Committed/Repeatable Read
// axiomatically, then run the hard-verification backend (constrained
// linearization or SAT) for Read Atomic through Serializable, optionally
// sharded across biconnected components of the session-communication
// graph. Each Verify call appends line-delimited JSON records (a start
// record, any early-exit decision, and a final verdict record) to
// <out>/result_log.json.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/go-isolation/isocheck/atomic"
	"github.com/go-isolation/isocheck/biconn"
	"github.com/go-isolation/isocheck/graph"
	"github.com/go-isolation/isocheck/lift"
	"github.com/go-isolation/isocheck/linearize"
	"github.com/go-isolation/isocheck/satenc"
	"github.com/go-isolation/isocheck/txn"
	"github.com/go-isolation/isocheck/txnlog"
)

// ErrUnknownModel is returned when a consistency model has no check
// implemented for it — a malformed-input error, never a verdict.
var ErrUnknownModel = errors.New("verifier: unknown consistency model")

// Verifier owns the target model and flags for one verification run,
// plus the output directory it logs and (when use_sat is set) stages
// CNF scratch files in.
type Verifier struct {
	Model          txn.Level
	UseSAT         bool
	UseBicomponent bool
	SolverPath     string
	OutDir         string

	logger  *logrus.Logger
	logFile *os.File
}

// New creates the verifier's output directory and opens its
// line-delimited JSON log for appending.
func New(model txn.Level, useSAT, useBicomponent bool, solverPath, outDir, logLevel string) (*Verifier, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("verifier: creating output directory: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(outDir, "result_log.json"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("verifier: opening result log: %w", err)
	}

	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(logFile)
	logger.SetLevel(lvl)

	return &Verifier{
		Model:          model,
		UseSAT:         useSAT,
		UseBicomponent: useBicomponent,
		SolverPath:     solverPath,
		OutDir:         outDir,
		logger:         logger,
		logFile:        logFile,
	}, nil
}

// Close releases the log file. Callers should defer it after New
// succeeds.
func (v *Verifier) Close() error {
	return v.logFile.Close()
}

// Report is the outcome of one Verify call: Violation is nil when the
// history is consistent at Model, or the weakest level it violates.
type Report struct {
	Model     txn.Level
	Violation *txn.Level
}

// OK reports whether the history passed verification.
func (r Report) OK() bool { return r.Violation == nil }

// Verify runs the full pipeline against h and returns its verdict. A
// non-nil error means the history itself is malformed or the solver
// failed — never a consistency violation, which is reported through
// Report instead.
func (v *Verifier) Verify(ctx context.Context, h *txnlog.History) (Report, error) {
	runID := uuid.NewString()
	log := v.logger.WithFields(logrus.Fields{"run_id": runID, "history_id": h.Params.ID})
	start := time.Now()

	log.WithFields(logrus.Fields{
		"model":       v.Model.String(),
		"sat":         v.UseSAT,
		"bicomponent": v.UseBicomponent,
	}).Info("verification started")

	liftRes, err := lift.Lift(h.Sessions)
	if err != nil {
		log.WithError(err).Error("history lift failed")
		return Report{}, err
	}
	if liftRes.Violation != nil {
		log.WithFields(logrus.Fields{
			"reason":      "axiomatic",
			"description": "settled below Read Atomic without building a graph",
		}).Info("early-exit decision")
		return v.finish(log, start, liftRes.Violation)
	}

	infos := liftRes.Infos
	if len(infos) == 0 {
		log.WithFields(logrus.Fields{
			"reason":      "empty-history",
			"description": "no transaction produced a TransactionInfo; vacuously ok",
		}).Info("early-exit decision")
		return v.finish(log, start, nil)
	}

	if v.Model == txn.ReadCommitted || v.Model == txn.RepeatableRead {
		return v.finish(log, start, nil)
	}

	var violation *txn.Level
	if v.UseBicomponent {
		violation, err = v.verifyBicomponent(ctx, infos)
	} else {
		violation, err = v.doHardVerification(ctx, infos, v.Model, v.OutDir)
	}
	if err != nil {
		log.WithError(err).Error("hard verification failed")
		return Report{}, err
	}

	return v.finish(log, start, violation)
}

func (v *Verifier) finish(log *logrus.Entry, start time.Time, violation *txn.Level) (Report, error) {
	fields := logrus.Fields{
		"model":       v.Model.String(),
		"sat":         v.UseSAT,
		"bicomponent": v.UseBicomponent,
		"duration":    time.Since(start).Seconds(),
	}
	if violation != nil {
		fields["minViolation"] = violation.String()
	} else {
		fields["minViolation"] = nil
	}
	log.WithFields(fields).Info("verification finished")
	return Report{Model: v.Model, Violation: violation}, nil
}

// doHardVerification runs the Read-Atomic-through-Serializable backend
// against infos, writing any SAT scratch files under workDir. model
// txn.Inc runs the full Inc sequence of spec §4.6.3 and returns the
// first violated level.
func (v *Verifier) doHardVerification(ctx context.Context, infos map[txn.TxnID]lift.TransactionInfo, model txn.Level, workDir string) (*txn.Level, error) {
	if model == txn.Inc {
		for _, lvl := range []txn.Level{txn.ReadAtomic, txn.Causal, txn.Prefix, txn.SnapshotIsolation, txn.Serializable} {
			violated, err := v.checkLevel(ctx, lvl, infos, workDir)
			if err != nil {
				return nil, err
			}
			if violated {
				l := lvl
				return &l, nil
			}
		}
		return nil, nil
	}

	switch model {
	case txn.ReadAtomic, txn.Causal, txn.Prefix, txn.SnapshotIsolation, txn.Serializable:
		violated, err := v.checkLevel(ctx, model, infos, workDir)
		if err != nil {
			return nil, err
		}
		if violated {
			l := model
			return &l, nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
}

// checkLevel decides a single level, either via the SAT backend or the
// constrained-linearization engine.
func (v *Verifier) checkLevel(ctx context.Context, level txn.Level, infos map[txn.TxnID]lift.TransactionInfo, workDir string) (bool, error) {
	if v.UseSAT {
		po := atomic.New(infos)
		violated, _, err := satenc.CheckViaSAT(ctx, level, infos, po, v.SolverPath, workDir)
		return violated, err
	}

	switch level {
	case txn.ReadAtomic:
		return atomic.CheckReadAtomic(infos), nil
	case txn.Causal:
		return atomic.CheckCausal(infos), nil
	case txn.Prefix:
		po, violated := atomic.BuildCausal(infos)
		if violated {
			return true, nil
		}
		return linearize.CheckPrefix(po, infos), nil
	case txn.SnapshotIsolation:
		po, violated := atomic.BuildCausal(infos)
		if violated {
			return true, nil
		}
		return linearize.CheckSnapshotIsolation(po, infos), nil
	case txn.Serializable:
		po, violated := atomic.BuildCausal(infos)
		if violated {
			return true, nil
		}
		return linearize.CheckSerializable(po, infos), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownModel, level)
	}
}

// verifyBicomponent decomposes the session-communication graph and
// verifies each biconnected component's restricted TransactionInfos
// concurrently; the overall violation is the weakest level any
// component reports (spec §4.8: all components must verify for the
// whole history to verify).
func (v *Verifier) verifyBicomponent(ctx context.Context, infos map[txn.TxnID]lift.TransactionInfo) (*txn.Level, error) {
	comm := communicationGraph(infos)
	components := biconn.VertexComponents(comm)
	if len(components) == 0 {
		return nil, nil
	}

	results := make([]*txn.Level, len(components))
	g, gctx := errgroup.WithContext(ctx)
	for i, comp := range components {
		i, comp := i, comp
		g.Go(func() error {
			shardDir := filepath.Join(v.OutDir, fmt.Sprintf("shard-%d", i))
			if err := os.MkdirAll(shardDir, 0o755); err != nil {
				return err
			}
			lvl, err := v.doHardVerification(gctx, restrict(infos, comp), v.Model, shardDir)
			if err != nil {
				return err
			}
			results[i] = lvl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var weakest *txn.Level
	for _, lvl := range results {
		if lvl == nil {
			continue
		}
		if weakest == nil || *lvl < *weakest {
			weakest = lvl
		}
	}
	return weakest, nil
}

// communicationGraph builds the session–variable–session graph of
// spec §4.2/§4.8: an edge between two sessions exists iff they both
// access some common variable, through either a read or a write.
func communicationGraph(infos map[txn.TxnID]lift.TransactionInfo) *graph.UGraph[int] {
	g := graph.NewUGraph[int]()
	byVar := make(map[uint64]map[int]struct{})

	for id, info := range infos {
		if id == txn.Root {
			continue
		}
		g.AddVertex(id.Node)
		for x := range info.WritesTo {
			addAccessor(byVar, x, id.Node)
		}
		for x := range info.ReadsFrom {
			addAccessor(byVar, x, id.Node)
		}
	}

	for _, nodes := range byVar {
		sorted := make([]int, 0, len(nodes))
		for n := range nodes {
			sorted = append(sorted, n)
		}
		sort.Ints(sorted)
		for i := 0; i < len(sorted); i++ {
			for j := i + 1; j < len(sorted); j++ {
				g.AddEdge(sorted[i], sorted[j])
			}
		}
	}
	return g
}

func addAccessor(byVar map[uint64]map[int]struct{}, variable uint64, node int) {
	nodes, ok := byVar[variable]
	if !ok {
		nodes = make(map[int]struct{})
		byVar[variable] = nodes
	}
	nodes[node] = struct{}{}
}

// restrict projects infos down to the transactions whose session
// belongs to comp, dropping any reads_from entry whose writer's
// session fell outside the component (the synthetic root is always
// kept, since it is not a session).
func restrict(infos map[txn.TxnID]lift.TransactionInfo, comp map[int]struct{}) map[txn.TxnID]lift.TransactionInfo {
	out := make(map[txn.TxnID]lift.TransactionInfo)
	if root, ok := infos[txn.Root]; ok {
		out[txn.Root] = root
	}
	for id, info := range infos {
		if id == txn.Root {
			continue
		}
		if _, inComp := comp[id.Node]; !inComp {
			continue
		}
		reads := make(map[uint64]txn.TxnID, len(info.ReadsFrom))
		for x, writer := range info.ReadsFrom {
			if writer == txn.Root {
				reads[x] = writer
				continue
			}
			if _, inComp := comp[writer.Node]; inComp {
				reads[x] = writer
			}
		}
		out[id] = lift.TransactionInfo{ReadsFrom: reads, WritesTo: info.WritesTo}
	}
	return out
}

package satenc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/go-isolation/isocheck/atomic"
	"github.com/go-isolation/isocheck/lift"
	"github.com/go-isolation/isocheck/txn"
)

// ErrSolverUnavailable is returned when the external solver process
// cannot be started or exits nonzero. A solver failure is always
// fatal: it is never interpreted as UNSAT.
var ErrSolverUnavailable = errors.New("satenc: solver unavailable")

// ErrSolverResult is returned when the solver exits cleanly but its
// result file cannot be parsed as a DIMACS-style SAT/UNSAT witness.
var ErrSolverResult = errors.New("satenc: malformed solver result")

// RunSolver invokes solverPath against cnfPath and writes its stdout to
// resultPath. Any spawn failure or nonzero exit wraps ErrSolverUnavailable
// with the captured stderr.
func RunSolver(ctx context.Context, solverPath, cnfPath, resultPath string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, solverPath, cnfPath)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrSolverUnavailable, err, stderr.String())
	}
	return os.WriteFile(resultPath, out, 0o644)
}

// CheckViaSAT runs the full SAT backend for one consistency level:
// encode, write DIMACS, invoke the solver, parse its result, and — on
// SAT — project a serialization witness. violated is true exactly when
// the encoding is UNSAT (no order/visibility assignment satisfies the
// level's axioms).
func CheckViaSAT(
	ctx context.Context,
	level txn.Level,
	infos map[txn.TxnID]lift.TransactionInfo,
	po *atomic.AtomicHistoryPO,
	solverPath, workDir string,
) (violated bool, witness []txn.TxnID, err error) {
	encoder, cnf := BuildCNF(level, infos, po)

	cnfFile, err := os.CreateTemp(workDir, "isocheck-*.cnf")
	if err != nil {
		return false, nil, fmt.Errorf("satenc: creating cnf scratch file: %w", err)
	}
	cnfPath := cnfFile.Name()
	defer os.Remove(cnfPath)

	if err := WriteDIMACS(cnfFile, cnf); err != nil {
		cnfFile.Close()
		return false, nil, fmt.Errorf("satenc: writing dimacs: %w", err)
	}
	if err := cnfFile.Close(); err != nil {
		return false, nil, fmt.Errorf("satenc: closing cnf scratch file: %w", err)
	}

	resultPath := cnfPath + ".result"
	defer os.Remove(resultPath)

	if err := RunSolver(ctx, solverPath, cnfPath, resultPath); err != nil {
		return false, nil, err
	}

	resultFile, err := os.Open(resultPath)
	if err != nil {
		return false, nil, fmt.Errorf("satenc: opening solver result: %w", err)
	}
	defer resultFile.Close()

	assignment, err := ParseResult(resultFile)
	if err != nil {
		return false, nil, fmt.Errorf("%w: %v", ErrSolverResult, err)
	}

	if !assignment.SAT {
		return true, nil, nil
	}
	return false, encoder.Linearization(assignment), nil
}

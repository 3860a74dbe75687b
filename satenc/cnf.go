// Package satenc encodes a history's candidate consistency check as a
// Boolean satisfiability instance — CO (total commit order) and VI
// (visibility) variables over ordered pairs of transactions — and
// hands it to an external solver (spec §4.7). This is the backend
// used when the verifier is asked to trade the constrained-linearization
// search in package linearize for a SAT decision procedure.
//
// No SAT solver or DIMACS library exists anywhere in the dependency
// pool this module draws from; the CNF writer/reader and the solver
// invocation are therefore standard library (bufio, os/exec).
package satenc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Literal is a signed DIMACS literal: positive n asserts variable n,
// negative n asserts its negation.
type Literal int

// Clause is a disjunction of literals, implicitly terminated by 0 in
// the DIMACS encoding.
type Clause []Literal

// CNF is a conjunctive-normal-form instance: NumVars Boolean variables
// numbered 1..NumVars, and the clauses conjoined over them.
type CNF struct {
	NumVars int
	Clauses []Clause
}

// NewVar allocates a fresh variable and returns its (positive) number.
func (c *CNF) NewVar() int {
	c.NumVars++
	return c.NumVars
}

// AddClause appends one clause.
func (c *CNF) AddClause(lits ...Literal) {
	c.Clauses = append(c.Clauses, append(Clause(nil), lits...))
}

// WriteDIMACS renders cnf in the format spec §6 requires of the
// external solver's input: a "p cnf n_vars n_clauses" header followed
// by each clause's literals terminated by 0.
func WriteDIMACS(w io.Writer, cnf *CNF) error {
	if _, err := fmt.Fprintf(w, "p cnf %d %d\n", cnf.NumVars, len(cnf.Clauses)); err != nil {
		return err
	}
	for _, cl := range cnf.Clauses {
		parts := make([]string, 0, len(cl)+1)
		for _, lit := range cl {
			parts = append(parts, strconv.Itoa(int(lit)))
		}
		parts = append(parts, "0")
		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return err
		}
	}
	return nil
}

// Assignment is a parsed solver result: SAT/UNSAT plus, when SAT, the
// truth value assigned to every variable mentioned in the witness line.
type Assignment struct {
	SAT  bool
	Vals map[int]bool
}

// ParseResult reads the solver's result file: first line "SAT" or
// "UNSAT"; on SAT, subsequent whitespace-separated signed integers
// giving the assignment (spec §6).
func ParseResult(r io.Reader) (*Assignment, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return nil, fmt.Errorf("satenc: empty solver result")
	}
	switch header := strings.TrimSpace(sc.Text()); header {
	case "UNSAT":
		return &Assignment{SAT: false}, nil
	case "SAT":
		vals := make(map[int]bool)
		for sc.Scan() {
			for _, f := range strings.Fields(sc.Text()) {
				n, err := strconv.Atoi(f)
				if err != nil {
					return nil, fmt.Errorf("satenc: unparsable assignment token %q: %w", f, err)
				}
				if n == 0 {
					continue
				}
				if n > 0 {
					vals[n] = true
				} else {
					vals[-n] = false
				}
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("satenc: reading assignment: %w", err)
		}
		return &Assignment{SAT: true, Vals: vals}, nil
	default:
		return nil, fmt.Errorf("satenc: unrecognized solver result header %q", header)
	}
}
